// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package allowlist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/jsonc"
)

// Rule auto-approves a class of tool calls. Tool is required; the
// restriction fields narrow which inputs the rule covers. A rule with
// no restrictions approves every call to its tool. When several
// restriction fields are set, all of them must pass; within one field,
// any listed value suffices.
type Rule struct {
	// Tool is the exact tool name (e.g. "Bash", "Read").
	Tool string `json:"tool"`

	// CommandPrefix restricts the rule to commands that start with one
	// of these strings, compared at a word boundary: "git status"
	// covers "git status --short" but not "git statusx". Checked
	// against the tool input's "command" field.
	CommandPrefix []string `json:"command_prefix,omitempty"`

	// PathUnder restricts the rule to paths inside one of these
	// directories. Checked against the tool input's "file_path" field,
	// falling back to "path".
	PathUnder []string `json:"path_under,omitempty"`
}

// ruleFile is the on-disk shape of the rules file.
type ruleFile struct {
	Rules []Rule `json:"rules"`
}

// List holds the active rules. Safe for concurrent use: Allows may be
// called from any goroutine while a reload swaps the rules.
type List struct {
	mu    sync.RWMutex
	rules []Rule
}

// Load reads and parses the rules file at path.
func Load(path string) (*List, error) {
	list := &List{}
	if err := list.reload(path); err != nil {
		return nil, err
	}
	return list, nil
}

// reload re-reads the rules file and swaps the active rules. On any
// error the previous rules stay in effect.
func (l *List) reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	rules, err := parseRules(data)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	l.mu.Lock()
	l.rules = rules
	l.mu.Unlock()
	return nil
}

// parseRules parses the JSONC rule file content and validates it.
func parseRules(data []byte) ([]Rule, error) {
	var file ruleFile
	if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
		return nil, err
	}
	for i, rule := range file.Rules {
		if rule.Tool == "" {
			return nil, fmt.Errorf("rule %d: tool name is empty", i)
		}
	}
	return file.Rules, nil
}

// Len returns the number of active rules.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.rules)
}

// Allows reports whether a tool call is auto-approved. The input map is
// the decoded tool input from the agent's permission request. A nil
// List (no rules file configured) allows nothing.
func (l *List) Allows(tool string, input map[string]any) bool {
	if l == nil {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, rule := range l.rules {
		if rule.matches(tool, input) {
			return true
		}
	}
	return false
}

func (r *Rule) matches(tool string, input map[string]any) bool {
	if r.Tool != tool {
		return false
	}
	if len(r.CommandPrefix) > 0 {
		command, ok := stringField(input, "command")
		if !ok || !anyCommandPrefix(command, r.CommandPrefix) {
			return false
		}
	}
	if len(r.PathUnder) > 0 {
		path, ok := stringField(input, "file_path")
		if !ok {
			path, ok = stringField(input, "path")
		}
		if !ok || !anyPathUnder(path, r.PathUnder) {
			return false
		}
	}
	return true
}

// anyCommandPrefix matches at a word boundary so that an approved
// prefix cannot be extended into a different command by appending
// characters.
func anyCommandPrefix(command string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if command == prefix || strings.HasPrefix(command, prefix+" ") {
			return true
		}
	}
	return false
}

// anyPathUnder matches at a path-separator boundary so that approving
// /srv/work does not approve /srv/workspace.
func anyPathUnder(path string, directories []string) bool {
	cleaned := filepath.Clean(path)
	for _, directory := range directories {
		dir := filepath.Clean(directory)
		if cleaned == dir || strings.HasPrefix(cleaned, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func stringField(input map[string]any, key string) (string, bool) {
	value, exists := input[key]
	if !exists {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}
