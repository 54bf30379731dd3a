// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package fuzzy scores candidate strings against an interactive query
// using fzf's matching algorithm. The attach picker and the console
// filter both rank with it.
package fuzzy

import (
	"sort"
	"unicode"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

// Result is one candidate's match against a pattern.
type Result struct {
	// Score ranks candidates. Positive for any match, zero otherwise.
	Score int

	// Positions are the rune indices of the matched characters in the
	// candidate, ascending. Empty when there is no match.
	Positions []int
}

// NewSlab returns scratch space for the matcher, sized the way fzf
// sizes its own. Reuse one slab across Match calls on a single
// goroutine; nil is accepted everywhere and simply allocates.
func NewSlab() *util.Slab {
	return util.MakeSlab(100*1024, 2048)
}

// Match scores text against pattern. Matching is case-insensitive and
// accent-folding; an empty pattern matches nothing.
func Match(text string, pattern []rune, slab *util.Slab) Result {
	if len(pattern) == 0 {
		return Result{}
	}
	lowered := make([]rune, len(pattern))
	for i, r := range pattern {
		lowered[i] = unicode.ToLower(r)
	}

	chars := util.ToChars([]byte(text))
	match, positions := algo.FuzzyMatchV2(false, true, true, &chars, lowered, true, slab)
	if match.Start < 0 || match.Score <= 0 {
		return Result{}
	}

	result := Result{Score: match.Score}
	if positions != nil {
		result.Positions = append(result.Positions, *positions...)
		sort.Ints(result.Positions)
	}
	return result
}
