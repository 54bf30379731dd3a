// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the switchboard
// daemon.
//
// Configuration is loaded from a single YAML file specified by:
//   - the SWITCHBOARD_CONFIG environment variable, or
//   - the --config flag passed to the daemon
//
// There are no fallbacks or automatic discovery. The config file is
// the single source of truth; the only expansion performed is
// ${VAR} / ${VAR:-default} substitution in path fields, so configs
// stay portable across machines.
package config
