// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time operations for testability.
//
// Production code injects [Real]; tests inject [Fake] and drive time
// forward explicitly with Advance. Every switchboard function that
// would otherwise call time.Now, time.After, time.NewTicker, or
// time.Sleep accepts a [Clock] (or is a method on a struct holding
// one) so that rotation thresholds, poll intervals, and backoff are
// deterministic under test.
package clock
