// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package correlate

// Kind identifies what sort of decision a pending interaction waits on.
type Kind int

const (
	// KindApproval asks the channel to allow or deny a tool use.
	KindApproval Kind = iota
	// KindQuestion asks the channel to pick one of several options.
	KindQuestion
)

func (k Kind) String() string {
	switch k {
	case KindApproval:
		return "approval"
	case KindQuestion:
		return "question"
	}
	return "unknown"
}

// Verdict classifies a decision. The zero value denies, so a missing
// or defaulted decision never grants anything.
type Verdict int

const (
	VerdictDeny Verdict = iota
	VerdictAllow
)

func (v Verdict) String() string {
	if v == VerdictAllow {
		return "allow"
	}
	return "deny"
}

// Decision is the outcome of a pending interaction.
type Decision struct {
	Verdict Verdict

	// Feedback carries operator guidance attached to a denial. The
	// agent sees it as the reason the tool use was refused.
	Feedback string

	// Option is the chosen option of a question prompt.
	Option string
}

// Allow approves the interaction.
func Allow() Decision { return Decision{Verdict: VerdictAllow} }

// Deny rejects the interaction.
func Deny() Decision { return Decision{Verdict: VerdictDeny} }

// DenyWithFeedback rejects the interaction and tells the agent why.
func DenyWithFeedback(text string) Decision {
	return Decision{Verdict: VerdictDeny, Feedback: text}
}

// Answer resolves a question prompt with the chosen option.
func Answer(option string) Decision {
	return Decision{Verdict: VerdictAllow, Option: option}
}
