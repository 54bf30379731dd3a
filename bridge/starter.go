// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"

	"github.com/switchboard-dev/switchboard/agent"
)

// AgentQuery is one in-flight turn against the agent process.
// *agent.Query implements it; tests substitute scripted fakes.
type AgentQuery interface {
	Events() <-chan agent.Event
	AllowTool(requestID string) error
	DenyTool(requestID, message string) error
	AnswerQuestions(requestID string, answers map[string]string) error
	Interrupt() error
	Close()
}

// AgentStarter launches agent queries.
type AgentStarter interface {
	Start(ctx context.Context, options agent.StartOptions) (AgentQuery, error)
}

type runnerStarter struct {
	runner *agent.Runner
}

// NewRunnerStarter adapts an [agent.Runner] to the [AgentStarter]
// interface.
func NewRunnerStarter(runner *agent.Runner) AgentStarter {
	return runnerStarter{runner: runner}
}

func (s runnerStarter) Start(ctx context.Context, options agent.StartOptions) (AgentQuery, error) {
	query, err := s.runner.Start(ctx, options)
	if err != nil {
		return nil, err
	}
	return query, nil
}
