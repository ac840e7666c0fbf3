package workflow

import (
	"context"
	"log/slog"

	"quire/internal/artifact"
	"quire/internal/hub"
)

// Input is everything an agent receives for one invocation.
type Input struct {
	ProjectID string
	RunID     string
	Stage     Stage
	// Unit is 1-based for fan-out stages and 0 otherwise.
	Unit     int
	Units    int
	Snapshot hub.Snapshot
	Store    *artifact.Store
	Hub      *hub.Hub
	Logger   *slog.Logger
}

// Agent produces one stage's artifacts. It writes them to the store itself
// and returns their ids.
type Agent interface {
	Run(ctx context.Context, in Input) ([]string, error)
}

// AgentFunc adapts a function to Agent.
type AgentFunc func(ctx context.Context, in Input) ([]string, error)

// Run calls f.
func (f AgentFunc) Run(ctx context.Context, in Input) ([]string, error) {
	return f(ctx, in)
}

// Agents maps each stage to the agent that executes it.
type Agents map[Stage]Agent
