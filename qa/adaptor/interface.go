// Package adaptor defines the language capability used by the planner and
// the judge. Implementations live in sub-packages.
package adaptor

import (
	"context"

	"github.com/qaforge/convotest/qa/meta"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// Request is a single text-in, text-out completion.
type Request struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Capability is the opaque text generation effect. The credential and model
// come from m, never from process state.
type Capability interface {
	Complete(ctx context.Context, m *meta.Meta, req Request) (string, error)
}

// CapabilityFunc adapts a function to Capability.
type CapabilityFunc func(ctx context.Context, m *meta.Meta, req Request) (string, error)

func (f CapabilityFunc) Complete(ctx context.Context, m *meta.Meta, req Request) (string, error) {
	return f(ctx, m, req)
}
