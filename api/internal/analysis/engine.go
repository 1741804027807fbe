package analysis

import (
	"context"
	"fmt"
	"strings"
)

// Request is one chat-completion call: a system instruction, a user
// instruction and an optional image.
type Request struct {
	System      string
	User        string
	Image       []byte
	ImageMIME   string
	MaxTokens   int
	Temperature float32
}

// Engine is an upstream multimodal completion service. Complete returns the
// raw completion text; failures to reach the service or non-success statuses
// should be returned as *Error of KindUpstream.
type Engine interface {
	Name() string
	GetModel() string
	Complete(ctx context.Context, req Request) (string, error)
}

type Engines struct {
	OpenAI  Engine
	Gemini  Engine
	Default string
}

func (e *Engines) GetEngine(llmName string) (Engine, error) {
	name := strings.ToLower(strings.TrimSpace(llmName))
	if name == "" {
		name = e.Default
	}
	var eng Engine
	switch name {
	case "gpt", "openai":
		eng = e.OpenAI
	case "gemini":
		eng = e.Gemini
	default:
		return nil, InputError(fmt.Sprintf("unknown llm %q; use 'gpt' or 'gemini'", llmName))
	}
	if eng == nil {
		return nil, InputError(fmt.Sprintf("llm %q is not configured", name))
	}
	return eng, nil
}
