package llm

import "context"

// StaticStrategy always answers with a fixed text. It is the last link.
type StaticStrategy struct {
	Text string
}

// Name implements Strategy.
func (StaticStrategy) Name() string { return "static" }

// Generate implements Strategy.
func (s StaticStrategy) Generate(context.Context, Prompt) (string, error) {
	return s.Text, nil
}
