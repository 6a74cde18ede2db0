package port

import "context"

// Completer is a chat language model.
type Completer interface {
	// Complete sends a system and a user message and returns the reply text.
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}
