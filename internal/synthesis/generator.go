package synthesis

import (
	"context"

	"github.com/vitaelabs/vitae/internal/engine"
)

// EngineGenerator synthesizes answers with a local chat model.
type EngineGenerator struct {
	engine engine.Engine
	model  string
}

func NewEngineGenerator(e engine.Engine, model string) *EngineGenerator {
	return &EngineGenerator{engine: e, model: model}
}

func (g *EngineGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	return g.engine.Chat(ctx, g.model, []engine.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	})
}
