package llm

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/metalagman/quorum/internal/config"
)

// Backend names.
const (
	BackendGenAI    = config.BackendGenAI
	BackendOpenAI   = config.BackendOpenAI
	BackendExec     = config.BackendExec
	BackendScripted = config.BackendScripted
)

// New builds the generator selected by cfg. dataDir hosts scratch space for
// the exec backend; agentLog receives its output and may be nil.
func New(ctx context.Context, cfg config.BackendConfig, dataDir string, agentLog io.Writer) (Generator, error) {
	var (
		gen Generator
		err error
	)
	switch cfg.Type {
	case BackendGenAI:
		gen, err = NewGenAI(ctx, cfg.Model, cfg.ResolveAPIKey())
	case BackendOpenAI:
		gen, err = NewOpenAI(OpenAIConfig{
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.ResolveAPIKey(),
			Timeout: cfg.Timeout,
		}, nil)
	case BackendExec:
		gen, err = NewExec(ExecConfig{
			Cmd:     cfg.Cmd,
			UseTTY:  cfg.UseTTY,
			WorkDir: filepath.Join(dataDir, "exec"),
			Stdout:  agentLog,
			Stderr:  agentLog,
		})
	case BackendScripted:
		gen, err = NewScripted(cfg.Responses...)
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return gen, nil
}
