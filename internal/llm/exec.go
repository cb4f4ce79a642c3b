package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/metalagman/ainvoke"
)

const execPrompt = `You are a drafting assistant invoked as a command line agent.
- Read the conversation in input.json: "system" holds your role instructions, "messages" the turns so far.
- Answer the last user message.
- Do not read, modify or create files other than the output file.
`

const execInputSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "system": { "type": "string" },
    "messages": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "role": { "type": "string", "enum": ["user", "assistant"] },
          "content": { "type": "string" }
        },
        "required": ["role", "content"]
      }
    },
    "max_output_tokens": { "type": "integer" }
  },
  "required": ["system", "messages"]
}`

const execTextSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "text": { "type": "string", "minLength": 1 }
  },
  "required": ["text"]
}`

// ExecConfig configures the external agent CLI backend.
type ExecConfig struct {
	Cmd    []string
	UseTTY bool
	// WorkDir holds one scratch directory per invocation.
	WorkDir string
	Stdout  io.Writer
	Stderr  io.Writer
}

// Exec generates completions by invoking an external agent CLI.
type Exec struct {
	cfg    ExecConfig
	runner ainvoke.Runner
}

// NewExec constructs an exec backend.
func NewExec(cfg ExecConfig) (*Exec, error) {
	if len(cfg.Cmd) == 0 {
		return nil, fmt.Errorf("exec backend requires cmd")
	}
	r, err := ainvoke.NewRunner(ainvoke.AgentConfig{
		Cmd:    cfg.Cmd,
		UseTTY: cfg.UseTTY,
	})
	if err != nil {
		return nil, fmt.Errorf("create agent runner: %w", err)
	}
	return &Exec{cfg: cfg, runner: r}, nil
}

// Generate implements Generator.
func (e *Exec) Generate(ctx context.Context, req Request) (string, error) {
	if e.cfg.WorkDir != "" {
		if err := os.MkdirAll(e.cfg.WorkDir, 0o755); err != nil {
			return "", fmt.Errorf("create exec work dir: %w", err)
		}
	}
	dir, err := os.MkdirTemp(e.cfg.WorkDir, "llm-")
	if err != nil {
		return "", fmt.Errorf("create invocation dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	outputSchema := execTextSchema
	if req.ResponseSchema != "" {
		outputSchema = req.ResponseSchema
	}
	inv := ainvoke.Invocation{
		RunDir:       dir,
		SystemPrompt: execPrompt,
		Input:        req,
		InputSchema:  execInputSchema,
		OutputSchema: outputSchema,
	}
	out, _, exitCode, err := e.runner.Run(ctx, inv, ainvoke.WithStdout(writerOrDiscard(e.cfg.Stdout)), ainvoke.WithStderr(writerOrDiscard(e.cfg.Stderr)))
	if err != nil {
		return "", backendErr(BackendExec, fmt.Errorf("run agent (exit code %d): %w", exitCode, err))
	}
	if req.ResponseSchema != "" {
		return strings.TrimSpace(string(out)), nil
	}

	var resp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		return "", backendErr(BackendExec, fmt.Errorf("decode agent output: %w", err))
	}
	return strings.TrimSpace(resp.Text), nil
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
