package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GenAI generates completions with Gemini models.
type GenAI struct {
	model  string
	client *genai.Client
}

// NewGenAI constructs a Gemini backend.
func NewGenAI(ctx context.Context, model, apiKey string) (*GenAI, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("genai model is required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("genai api key is required (set api_key or api_key_env)")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GenAI{model: model, client: client}, nil
}

// Generate implements Generator.
func (g *GenAI) Generate(ctx context.Context, req Request) (string, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.Role(role)))
	}

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.maxTokens()),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.ResponseSchema != "" {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", backendErr(BackendGenAI, fmt.Errorf("generate content: %w", err))
	}
	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return "", backendErr(BackendGenAI, fmt.Errorf("response did not contain text"))
	}
	return out, nil
}
