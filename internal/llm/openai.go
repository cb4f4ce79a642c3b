package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultTimeout       = 120 * time.Second
)

// OpenAIConfig configures the OpenAI Responses API backend.
type OpenAIConfig struct {
	Model   string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// OpenAI generates completions through the OpenAI Responses API.
type OpenAI struct {
	model  string
	client openai.Client
}

// NewOpenAI constructs an OpenAI backend. httpClient may be nil.
func NewOpenAI(cfg OpenAIConfig, httpClient *http.Client) (*OpenAI, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("openai model is required")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required (set api_key or api_key_env)")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithRequestTimeout(timeout),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &OpenAI{model: model, client: openai.NewClient(opts...)}, nil
}

// Generate implements Generator.
func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	input := make(responses.ResponseInputParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := responses.EasyInputMessageRoleUser
		if m.Role == RoleAssistant {
			role = responses.EasyInputMessageRoleAssistant
		}
		input = append(input, responses.ResponseInputItemParamOfMessage(m.Content, role))
	}

	resp, err := o.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:           o.model,
		Instructions:    openai.String(req.System),
		MaxOutputTokens: openai.Int(int64(req.maxTokens())),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: input,
		},
	})
	if err != nil {
		return "", backendErr(BackendOpenAI, fmt.Errorf("responses.create: %w", err))
	}
	if msg := strings.TrimSpace(resp.Error.Message); msg != "" {
		return "", backendErr(BackendOpenAI, fmt.Errorf("response failed: %s", msg))
	}
	output := strings.TrimSpace(resp.OutputText())
	if output == "" {
		return "", backendErr(BackendOpenAI, fmt.Errorf("response did not contain output text"))
	}
	return output, nil
}
