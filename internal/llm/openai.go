package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ziadkadry99/econsult/internal/apperr"
)

// ClientOptions describes how to reach an OpenAI-compatible chat or
// embeddings endpoint. When Endpoint is set the client talks Azure OpenAI.
type ClientOptions struct {
	APIKey     string
	Endpoint   string
	APIVersion string
	// Deployment overrides the model name in Azure request paths.
	Deployment string

	// HeliconeKey routes Azure traffic through the Helicone gateway at
	// HeliconeBaseURL. Model is reported to Helicone as the model override.
	HeliconeKey     string
	HeliconeBaseURL string
	Model           string

	HTTPClient *http.Client
}

// NewOpenAIClient builds a go-openai client for plain OpenAI or Azure.
func NewOpenAIClient(opts ClientOptions) *openai.Client {
	if opts.Endpoint == "" {
		cfg := openai.DefaultConfig(opts.APIKey)
		if opts.HTTPClient != nil {
			cfg.HTTPClient = opts.HTTPClient
		}
		return openai.NewClientWithConfig(cfg)
	}

	baseURL := opts.Endpoint
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if opts.HeliconeKey != "" && opts.HeliconeBaseURL != "" {
		baseURL = opts.HeliconeBaseURL
		next := httpClient.Transport
		if next == nil {
			next = http.DefaultTransport
		}
		wrapped := *httpClient
		wrapped.Transport = &heliconeTransport{
			next:        next,
			heliconeKey: opts.HeliconeKey,
			apiBase:     opts.Endpoint,
			model:       opts.Model,
			apiKey:      opts.APIKey,
		}
		httpClient = &wrapped
	}

	cfg := openai.DefaultAzureConfig(opts.APIKey, strings.TrimRight(baseURL, "/"))
	if opts.APIVersion != "" {
		cfg.APIVersion = opts.APIVersion
	}
	if opts.Deployment != "" {
		deployment := opts.Deployment
		cfg.AzureModelMapperFunc = func(string) string { return deployment }
	}
	cfg.HTTPClient = httpClient
	return openai.NewClientWithConfig(cfg)
}

// heliconeTransport adds the Helicone gateway headers to every request.
type heliconeTransport struct {
	next        http.RoundTripper
	heliconeKey string
	apiBase     string
	model       string
	apiKey      string
}

func (t *heliconeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Helicone-Auth", "Bearer "+t.heliconeKey)
	req.Header.Set("Helicone-OpenAI-Api-Base", t.apiBase)
	if t.model != "" {
		req.Header.Set("Helicone-Model-Override", t.model)
	}
	req.Header.Set(openai.AzureAPIKeyHeader, t.apiKey)
	return t.next.RoundTrip(req)
}

// OpenAIProvider implements Provider using the OpenAI Chat Completions API.
// The same type serves Azure deployments; only the client differs.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	name   string
}

// NewOpenAIProvider creates a provider from a configured client.
func NewOpenAIProvider(client *openai.Client, name, model string) *OpenAIProvider {
	return &OpenAIProvider{
		client: client,
		model:  model,
		name:   name,
	}
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	var messages []openai.ChatCompletionMessage
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	apiReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
		TopP:        float32(req.TopP),
	}

	if req.JSONMode {
		apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		details := map[string]any{"provider": p.name, "model": model}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			details["status"] = apiErr.HTTPStatusCode
		}
		return nil, apperr.Wrap(apperr.KindLLM, "chat completion failed", err).WithDetails(details)
	}

	var content, finishReason string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		finishReason = string(resp.Choices[0].FinishReason)
	}

	return &CompletionResponse{
		Content:      content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        resp.Model,
		FinishReason: finishReason,
	}, nil
}
