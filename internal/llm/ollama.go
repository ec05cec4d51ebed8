package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ziadkadry99/econsult/internal/apperr"
)

// maxErrorBody caps how much of an Ollama error body is kept in the error.
const maxErrorBody = 512

// OllamaProvider answers completions from a local Ollama server's /api/chat.
// It is the offline alternative to Azure OpenAI for development.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// NewOllamaProvider talks to the Ollama server at baseURL.
func NewOllamaProvider(baseURL, model string, logger *zap.Logger) *OllamaProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
		logger:  logger,
	}
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options,omitempty"`
	Format   string          `json:"format,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message         ollamaMessage `json:"message"`
	Model           string        `json:"model"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error,omitempty"`
}

// Complete posts one non-streaming chat. JSONMode maps to Ollama's
// format=json.
func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	chat := ollamaChatRequest{
		Model:    model,
		Messages: make([]ollamaMessage, 0, len(req.Messages)),
		Options: ollamaOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			NumPredict:  req.MaxTokens,
		},
	}
	for _, m := range req.Messages {
		chat.Messages = append(chat.Messages, ollamaMessage{Role: string(m.Role), Content: m.Content})
	}
	if req.JSONMode {
		chat.Format = "json"
	}

	body, err := json.Marshal(chat)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindLLM, "encoding ollama request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "invalid ollama endpoint", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindLLM, "ollama request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(raw))
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		p.logger.Warn("ollama chat failed",
			zap.Int("status", resp.StatusCode),
			zap.String("model", model),
			zap.String("error", msg),
		)
		return nil, apperr.Wrap(apperr.KindLLM, "ollama chat failed", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, msg)).
			WithDetails(map[string]any{"status": resp.StatusCode, "model": model})
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Wrap(apperr.KindLLM, "decoding ollama response", err)
	}
	if out.Error != "" {
		return nil, apperr.New(apperr.KindLLM, "ollama chat failed: "+out.Error)
	}

	p.logger.Debug("ollama chat completed",
		zap.String("model", out.Model),
		zap.Int("prompt_tokens", out.PromptEvalCount),
		zap.Int("completion_tokens", out.EvalCount),
	)
	return &CompletionResponse{
		Content:      out.Message.Content,
		InputTokens:  out.PromptEvalCount,
		OutputTokens: out.EvalCount,
		Model:        out.Model,
		FinishReason: out.DoneReason,
	}, nil
}
