// Package search answers questions by retrieving documents from the vector
// store, filtering them for relevance with the LLM and summarising the rest.
package search

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ziadkadry99/econsult/internal/apperr"
	"github.com/ziadkadry99/econsult/internal/history"
	"github.com/ziadkadry99/econsult/internal/identity"
	"github.com/ziadkadry99/econsult/internal/llm"
	"github.com/ziadkadry99/econsult/internal/metrics"
	"github.com/ziadkadry99/econsult/internal/prompts"
	"github.com/ziadkadry99/econsult/internal/validate"
	"github.com/ziadkadry99/econsult/internal/vectordb"
)

// SettingsSource supplies the stored default system prompts.
type SettingsSource interface {
	DefaultSystemPrompts(ctx context.Context) (string, error)
}

// HistoryRecorder persists finished searches.
type HistoryRecorder interface {
	Record(ctx context.Context, entry history.Entry) error
}

// PromptSource returns a prompt set by name.
type PromptSource interface {
	Get(promptType string) (prompts.Set, error)
}

// Deps are the collaborators of a Service. History and Metrics are optional.
type Deps struct {
	Store    vectordb.VectorStore
	LLM      llm.Provider
	Prompts  PromptSource
	Settings SettingsSource
	History  HistoryRecorder
	Metrics  *metrics.Collector
}

// Service runs the search pipeline.
type Service struct {
	deps     Deps
	opts     Options
	logger   *zap.Logger
	tracer   trace.Tracer
	markdown goldmark.Markdown
}

// NewService creates a Service.
func NewService(deps Deps, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		deps:   deps,
		opts:   opts,
		logger: logger,
		tracer: otel.Tracer("github.com/ziadkadry99/econsult/internal/search"),
		markdown: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				highlighting.NewHighlighting(
					highlighting.WithStyle("github"),
				),
			),
		),
	}
}

// StageFunc is notified as the pipeline enters each stage.
type StageFunc func(stage string)

// Search runs the full pipeline for one request. Outcomes the user should
// see (nothing found, nothing relevant) are returned as a Response with
// Success false; infrastructure failures are returned as errors.
func (s *Service) Search(ctx context.Context, ident identity.Context, req Request) (*Response, error) {
	return s.SearchStream(ctx, ident, req, nil)
}

// SearchStream is Search with stage notifications.
func (s *Service) SearchStream(ctx context.Context, ident identity.Context, req Request, onStage StageFunc) (*Response, error) {
	if onStage == nil {
		onStage = func(string) {}
	}
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "search.Search", trace.WithAttributes(
		attribute.String("user.identity", ident.UserIdentity),
		attribute.Int("query.length", len(req.Query)),
	))
	defer span.End()

	resp, err := s.run(ctx, req, onStage)

	outcome := metrics.OutcomeSuccess
	switch {
	case err != nil:
		outcome = metrics.OutcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case !resp.Success && resp.ErrorMessage == NoResultsMessage:
		outcome = metrics.OutcomeNoResults
	case !resp.Success:
		outcome = metrics.OutcomeNotRelevant
	}
	s.deps.Metrics.SearchOutcome(outcome)
	span.SetAttributes(attribute.String("search.outcome", outcome))

	// Rejected requests never reached the pipeline.
	if !apperr.IsKind(err, apperr.KindValidation) {
		s.record(ctx, ident, req, resp, err, time.Since(start))
	}
	return resp, err
}

func (s *Service) run(ctx context.Context, req Request, onStage StageFunc) (*Response, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	s.logger.Info("processing search request", zap.String("query", req.Query))
	if prompts.ContainsInjection(req.Query) || prompts.ContainsInjection(req.DoctorInstructions) {
		s.logger.Warn("potentially dangerous pattern detected, redacting", zap.String("query", req.Query))
	}

	onStage(StageVectorSearch)
	retrieved, err := s.vectorSearch(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	if len(retrieved) == 0 {
		s.logger.Info("vector search returned no documents", zap.String("query", req.Query))
		return errorResponse(req, NoResultsMessage), nil
	}

	defaults := s.defaultSystemPrompts(ctx)

	onStage(StageRelevancyCheck)
	relevant, err := s.relevancyCheck(ctx, req, defaults, retrieved)
	if err != nil {
		return nil, err
	}
	if len(relevant) == 0 {
		s.logger.Info("no relevant content found", zap.String("query", req.Query))
		return errorResponse(req, NoRelevantMessage), nil
	}

	onStage(StageSummarizing)
	out, err := s.summarize(ctx, req, defaults, relevant)
	if err != nil {
		return nil, err
	}
	return successResponse(req, out), nil
}

func (s *Service) vectorSearch(ctx context.Context, query string) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.VectorTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "search."+StageVectorSearch)
	defer span.End()
	defer s.observe(StageVectorSearch, time.Now())

	hits, err := s.deps.Store.Search(ctx, query, s.opts.Limit)
	if err != nil {
		// A deadline hit inside the store may surface as a driver error.
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = errors.Join(ctxErr, err)
		}
		var appErr *apperr.Error
		if !errors.As(err, &appErr) {
			err = apperr.Wrap(apperr.KindVectorSearch, "Unexpected vector search error", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "vector search failed")
		s.logger.Error("vector search failed", zap.Error(err))
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			Title:   h.Document.Title,
			URL:     h.Document.URL,
			Content: h.Document.Content,
		})
	}
	span.SetAttributes(attribute.Int("results", len(results)))
	s.logger.Info("vector search completed", zap.Int("results", len(results)))
	return results, nil
}

func (s *Service) relevancyCheck(ctx context.Context, req Request, defaults string, retrieved []Result) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RelevancyTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "search."+StageRelevancyCheck)
	defer span.End()
	defer s.observe(StageRelevancyCheck, time.Now())

	set, err := s.deps.Prompts.Get(prompts.TypeRelevancyCheck)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "relevancy prompt unavailable", err)
	}

	resp, err := s.deps.LLM.Complete(ctx, llm.CompletionRequest{
		Messages:    buildRelevancyMessages(set, defaults, req.Query, req.DoctorInstructions, retrieved),
		MaxTokens:   s.opts.RelevancyMaxTokens,
		Temperature: s.opts.Temperature,
		TopP:        1.0,
		JSONMode:    true,
	})
	if err != nil {
		return nil, s.llmError(ctx, span, apperr.KindLLMRelevancy, "Content relevancy check failed", err)
	}

	var out relevancyOutput
	if err := decodeJSON(resp.Content, &out); err != nil {
		return nil, s.llmError(ctx, span, apperr.KindLLMRelevancy, "Content relevancy check failed", err)
	}

	relevant := reconcile(out.RelevantContent, retrieved)
	span.SetAttributes(attribute.Int("relevant", len(relevant)))
	s.logCompletion(StageRelevancyCheck, resp)
	return relevant, nil
}

func (s *Service) summarize(ctx context.Context, req Request, defaults string, relevant []Result) (LLMOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.SummaryTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "search."+StageSummarizing)
	defer span.End()
	defer s.observe(StageSummarizing, time.Now())

	set, err := s.deps.Prompts.Get(prompts.TypeSummarization)
	if err != nil {
		return LLMOutput{}, apperr.Wrap(apperr.KindConfiguration, "summarization prompt unavailable", err)
	}

	resp, err := s.deps.LLM.Complete(ctx, llm.CompletionRequest{
		Messages:    buildSummaryMessages(set, defaults, req.Query, req.DoctorInstructions, relevant),
		MaxTokens:   s.opts.SummaryMaxTokens,
		Temperature: s.opts.Temperature,
		TopP:        1.0,
		JSONMode:    true,
	})
	if err != nil {
		return LLMOutput{}, s.llmError(ctx, span, apperr.KindLLMSummary, "LLM summary failed", err)
	}

	var out LLMOutput
	if err := decodeJSON(resp.Content, &out); err != nil {
		return LLMOutput{}, s.llmError(ctx, span, apperr.KindLLMSummary, "LLM summary failed", err)
	}
	if out.Summary == "" {
		return LLMOutput{}, s.llmError(ctx, span, apperr.KindLLMSummary, "LLM summary failed", errors.New("empty summary"))
	}
	cited := citedSources(out.SourcesUsed, relevant)
	if len(cited) < len(out.SourcesUsed) {
		s.logger.Warn("dropping summary sources that were not retrieved",
			zap.Int("returned", len(out.SourcesUsed)),
			zap.Int("kept", len(cited)),
		)
	}
	out.SourcesUsed = cited

	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(out.Summary), &buf); err != nil {
		s.logger.Warn("rendering summary markdown", zap.Error(err))
	} else {
		out.SummaryHTML = buf.String()
	}

	s.logCompletion(StageSummarizing, resp)
	return out, nil
}

func (s *Service) llmError(ctx context.Context, span trace.Span, kind apperr.Kind, msg string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = errors.Join(ctxErr, err)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	appErr := apperr.Wrap(kind, msg, err).WithDetails(map[string]any{
		"model":     s.opts.Model,
		"timed_out": errors.Is(err, context.DeadlineExceeded),
	})
	s.logger.Error(msg, zap.Error(err), zap.Any("details", appErr.Details))
	return appErr
}

func (s *Service) defaultSystemPrompts(ctx context.Context) string {
	if s.deps.Settings == nil {
		return ""
	}
	defaults, err := s.deps.Settings.DefaultSystemPrompts(ctx)
	if err != nil {
		s.logger.Warn("loading default system prompts", zap.Error(err))
		return ""
	}
	return defaults
}

func (s *Service) observe(stage string, start time.Time) {
	s.deps.Metrics.ObserveStage(stage, time.Since(start))
}

func (s *Service) logCompletion(stage string, resp *llm.CompletionResponse) {
	s.logger.Info("llm completion",
		zap.String("stage", stage),
		zap.Int("tokens", resp.TotalTokens()),
		zap.Float64("estimated_cost_usd", llm.EstimateCost(s.opts.Model, resp.InputTokens, resp.OutputTokens)),
	)
}

func (s *Service) record(ctx context.Context, ident identity.Context, req Request, resp *Response, err error, elapsed time.Duration) {
	if s.deps.History == nil || ident.UserIdentity == "" {
		return
	}
	entry := history.Entry{
		UserIdentity:       ident.UserIdentity,
		ClusterID:          ident.ClusterID,
		Query:              req.Query,
		DoctorInstructions: req.DoctorInstructions,
		DurationMS:         elapsed.Milliseconds(),
	}
	switch {
	case err != nil:
		_, entry.ErrorMessage = HTTPError(err)
	case resp != nil:
		entry.Success = resp.Success
		entry.ErrorMessage = resp.ErrorMessage
		if resp.Success {
			entry.Summary = resp.LLMOutput.Summary
			for _, src := range resp.LLMOutput.SourcesUsed {
				entry.Sources = append(entry.Sources, history.Source{Title: src.Title, URL: src.URL})
			}
		}
	}
	if err := s.deps.History.Record(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("recording search history", zap.Error(err))
	}
}
