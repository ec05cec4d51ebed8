package search

import "time"

// User-facing messages. The service answers in Dutch.
const (
	NoResultsMessage  = "Geen medische informatie gevonden voor je vraag. Probeer je vraag anders te formuleren of neem contact op met je huisarts."
	NoRelevantMessage = "Geen relevante medische informatie gevonden voor je vraag. Probeer je vraag anders te formuleren of neem contact op met je huisarts."
	ErrorSummary      = "Er is een fout opgetreden bij het verwerken van je vraag."
)

// Pipeline stages, reported to websocket clients and used as metric labels.
const (
	StageVectorSearch   = "vector_search"
	StageRelevancyCheck = "relevancy_check"
	StageSummarizing    = "summarizing"
)

// Request is the POST /api/search body.
type Request struct {
	Query              string `json:"query" validate:"required,min=1,max=500"`
	DoctorInstructions string `json:"doctor_instructions" validate:"max=1000"`
}

// Result is one source document.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content,omitempty"`
}

// LLMOutput is the structured summary returned by the model. SummaryHTML
// is rendered server-side from the Markdown in Summary.
type LLMOutput struct {
	Summary     string   `json:"summary"`
	SourcesUsed []Result `json:"sources_used"`
	SummaryHTML string   `json:"summary_html,omitempty"`
}

// Response is the POST /api/search response body.
type Response struct {
	Success            bool      `json:"success"`
	Query              string    `json:"query"`
	DoctorInstructions string    `json:"doctor_instructions"`
	ErrorMessage       string    `json:"error_message,omitempty"`
	LLMOutput          LLMOutput `json:"llm_output"`
}

func successResponse(req Request, out LLMOutput) *Response {
	if out.SourcesUsed == nil {
		out.SourcesUsed = []Result{}
	}
	return &Response{
		Success:            true,
		Query:              req.Query,
		DoctorInstructions: req.DoctorInstructions,
		LLMOutput:          out,
	}
}

func errorResponse(req Request, message string) *Response {
	return &Response{
		Success:            false,
		Query:              req.Query,
		DoctorInstructions: req.DoctorInstructions,
		ErrorMessage:       message,
		LLMOutput: LLMOutput{
			Summary:     ErrorSummary,
			SourcesUsed: []Result{},
		},
	}
}

// relevantItem is one fragment the model kept. Index is the 1-based
// fragment number from the prompt.
type relevantItem struct {
	Index   int    `json:"index"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// relevancyOutput is the JSON the relevancy prompt asks for.
type relevancyOutput struct {
	RelevantContent []relevantItem `json:"relevant_content"`
}

// Options tunes the pipeline.
type Options struct {
	Limit              int
	VectorTimeout      time.Duration
	RelevancyTimeout   time.Duration
	SummaryTimeout     time.Duration
	RelevancyMaxTokens int
	SummaryMaxTokens   int
	Temperature        float64
	// Model is used for cost estimates and error details in logs only.
	Model string
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Limit:              10,
		VectorTimeout:      30 * time.Second,
		RelevancyTimeout:   30 * time.Second,
		SummaryTimeout:     60 * time.Second,
		RelevancyMaxTokens: 1000,
		SummaryMaxTokens:   2000,
		Temperature:        0.1,
	}
}

// PerformanceInfo is the static GET /api/performance body.
type PerformanceInfo struct {
	AsyncEndpoint           string            `json:"async_endpoint"`
	SearchHistoryEndpoint   string            `json:"search_history_endpoint"`
	WebSocketEndpoint       string            `json:"websocket_endpoint"`
	PerformanceImprovements []string          `json:"performance_improvements"`
	ExpectedPerformanceGain string            `json:"expected_performance_gain"`
	Timeouts                map[string]string `json:"timeouts"`
}
