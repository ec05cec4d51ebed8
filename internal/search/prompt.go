package search

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ziadkadry99/econsult/internal/llm"
	"github.com/ziadkadry99/econsult/internal/prompts"
)

// Input limits applied when content is placed into a prompt.
const (
	relevancyContentMax = 5000
	summaryTitleMax     = 200
	summaryContentMax   = 3000
)

// combineSystemPrompt appends the stored default system prompts to base.
func combineSystemPrompt(base, defaults string) string {
	if defaults == "" {
		return base
	}
	return base + "\n\n" + defaults
}

func buildRelevancyMessages(set prompts.Set, defaults, question, instructions string, results []Result) []llm.Message {
	system := combineSystemPrompt(set.System, defaults)

	question = prompts.Sanitize(question, prompts.DefaultMaxInput)
	instructions = prompts.Sanitize(instructions, prompts.DefaultMaxInput)

	placeholder := ""
	if instructions != "" {
		placeholder = "Extra instructies van de huisarts: " + instructions
	}

	var sb strings.Builder
	sb.WriteString(prompts.Render(set.UserTemplate, map[string]string{
		"question":                        question,
		"doctor_instructions_placeholder": placeholder,
	}))
	for i, r := range results {
		if r.Content == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n%d. %s\n   URL: %s\n   Inhoud: %s...",
			i+1,
			prompts.Sanitize(r.Title, summaryTitleMax),
			r.URL,
			relevancyPreview(r.Content),
		)
	}

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

func buildSummaryMessages(set prompts.Set, defaults, question, instructions string, relevant []Result) []llm.Message {
	question = prompts.Sanitize(question, prompts.DefaultMaxInput)
	instructions = prompts.Sanitize(instructions, prompts.DefaultMaxInput)

	items := make([]string, 0, len(relevant))
	for i, r := range relevant {
		items = append(items, fmt.Sprintf("%d. %s\n   URL: %s\n   Inhoud: %s",
			i+1,
			prompts.Sanitize(r.Title, summaryTitleMax),
			r.URL,
			prompts.Sanitize(r.Content, summaryContentMax),
		))
	}
	contextBlock := "Relevante informatie gevonden:\n\n" + strings.Join(items, "\n\n")

	system := combineSystemPrompt(set.System, defaults)
	if instructions != "" {
		system += "\n\nExtra huisarts informatie: " + instructions
	}

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: prompts.Render(set.UserTemplate, map[string]string{
			"question": question,
			"context":  contextBlock,
		})},
	}
}

// decodeJSON extracts the outermost JSON object from a model reply, which
// may be wrapped in prose or a code fence.
func decodeJSON(content string, v any) error {
	jsonStr := content
	if idx := strings.Index(jsonStr, "{"); idx >= 0 {
		jsonStr = jsonStr[idx:]
	}
	if idx := strings.LastIndex(jsonStr, "}"); idx >= 0 {
		jsonStr = jsonStr[:idx+1]
	}
	if err := json.Unmarshal([]byte(jsonStr), v); err != nil {
		return fmt.Errorf("decoding model output: %w", err)
	}
	return nil
}

// relevancyPreview is the form of a document's content shown to the model
// in the relevancy prompt.
func relevancyPreview(content string) string {
	return prompts.Sanitize(content, relevancyContentMax)
}

// reconcile maps the model's relevant items back onto the retrieved
// documents so titles, URLs and content come from the store rather than the
// model. Items that match no retrieved document are dropped.
func reconcile(selected []relevantItem, retrieved []Result) []Result {
	out := make([]Result, 0, len(selected))
	seen := make(map[int]bool)
	for _, item := range selected {
		idx := matchResult(item, retrieved)
		if idx < 0 || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, retrieved[idx])
	}
	return out
}

// matchResult finds the retrieved document an item refers to: by fragment
// number, then by URL, then by content compared with the prompt preview.
func matchResult(item relevantItem, retrieved []Result) int {
	if item.Index >= 1 && item.Index <= len(retrieved) && retrieved[item.Index-1].Content != "" {
		return item.Index - 1
	}
	if item.URL != "" {
		for i, r := range retrieved {
			if r.URL == item.URL {
				return i
			}
		}
	}
	needle := normalizeContent(item.Content)
	if needle == "" {
		return -1
	}
	for i, r := range retrieved {
		if r.Content == "" {
			continue
		}
		for _, hay := range []string{normalizeContent(relevancyPreview(r.Content)), normalizeContent(r.Content)} {
			if strings.HasPrefix(hay, needle) || strings.HasPrefix(needle, hay) {
				return i
			}
		}
	}
	return -1
}

// normalizeContent drops the preview ellipsis and collapses whitespace.
func normalizeContent(s string) string {
	s = strings.TrimSuffix(strings.TrimSpace(s), "...")
	return strings.Join(strings.Fields(s), " ")
}

// citedSources keeps the summary's sources that name a relevant document,
// using the stored title and URL.
func citedSources(cited, relevant []Result) []Result {
	out := make([]Result, 0, len(cited))
	seen := make(map[string]bool)
	for _, c := range cited {
		for _, r := range relevant {
			if r.URL == "" || r.URL != c.URL || seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			out = append(out, Result{Title: r.Title, URL: r.URL})
		}
	}
	return out
}
