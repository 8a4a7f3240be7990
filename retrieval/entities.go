package retrieval

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
)

// entityExtractionPrompt asks the model for the entities a question refers
// to: property names, addresses, tenants, metric names, dates.
const entityExtractionPrompt = `You are an entity extraction engine for commercial real estate questions.
Extract the entities (property names, addresses, tenant names, financial metric names, locations, dates) that the question refers to.

Return a JSON object with exactly one key:
  "entities" : array of strings

Rules:
- Entity names must be normalised to lowercase.
- If there are none, return an empty array.
- Do NOT include any text outside the JSON object.`

// extractEntities asks the completion collaborator which entities the
// question mentions. Any provider or parse failure is swallowed: graph
// search then simply finds nothing, which matches treating malformed output
// as "no entities found".
func (r *Retriever) extractEntities(ctx context.Context, question string) []string {
	if r.chat == nil {
		return nil
	}
	raw, err := r.chat(ctx, entityExtractionPrompt, question)
	if err != nil {
		slog.Warn("retrieval: entity extraction failed", "error", err)
		return nil
	}
	return parseEntityList(raw)
}

// parseEntityList decodes {"entities": [...]} from raw model output.
// Malformed output yields an empty list, never an error. Models sometimes
// wrap JSON in markdown fences; those are stripped first.
func parseEntityList(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var parsed struct {
		Entities []string `json:"entities"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		slog.Warn("retrieval: malformed entity extraction output", "error", err)
		return nil
	}

	out := make([]string, 0, len(parsed.Entities))
	for _, e := range parsed.Entities {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}
