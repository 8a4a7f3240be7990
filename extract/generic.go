package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const genericRole = `You are a commercial real estate document analyst.
Extract the key facts from the document as a flat JSON object of snake_case field names to values.
Prefer fields like property_type, location, purchase_price, noi, gross_revenue, operating_expenses, square_feet, occupancy_rate.
Return only the JSON object.`

// ChatFunc is the completion collaborator used by the generic extractor.
type ChatFunc func(ctx context.Context, system, user string) (string, error)

// Generic is the completion-backed fallback extractor. It handles every
// document and asks the model for a flat field map.
type Generic struct {
	chat ChatFunc
}

// NewGeneric creates the fallback extractor.
func NewGeneric(chat ChatFunc) *Generic {
	return &Generic{chat: chat}
}

func (*Generic) Name() string { return "generic" }

func (*Generic) CanHandle(content, filename string) bool { return true }

func (g *Generic) Extract(ctx context.Context, content string) (*Result, error) {
	if g.chat == nil {
		return nil, fmt.Errorf("generic extractor has no completion provider")
	}
	raw, err := g.chat(ctx, genericRole, content)
	if err != nil {
		return nil, fmt.Errorf("generic extraction: %w", err)
	}

	fields, err := parseFieldMap(raw)
	if err != nil {
		return nil, fmt.Errorf("generic extraction: %w", err)
	}

	conf := make(map[string]float64, len(fields))
	for key := range fields {
		// Model output carries no per-field signal, score uniformly.
		conf[key] = 0.5
	}

	res := &Result{
		DocType:    "generic",
		Fields:     fields,
		Confidence: conf,
		Risk:       RiskUnknown,
	}
	res.Valid = len(fields) > 0
	if !res.Valid {
		res.Warnings = []string{"model returned no fields"}
	}
	return res, nil
}

func parseFieldMap(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var fields map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &fields); err != nil {
		return nil, fmt.Errorf("decoding field map: %w", err)
	}
	return fields, nil
}

// DefaultRegistry wires the standard extractor order: rent roll, operating
// statement, profit and loss, lease, then the generic fallback.
func DefaultRegistry(chat ChatFunc) *Registry {
	return NewRegistry(
		RentRoll{},
		OperatingStatement{},
		PLStatement{},
		Lease{},
		NewGeneric(chat),
	)
}
