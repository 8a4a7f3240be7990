// Package extract pulls structured fields out of raw property document text.
// Type-specific extractors are tried in registration order; the first whose
// CanHandle accepts the document wins, with a completion-backed generic
// extractor as the fallback.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/abarelabs/proplens/finance"
)

// RiskLevel classifies the extracted document's risk profile.
type RiskLevel string

const (
	RiskLow     RiskLevel = "low"
	RiskMedium  RiskLevel = "medium"
	RiskHigh    RiskLevel = "high"
	RiskUnknown RiskLevel = "unknown"
)

// Result is the outcome of one structured extraction. Validation failures
// are warnings on the result, not errors; extraction that produced anything
// at all succeeds.
type Result struct {
	DocType    string             `json:"doc_type"`
	Fields     map[string]any     `json:"fields"`
	Valid      bool               `json:"valid"`
	Warnings   []string           `json:"warnings,omitempty"`
	Confidence map[string]float64 `json:"confidence_scores,omitempty"`
	Risk       RiskLevel          `json:"risk_profile"`
}

// Extractor is a swappable document-type extractor. CanHandle inspects
// content and filename; Extract returns the fields plus validation and
// risk assessment.
type Extractor interface {
	Name() string
	CanHandle(content, filename string) bool
	Extract(ctx context.Context, content string) (*Result, error)
}

// Registry holds extractors in priority order.
type Registry struct {
	extractors []Extractor
}

// NewRegistry creates a registry trying extractors in the given order.
func NewRegistry(extractors ...Extractor) *Registry {
	return &Registry{extractors: extractors}
}

// Register appends an extractor at the lowest priority.
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
}

// Extract runs the first extractor that can handle the document.
func (r *Registry) Extract(ctx context.Context, content, filename string) (*Result, error) {
	for _, e := range r.extractors {
		if !e.CanHandle(content, filename) {
			continue
		}
		slog.Debug("extract: extractor selected", "extractor", e.Name(), "filename", filename)
		return e.Extract(ctx, content)
	}
	return nil, fmt.Errorf("no extractor can handle %q", filename)
}

// filenameHasAny reports whether the lowercased filename contains any term.
func filenameHasAny(filename string, terms ...string) bool {
	lower := strings.ToLower(filename)
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// contentMatchesAny reports whether any pattern matches the lowercased
// content.
func contentMatchesAny(content string, patterns ...*regexp.Regexp) bool {
	lower := strings.ToLower(content)
	for _, p := range patterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}

// findAmount returns the first capture of the first matching pattern,
// parsed as an amount.
func findAmount(content string, patterns ...*regexp.Regexp) (float64, bool) {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(content); len(m) > 1 {
			if f, ok := finance.ParseAmount(m[1]); ok {
				return f, true
			}
		}
	}
	return 0, false
}

// findText returns the first capture of the first matching pattern, trimmed.
func findText(content string, patterns ...*regexp.Regexp) (string, bool) {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(content); len(m) > 1 {
			if s := strings.TrimSpace(m[1]); s != "" {
				return s, true
			}
		}
	}
	return "", false
}
