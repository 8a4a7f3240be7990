// Package parser extracts plain text from property document files. The rest
// of the pipeline treats the source format as opaque text.
package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned when no parser is registered for a format.
var ErrUnsupported = errors.New("parser: unsupported format")

// Parser extracts plain text from one file format family.
type Parser interface {
	SupportedFormats() []string
	Parse(ctx context.Context, path string) (string, error)
}

// Registry maps file extensions to parsers.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry creates a registry with the built-in parsers registered.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	for _, p := range []Parser{&PDFParser{}, &XLSXParser{}, &TextParser{}} {
		for _, f := range p.SupportedFormats() {
			r.parsers[f] = p
		}
	}
	return r
}

// Register adds or replaces the parser for a format.
func (r *Registry) Register(format string, p Parser) {
	r.parsers[strings.ToLower(format)] = p
}

// ExtractText parses the file at path with the parser registered for its
// extension.
func (r *Registry) ExtractText(ctx context.Context, path string) (string, error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	p, ok := r.parsers[format]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, format)
	}
	text, err := p.Parse(ctx, path)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no text extracted from %s", filepath.Base(path))
	}
	return text, nil
}

// TextParser handles plain text and markdown files.
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string { return []string{"txt", "md"} }

func (p *TextParser) Parse(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading text file: %w", err)
	}
	return string(data), nil
}
