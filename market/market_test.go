package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/abarelabs/proplens/llm"
)

type stubChat struct {
	content string
	err     error
	calls   int
}

func (s *stubChat) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &llm.ChatResponse{Content: s.content}, nil
}

func (s *stubChat) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func TestCachePutGet(t *testing.T) {
	c := NewCache(8, time.Hour)
	c.Put("office", "Austin, TX", "first")
	c.Put("office", "Austin, TX", "second")

	e, ok := c.Get("Office", "austin, tx")
	if !ok {
		t.Fatal("expected cache hit with case-insensitive key")
	}
	if e.Data != "second" {
		t.Errorf("Data = %q, want last write to win", e.Data)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(8, 10*time.Millisecond)
	c.Put("retail", "Dallas, TX", "data")
	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("retail", "Dallas, TX"); ok {
		t.Error("expected entry to expire")
	}
}

func TestCacheMatch(t *testing.T) {
	c := NewCache(8, time.Hour)
	c.Put("office", "Austin", "austin office data")
	c.Put("retail", "Dallas", "dallas retail data")

	e, ok := c.Match("What is the cap rate for office buildings?")
	if !ok {
		t.Fatal("expected match on property type")
	}
	if e.Data != "austin office data" {
		t.Errorf("Data = %q", e.Data)
	}

	e, ok = c.Match("How is the Dallas market doing?")
	if !ok {
		t.Fatal("expected match on location")
	}
	if e.Data != "dallas retail data" {
		t.Errorf("Data = %q", e.Data)
	}

	if _, ok := c.Match("tell me about zoning"); ok {
		t.Error("expected no match")
	}
}

func TestAnalyzeCachesResult(t *testing.T) {
	chat := &stubChat{content: "vacancy is trending down"}
	cache := NewCache(8, time.Hour)
	a := NewAnalyzer(chat, cache)

	e, err := a.Analyze(context.Background(), "office", "Austin, TX")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if e.Data != "vacancy is trending down" {
		t.Errorf("Data = %q", e.Data)
	}

	if _, err := a.Analyze(context.Background(), "office", "Austin, TX"); err != nil {
		t.Fatalf("Analyze (cached): %v", err)
	}
	if chat.calls != 1 {
		t.Errorf("chat calls = %d, want 1 (second call served from cache)", chat.calls)
	}
}

func TestAnalyzeError(t *testing.T) {
	chat := &stubChat{err: errors.New("completion down")}
	a := NewAnalyzer(chat, NewCache(8, time.Hour))
	if _, err := a.Analyze(context.Background(), "office", "Austin"); err == nil {
		t.Fatal("expected error when completion fails")
	}
}

func TestWarmSwallowsErrors(t *testing.T) {
	chat := &stubChat{err: errors.New("completion down")}
	a := NewAnalyzer(chat, NewCache(8, time.Hour))
	a.Warm(context.Background(), "office", "Austin")
	a.Warm(context.Background(), "", "")
	if chat.calls != 1 {
		t.Errorf("chat calls = %d, want 1 (blank keys skipped)", chat.calls)
	}
}
