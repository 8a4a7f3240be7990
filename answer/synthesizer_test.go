package answer

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/abarelabs/proplens/llm"
)

// stubProvider serves canned embeddings by exact text and delegates chat to
// a test function.
type stubProvider struct {
	vectors  map[string][]float32
	chatFn   func(req llm.ChatRequest) (*llm.ChatResponse, error)
	chats    int
	embedErr error
}

func (s *stubProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	s.chats++
	if s.chatFn == nil {
		return &llm.ChatResponse{Content: "ok"}, nil
	}
	return s.chatFn(req)
}

func (s *stubProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.embedErr != nil {
		return nil, s.embedErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := s.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{1, 0}
		}
	}
	return out, nil
}

func TestSynthesizeRanksByQuestionSimilarity(t *testing.T) {
	stub := &stubProvider{
		vectors: map[string][]float32{
			"what is the NOI?":          {1, 0},
			"Zoning permits mixed use.": {0, 1},
			"NOI was $750,000.":         {1, 0},
		},
		chatFn: func(req llm.ChatRequest) (*llm.ChatResponse, error) {
			return &llm.ChatResponse{Content: "The NOI was $750,000."}, nil
		},
	}
	s := New(stub, stub)

	// Candidates arrive in retrieval order with the less relevant one first.
	got, err := s.Synthesize(context.Background(), "what is the NOI?",
		[]string{"Zoning permits mixed use.", "NOI was $750,000."})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	want := "Document 1: NOI was $750,000.\nDocument 2: Zoning permits mixed use."
	if got.Context != want {
		t.Errorf("context = %q, want %q", got.Context, want)
	}
	if got.Answer != "The NOI was $750,000." {
		t.Errorf("answer = %q", got.Answer)
	}
	if got.Confidence <= 0 || got.Confidence > 1 {
		t.Errorf("confidence = %v, want (0, 1]", got.Confidence)
	}
}

func TestSynthesizeNoCandidates(t *testing.T) {
	stub := &stubProvider{}
	s := New(stub, stub)
	if _, err := s.Synthesize(context.Background(), "q", nil); err == nil {
		t.Fatal("expected error for empty candidates")
	}
}

func TestSynthesizeChatErrorPropagates(t *testing.T) {
	stub := &stubProvider{
		chatFn: func(req llm.ChatRequest) (*llm.ChatResponse, error) {
			return nil, errors.New("completion down")
		},
	}
	s := New(stub, stub)
	if _, err := s.Synthesize(context.Background(), "q", []string{"doc"}); err == nil {
		t.Fatal("expected error when completion fails")
	}
}

func TestSynthesizeMarketEnhancement(t *testing.T) {
	stub := &stubProvider{
		chatFn: func(req llm.ChatRequest) (*llm.ChatResponse, error) {
			if strings.Contains(req.Messages[0].Content, "market context") {
				return &llm.ChatResponse{Content: "enhanced answer"}, nil
			}
			return &llm.ChatResponse{Content: "plain answer"}, nil
		},
	}
	lookup := func(question string) (string, bool) {
		return "office vacancy trending down", true
	}
	s := New(stub, stub, WithMarketLookup(lookup))

	got, err := s.Synthesize(context.Background(), "q", []string{"doc"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got.Answer != "enhanced answer" {
		t.Errorf("answer = %q, want enhanced answer", got.Answer)
	}
	if stub.chats != 2 {
		t.Errorf("chat calls = %d, want 2", stub.chats)
	}
}

func TestSynthesizeEnhancementFailureFallsBack(t *testing.T) {
	stub := &stubProvider{
		chatFn: func(req llm.ChatRequest) (*llm.ChatResponse, error) {
			if strings.Contains(req.Messages[0].Content, "market context") {
				return nil, errors.New("enhancement down")
			}
			return &llm.ChatResponse{Content: "plain answer"}, nil
		},
	}
	lookup := func(question string) (string, bool) { return "market data", true }
	s := New(stub, stub, WithMarketLookup(lookup))

	got, err := s.Synthesize(context.Background(), "q", []string{"doc"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got.Answer != "plain answer" {
		t.Errorf("answer = %q, want plain answer fallback", got.Answer)
	}
}

func TestSynthesizeConfidenceEmbedFailureYieldsZero(t *testing.T) {
	// The ranking embed succeeds, then the scoring embed fails.
	calls := 0
	stub := &stubProvider{
		chatFn: func(req llm.ChatRequest) (*llm.ChatResponse, error) {
			return &llm.ChatResponse{Content: "answer"}, nil
		},
	}
	embedOnce := &embedGate{inner: stub, failAfter: 1, calls: &calls}
	s := New(stub, embedOnce)

	got, err := s.Synthesize(context.Background(), "q", []string{"doc"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got.Confidence != 0 {
		t.Errorf("confidence = %v, want 0 on scoring failure", got.Confidence)
	}
}

type embedGate struct {
	inner     llm.Provider
	failAfter int
	calls     *int
}

func (g *embedGate) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return g.inner.Chat(ctx, req)
}

func (g *embedGate) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	*g.calls++
	if *g.calls > g.failAfter {
		return nil, errors.New("embedding down")
	}
	return g.inner.Embed(ctx, texts)
}

func TestConfidenceFormula(t *testing.T) {
	tests := []struct {
		name      string
		relevance float64
		answer    string
		want      float64
	}{
		{"short plain answer", 0.5, "Revenue rose.", 0.308},
		{"zero relevance zero words", 0, "", 0},
		{"capped at one", 1.0, strings.Repeat("99 ", 60), 1.0},
		// 30 words, 30 numeric tokens: the specificity term is 3.0 and is
		// not clamped before the sum.
		{"specificity term unclamped", 0, strings.TrimSpace(strings.Repeat("9 ", 30)), 0.72},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Confidence(tt.relevance, tt.answer)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Confidence(%v, ...) = %v, want %v", tt.relevance, got, tt.want)
			}
		})
	}
}

func TestNumericTokenCounting(t *testing.T) {
	tests := []struct {
		answer string
		want   int
	}{
		{"NOI was $750,000 at 95% occupancy with DSCR 1.25", 3},
		{"no figures here", 0},
		{"rent is $24.50 per square foot", 1},
	}
	for _, tt := range tests {
		got := len(numericTokenRe.FindAllString(tt.answer, -1))
		if got != tt.want {
			t.Errorf("tokens in %q = %d, want %d", tt.answer, got, tt.want)
		}
	}
}
