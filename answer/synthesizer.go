// Package answer turns retrieved candidate chunks into a grounded,
// confidence-scored answer.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/abarelabs/proplens/llm"
	"github.com/abarelabs/proplens/vecindex"
)

const systemRole = `You are an expert commercial real estate analyst.
Answer the question using ONLY the provided context documents.
Cite concrete figures from the context where available. If the context does not contain the answer, say so.`

const enhanceRole = `You are an expert commercial real estate analyst.
Improve the draft answer below by weaving in the current market context where it is relevant.
Do not contradict or remove figures from the draft. Return only the improved answer.`

// MarketLookup returns cached market context for a question, if any.
type MarketLookup func(question string) (string, bool)

// Result is a synthesized answer with the context it was grounded on and a
// self-reported confidence score in [0, 1].
type Result struct {
	Answer     string  `json:"answer"`
	Context    string  `json:"context"`
	Confidence float64 `json:"confidence"`
}

// Synthesizer builds answers from retrieved candidates. The chat provider
// generates the answer; the embed provider re-ranks candidates and scores
// the result.
type Synthesizer struct {
	chat        llm.Provider
	embed       llm.Provider
	market      MarketLookup
	temperature float64
	maxTokens   int
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithTemperature sets the completion temperature.
func WithTemperature(t float64) Option {
	return func(s *Synthesizer) { s.temperature = t }
}

// WithMaxTokens sets the completion token limit.
func WithMaxTokens(n int) Option {
	return func(s *Synthesizer) { s.maxTokens = n }
}

// WithMarketLookup enables the best-effort market enhancement pass.
func WithMarketLookup(fn MarketLookup) Option {
	return func(s *Synthesizer) { s.market = fn }
}

// New creates a synthesizer backed by the given providers.
func New(chat, embed llm.Provider, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		chat:        chat,
		embed:       embed,
		temperature: 0.3,
		maxTokens:   1000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize re-ranks candidates by similarity to the question, builds a
// numbered context block, asks the completion provider for an answer, and
// scores it. An available market-context entry triggers a second completion
// that enhances the answer; that pass is best-effort and falls back to the
// plain answer on any failure.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, candidates []string) (*Result, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no candidate documents to synthesize from")
	}

	ranked, err := s.rank(ctx, question, candidates)
	if err != nil {
		return nil, fmt.Errorf("ranking candidates: %w", err)
	}

	contextBlock := buildContext(ranked)
	user := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextBlock, question)

	resp, err := s.chat.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: systemRole},
			{Role: "user", Content: user},
		},
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}
	ans := strings.TrimSpace(resp.Content)

	if s.market != nil {
		if marketData, ok := s.market(question); ok {
			ans = s.enhance(ctx, ans, marketData)
		}
	}

	return &Result{
		Answer:     ans,
		Context:    contextBlock,
		Confidence: s.scoreConfidence(ctx, ans, contextBlock),
	}, nil
}

// rank re-embeds the question and candidates in one batch and sorts
// candidates by descending cosine similarity to the question. Ties keep
// retrieval order.
func (s *Synthesizer) rank(ctx context.Context, question string, candidates []string) ([]string, error) {
	texts := append([]string{question}, candidates...)
	embs, err := s.embed.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(embs) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(embs), len(texts))
	}

	qEmb := embs[0]
	type scored struct {
		text  string
		score float64
	}
	ranked := make([]scored, len(candidates))
	for i, c := range candidates {
		ranked[i] = scored{text: c, score: vecindex.Cosine(qEmb, embs[i+1])}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.text
	}
	return out, nil
}

func buildContext(ranked []string) string {
	var b strings.Builder
	for i, text := range ranked {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Document %d: %s", i+1, text)
	}
	return b.String()
}

// enhance issues the market-context completion. Any failure returns the
// original answer unchanged.
func (s *Synthesizer) enhance(ctx context.Context, ans, marketData string) string {
	user := fmt.Sprintf("Draft answer:\n%s\n\nMarket context:\n%s", ans, marketData)
	resp, err := s.chat.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: enhanceRole},
			{Role: "user", Content: user},
		},
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		slog.Warn("answer: market enhancement failed, keeping plain answer", "error", err)
		return ans
	}
	enhanced := strings.TrimSpace(resp.Content)
	if enhanced == "" {
		return ans
	}
	return enhanced
}

// scoreConfidence embeds the answer and context and applies the confidence
// formula. Scoring is best effort: an embedding failure yields 0 rather than
// losing the answer.
func (s *Synthesizer) scoreConfidence(ctx context.Context, ans, contextBlock string) float64 {
	embs, err := s.embed.Embed(ctx, []string{ans, contextBlock})
	if err != nil || len(embs) != 2 {
		slog.Warn("answer: confidence scoring failed", "error", err)
		return 0
	}
	return Confidence(vecindex.Cosine(embs[0], embs[1]), ans)
}
