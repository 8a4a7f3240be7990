// Package proplens is a retrieval and analysis engine for commercial
// property documents. Documents are segmented, embedded into an in-memory
// vector index, and linked into a knowledge graph; questions are answered
// through hybrid retrieval and confidence-scored synthesis. Ingestion runs
// as cancellable background tasks.
package proplens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/abarelabs/proplens/answer"
	"github.com/abarelabs/proplens/extract"
	"github.com/abarelabs/proplens/finance"
	"github.com/abarelabs/proplens/knowledge"
	"github.com/abarelabs/proplens/llm"
	"github.com/abarelabs/proplens/market"
	"github.com/abarelabs/proplens/parser"
	"github.com/abarelabs/proplens/retrieval"
	"github.com/abarelabs/proplens/segment"
	"github.com/abarelabs/proplens/taskqueue"
	"github.com/abarelabs/proplens/vecindex"
)

// embedBatchSize bounds how many chunk texts go into one embedding request.
const embedBatchSize = 32

// Engine is the main entry point.
type Engine interface {
	// Ingest schedules background ingestion of the document at path and
	// returns the task id for status tracking.
	Ingest(ctx context.Context, path string, opts ...IngestOption) (string, error)

	// Ask answers a question over the ingested corpus synchronously.
	Ask(ctx context.Context, question string, opts ...QueryOption) (*answer.Result, error)

	// TaskStatus returns the record for an ingestion task.
	TaskStatus(ctx context.Context, taskID string) (*taskqueue.Record, error)

	// CancelTask cancels a running ingestion task. Unknown ids are a no-op.
	CancelTask(ctx context.Context, taskID string) error

	// CleanupTasks deletes terminal task records older than the configured
	// retention window and reports how many were removed.
	CleanupTasks(ctx context.Context) (int, error)

	// StartCleanupScheduler begins running CleanupTasks on the configured
	// cron schedule.
	StartCleanupScheduler() error

	// Close cancels in-flight tasks and releases resources.
	Close() error
}

// IngestResult is stored on the task record after a successful ingestion.
type IngestResult struct {
	DocumentID string             `json:"document_id"`
	Filename   string             `json:"filename"`
	DocType    string             `json:"doc_type"`
	Chunks     int                `json:"chunks"`
	Fields     map[string]any     `json:"fields,omitempty"`
	Metrics    finance.Metrics    `json:"metrics"`
	Risk       extract.RiskLevel  `json:"risk_profile"`
	Warnings   []string           `json:"warnings,omitempty"`
	Confidence map[string]float64 `json:"confidence_scores,omitempty"`
}

// IngestOption configures ingestion behavior.
type IngestOption func(*ingestOptions)

type ingestOptions struct {
	documentID string
	entities   map[string]any
}

// WithDocumentID overrides the generated document id.
func WithDocumentID(id string) IngestOption {
	return func(o *ingestOptions) { o.documentID = id }
}

// WithEntities adds caller-supplied entities to the knowledge graph
// alongside the extracted ones.
func WithEntities(entities map[string]any) IngestOption {
	return func(o *ingestOptions) { o.entities = entities }
}

// QueryOption configures query behavior.
type QueryOption func(*queryOptions)

type queryOptions struct {
	maxResults int
	mode       retrieval.Mode
}

// WithMaxResults sets the maximum number of chunks to retrieve.
func WithMaxResults(n int) QueryOption {
	return func(o *queryOptions) { o.maxResults = n }
}

// WithMode overrides the retrieval mode for this query.
func WithMode(mode retrieval.Mode) QueryOption {
	return func(o *queryOptions) { o.mode = mode }
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg        Config
	chatLLM    llm.Provider
	embedLLM   llm.Provider
	index      *vecindex.Index
	graph      *knowledge.Graph
	retriever  *retrieval.Retriever
	synth      *answer.Synthesizer
	parsers    *parser.Registry
	extractors *extract.Registry
	cache      *market.Cache
	analyzer   *market.Analyzer
	store      taskqueue.Store
	queue      *taskqueue.Queue
	cleanup    *taskqueue.CleanupScheduler

	// ingestMu serializes all index and graph mutation so concurrent
	// ingestions cannot interleave RelateAll recomputes.
	ingestMu sync.Mutex
}

// New creates an engine with the given configuration.
func New(cfg Config) (Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	chatLLM, err := llm.NewProvider(cfg.Chat)
	if err != nil {
		return nil, fmt.Errorf("creating chat provider: %w", err)
	}
	embedLLM, err := llm.NewProvider(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	var store taskqueue.Store
	if cfg.DBPath != "" {
		store, err = taskqueue.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening task store: %w", err)
		}
	} else {
		store = taskqueue.NewMemoryStore()
	}
	queue := taskqueue.New(store, taskqueue.WithConcurrency(cfg.IngestConcurrency))

	chatFn := func(ctx context.Context, system, user string) (string, error) {
		resp, err := chatLLM.Chat(ctx, llm.ChatRequest{
			Messages: []llm.Message{
				{Role: "system", Content: system},
				{Role: "user", Content: user},
			},
			Temperature: cfg.Temperature,
		})
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}

	index := vecindex.New()
	graph := knowledge.New()
	cache := market.NewCache(cfg.MarketCacheSize, cfg.MarketCacheTTL)

	e := &engine{
		cfg:        cfg,
		chatLLM:    chatLLM,
		embedLLM:   embedLLM,
		index:      index,
		graph:      graph,
		retriever:  retrieval.New(index, graph, chatFn),
		parsers:    parser.NewRegistry(),
		extractors: extract.DefaultRegistry(extract.ChatFunc(chatFn)),
		cache:      cache,
		analyzer:   market.NewAnalyzer(chatLLM, cache),
		store:      store,
		queue:      queue,
	}
	e.synth = answer.New(chatLLM, embedLLM,
		answer.WithTemperature(cfg.Temperature),
		answer.WithMaxTokens(cfg.MaxAnswerTokens),
		answer.WithMarketLookup(func(question string) (string, bool) {
			entry, ok := cache.Match(question)
			if !ok {
				return "", false
			}
			return entry.Data, true
		}),
	)

	if cfg.CleanupSpec != "" {
		e.cleanup, err = taskqueue.NewCleanupScheduler(queue, cfg.CleanupSpec, cfg.TaskRetentionDays)
		if err != nil {
			queue.Close()
			store.Close()
			return nil, err
		}
	}
	return e, nil
}

func (e *engine) Ingest(ctx context.Context, path string, opts ...IngestOption) (string, error) {
	o := ingestOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.documentID == "" {
		o.documentID = uuid.NewString()
	}

	taskID := uuid.NewString()
	work := func(taskCtx context.Context) (any, error) {
		return e.ingest(taskCtx, path, o)
	}
	if err := e.queue.Add(ctx, taskID, work, nil); err != nil {
		return "", err
	}
	return taskID, nil
}

// ingest is the background ingestion pipeline: parse, structured extraction,
// segmentation, embedding, indexing, graph rebuild, financial summary.
func (e *engine) ingest(ctx context.Context, path string, o ingestOptions) (*IngestResult, error) {
	start := time.Now()
	filename := filepath.Base(path)

	text, err := e.parsers.ExtractText(ctx, path)
	if err != nil {
		if errors.Is(err, parser.ErrUnsupported) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
		}
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	res := &IngestResult{DocumentID: o.documentID, Filename: filename}

	extraction, err := e.extractors.Extract(ctx, text, filename)
	if err != nil {
		// Structured extraction is an enrichment; the document still gets
		// indexed for retrieval.
		slog.Warn("ingest: structured extraction failed", "filename", filename, "error", err)
	} else {
		res.DocType = extraction.DocType
		res.Fields = extraction.Fields
		res.Risk = extraction.Risk
		res.Confidence = extraction.Confidence
		if !extraction.Valid {
			for _, w := range extraction.Warnings {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%v: %s", ErrValidationFailed, w))
			}
		}
	}

	chunks, err := segment.Segment(text, e.cfg.ChunkWindow, e.cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		chunks[i].ID = fmt.Sprintf("%s:%d", o.documentID, i)
		chunks[i].Metadata["document_id"] = o.documentID
		chunks[i].Metadata["filename"] = filename
	}

	if err := e.embedChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	entities := map[string]any{}
	if extraction != nil {
		for k, v := range extraction.Fields {
			entities[k] = v
		}
	}
	for k, v := range o.entities {
		entities[k] = v
	}

	e.ingestMu.Lock()
	for _, c := range chunks {
		e.index.Insert(c.ID, c.Embedding, c.Text, c.Metadata)
	}
	e.graph.AddChunks(chunks)
	e.graph.AddEntities(entities)
	e.graph.RelateAll()
	e.ingestMu.Unlock()

	res.Chunks = len(chunks)
	res.Metrics = finance.Compute(finance.InputsFromFields(res.Fields))
	e.validateAssumptions(res)
	e.warmMarket(ctx, res.Fields)

	slog.Info("ingest: document indexed",
		"document_id", o.documentID, "filename", filename, "doc_type", res.DocType,
		"chunks", len(chunks), "elapsed", time.Since(start).Round(time.Millisecond))
	return res, nil
}

// embedChunks requests embeddings in batches, batches running concurrently.
func (e *engine) embedChunks(ctx context.Context, chunks []segment.Chunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for lo := 0; lo < len(chunks); lo += embedBatchSize {
		hi := min(lo+embedBatchSize, len(chunks))
		batch := chunks[lo:hi]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Text
			}
			embs, err := e.embedLLM.Embed(gctx, texts)
			if err != nil {
				return err
			}
			if len(embs) != len(batch) {
				return fmt.Errorf("embedding count mismatch: got %d, want %d", len(embs), len(batch))
			}
			for i := range batch {
				batch[i].Embedding = embs[i]
			}
			return nil
		})
	}
	return g.Wait()
}

// validateAssumptions runs underwriting checks over extracted assumption
// fields, recording violations as warnings.
func (e *engine) validateAssumptions(res *IngestResult) {
	pick := func(key string) float64 {
		if v, ok := res.Fields[key]; ok {
			if f, ok := finance.ParseAmount(v); ok {
				return f
			}
		}
		return 0
	}
	a := finance.Assumptions{
		RentGrowth:  pick("rent_growth"),
		VacancyRate: pick("vacancy_rate"),
		CapRate:     pick("cap_rate"),
	}
	if a == (finance.Assumptions{}) {
		if occ := pick("occupancy_rate"); occ > 0 {
			a.VacancyRate = 100 - occ
		}
	}
	if ok, warnings := finance.Validate(a); !ok {
		for _, w := range warnings {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%v: %s", ErrValidationFailed, w))
		}
	}
}

// warmMarket best-effort populates the market cache for the document's
// property type and location.
func (e *engine) warmMarket(ctx context.Context, fields map[string]any) {
	propertyType, _ := fields["property_type"].(string)
	location, _ := fields["location"].(string)
	e.analyzer.Warm(ctx, propertyType, location)
}

func (e *engine) Ask(ctx context.Context, question string, opts ...QueryOption) (*answer.Result, error) {
	o := queryOptions{
		maxResults: e.cfg.MaxResults,
		mode:       retrieval.Mode(e.cfg.RetrievalMode),
	}
	for _, opt := range opts {
		opt(&o)
	}

	embs, err := e.embedLLM.Embed(ctx, []string{question})
	if err != nil || len(embs) != 1 {
		return nil, fmt.Errorf("%w: embedding question: %v", ErrEmbeddingFailed, err)
	}

	candidates, err := e.retriever.Retrieve(ctx, question, embs[0], o.maxResults, o.mode)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w for question %q", ErrNoResults, question)
	}

	result, err := e.synth.Synthesize(ctx, question, candidates)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}
	return result, nil
}

func (e *engine) TaskStatus(ctx context.Context, taskID string) (*taskqueue.Record, error) {
	rec, err := e.queue.Status(ctx, taskID)
	if err != nil {
		if errors.Is(err, taskqueue.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}
		return nil, err
	}
	return rec, nil
}

func (e *engine) CancelTask(ctx context.Context, taskID string) error {
	return e.queue.Cancel(ctx, taskID)
}

func (e *engine) CleanupTasks(ctx context.Context) (int, error) {
	return e.queue.CleanupOld(ctx, e.cfg.TaskRetentionDays)
}

func (e *engine) StartCleanupScheduler() error {
	if e.cleanup == nil {
		return fmt.Errorf("%w: cleanup_spec is empty", ErrInvalidConfig)
	}
	e.cleanup.Start()
	return nil
}

func (e *engine) Close() error {
	if e.cleanup != nil {
		e.cleanup.Stop()
	}
	e.queue.Close()
	return e.store.Close()
}
