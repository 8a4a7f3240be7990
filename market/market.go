// Package market caches and produces market context for property analysis.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/abarelabs/proplens/llm"
)

const analysisRole = `You are a commercial real estate market analyst.
Provide a concise market analysis covering vacancy trends, rent growth, cap rate environment, and demand drivers.
Base it on general market knowledge and state the property type and location you are analysing.`

// Entry is one cached market analysis keyed by property type and location.
type Entry struct {
	PropertyType string    `json:"property_type"`
	Location     string    `json:"location"`
	Timestamp    time.Time `json:"timestamp"`
	Data         string    `json:"data"`
}

// Cache holds market analyses with a TTL. Writes to the same property type
// and location overwrite the previous entry.
type Cache struct {
	lru *expirable.LRU[string, Entry]
}

// NewCache creates a cache holding up to size entries for ttl each.
func NewCache(size int, ttl time.Duration) *Cache {
	return &Cache{lru: expirable.NewLRU[string, Entry](size, nil, ttl)}
}

func cacheKey(propertyType, location string) string {
	return strings.ToLower(propertyType) + "|" + strings.ToLower(location)
}

// Put stores an analysis, stamping it with the current time.
func (c *Cache) Put(propertyType, location, data string) {
	c.lru.Add(cacheKey(propertyType, location), Entry{
		PropertyType: propertyType,
		Location:     location,
		Timestamp:    time.Now(),
		Data:         data,
	})
}

// Get returns the cached analysis for the exact property type and location.
func (c *Cache) Get(propertyType, location string) (Entry, bool) {
	return c.lru.Get(cacheKey(propertyType, location))
}

// Match returns the most recent cached entry whose property type or location
// occurs in the question, case-insensitively.
func (c *Cache) Match(question string) (Entry, bool) {
	q := strings.ToLower(question)
	var best Entry
	found := false
	for _, e := range c.lru.Values() {
		if e.PropertyType != "" && strings.Contains(q, strings.ToLower(e.PropertyType)) ||
			e.Location != "" && strings.Contains(q, strings.ToLower(e.Location)) {
			if !found || e.Timestamp.After(best.Timestamp) {
				best = e
				found = true
			}
		}
	}
	return best, found
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Analyzer produces market analyses via the completion provider, caching
// results.
type Analyzer struct {
	chat  llm.Provider
	cache *Cache
}

// NewAnalyzer creates an analyzer writing into cache.
func NewAnalyzer(chat llm.Provider, cache *Cache) *Analyzer {
	return &Analyzer{chat: chat, cache: cache}
}

// Analyze returns the market analysis for a property type and location,
// serving from cache when a live entry exists.
func (a *Analyzer) Analyze(ctx context.Context, propertyType, location string) (Entry, error) {
	if e, ok := a.cache.Get(propertyType, location); ok {
		return e, nil
	}

	user := fmt.Sprintf("Analyse the market for %s properties in %s.", propertyType, location)
	resp, err := a.chat.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: analysisRole},
			{Role: "user", Content: user},
		},
		Temperature: 0.3,
		MaxTokens:   1000,
	})
	if err != nil {
		return Entry{}, fmt.Errorf("market analysis for %s/%s: %w", propertyType, location, err)
	}

	a.cache.Put(propertyType, location, strings.TrimSpace(resp.Content))
	e, _ := a.cache.Get(propertyType, location)
	slog.Debug("market: analysis cached", "property_type", propertyType, "location", location)
	return e, nil
}

// Warm runs Analyze and logs instead of failing. Used during ingestion where
// market context is a best-effort enrichment.
func (a *Analyzer) Warm(ctx context.Context, propertyType, location string) {
	if propertyType == "" || location == "" {
		return
	}
	if _, err := a.Analyze(ctx, propertyType, location); err != nil {
		slog.Warn("market: cache warm failed", "property_type", propertyType, "location", location, "error", err)
	}
}
