// Package metadata loads the off-chain provider and service directories.
//
// Each directory is a read-only JSON document fetched at most once per
// process lifetime and indexed by account name. A failed fetch degrades
// to an empty directory: display names then fall back to raw account
// names downstream, never failing an aggregation.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dsphq/dapphub/internal/metrics"
)

// Entry is one directory record describing a provider or service account.
type Entry struct {
	Account     string `json:"account"`
	Name        string `json:"name"`
	Logo        string `json:"logo"`
	Description string `json:"description"`
	Website     string `json:"website"`
}

// Registry serves the two metadata directories.
type Registry struct {
	providersURL string
	servicesURL  string
	client       *http.Client
	logger       *zap.Logger

	providersOnce sync.Once
	providers     map[string]Entry

	servicesOnce sync.Once
	services     map[string]Entry
}

// New creates a Registry reading from the given directory URLs.
func New(providersURL, servicesURL string, logger *zap.Logger) *Registry {
	return &Registry{
		providersURL: providersURL,
		servicesURL:  servicesURL,
		client:       &http.Client{Timeout: 10 * time.Second},
		logger:       logger,
	}
}

// Providers returns the provider directory keyed by account.
func (r *Registry) Providers(ctx context.Context) map[string]Entry {
	r.providersOnce.Do(func() {
		r.providers = r.load(ctx, "providers", r.providersURL)
	})
	return r.providers
}

// Services returns the service directory keyed by account.
func (r *Registry) Services(ctx context.Context) map[string]Entry {
	r.servicesOnce.Do(func() {
		r.services = r.load(ctx, "services", r.servicesURL)
	})
	return r.services
}

func (r *Registry) load(ctx context.Context, registry, url string) map[string]Entry {
	entries, err := r.fetch(ctx, url)
	if err != nil {
		metrics.MetadataFetches.WithLabelValues(registry, "error").Inc()
		r.logger.Warn("metadata registry fetch failed, using empty directory",
			zap.String("registry", registry),
			zap.String("url", url),
			zap.Error(err),
		)
		return map[string]Entry{}
	}
	metrics.MetadataFetches.WithLabelValues(registry, "ok").Inc()

	indexed := make(map[string]Entry, len(entries))
	for _, e := range entries {
		indexed[e.Account] = e
	}
	r.logger.Info("metadata registry loaded",
		zap.String("registry", registry),
		zap.Int("entries", len(indexed)),
	)
	return indexed
}

func (r *Registry) fetch(ctx context.Context, url string) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}

	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode directory: %w", err)
	}
	return entries, nil
}

// FetchJSON retrieves an arbitrary JSON object document, used for the
// package and provider detail URIs published on-chain. Non-object or
// failed responses yield an error; callers treat these as best-effort.
func FetchJSON(ctx context.Context, client *http.Client, url string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}

	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}
