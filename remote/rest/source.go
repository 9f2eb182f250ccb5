// Package rest implements remote.Source over a JSON HTTP API.
//
// Expected endpoints, relative to the base URL:
//
//	GET /records                    full record set
//	GET /records?since=<RFC3339>    incremental record set
//	GET /records?q=<query>          server-side search
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/poiesic/notekit/remote"
)

// Source is an HTTP JSON client for a remote record API.
type Source struct {
	client  *http.Client
	baseURL string
}

var _ remote.Source = (*Source)(nil)

// Option configures a Source.
type Option func(*Source)

// WithTimeout sets the HTTP client timeout.
// Default is 30 seconds.
func WithTimeout(d time.Duration) Option {
	return func(s *Source) {
		s.client.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client entirely.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Source) {
		s.client = client
	}
}

// NewSource creates a Source for the given base URL.
func NewSource(baseURL string, opts ...Option) *Source {
	s := &Source{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchAll returns the full remote record set.
func (s *Source) FetchAll(ctx context.Context) ([]remote.Record, error) {
	return s.get(ctx, nil)
}

// FetchSince returns records changed at or after the given instant.
func (s *Source) FetchSince(ctx context.Context, since time.Time) ([]remote.Record, error) {
	return s.get(ctx, url.Values{"since": {since.UTC().Format(time.RFC3339Nano)}})
}

// Search returns candidate records matching the query.
func (s *Source) Search(ctx context.Context, query string) ([]remote.Record, error) {
	return s.get(ctx, url.Values{"q": {query}})
}

func (s *Source) get(ctx context.Context, params url.Values) ([]remote.Record, error) {
	endpoint := s.baseURL + "/records"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote returned status %d", resp.StatusCode)
	}

	var records []remote.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode remote records: %w", err)
	}
	return records, nil
}
