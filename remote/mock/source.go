// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package mock provides a scriptable in-memory remote.Source for tests.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/notekit/remote"
)

// MockSource is a test double for remote.Source backed by an in-memory
// record set. FetchErr, when set, is returned by every fetch; FetchErrs
// queues one error per call for retry testing.
type MockSource struct {
	mu        sync.Mutex
	records   map[string]remote.Record
	FetchErr  error
	FetchErrs []error // consumed one per fetch before FetchErr is consulted
	FetchN    int     // number of fetch calls observed
	Delay     time.Duration
}

var _ remote.Source = (*MockSource)(nil)

// NewMockSource creates a mock source seeded with the given records.
func NewMockSource(records ...remote.Record) *MockSource {
	s := &MockSource{records: make(map[string]remote.Record)}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return s
}

// Set adds or replaces a remote record.
func (s *MockSource) Set(r remote.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = r
}

// Remove deletes a remote record outright (as opposed to setting Deleted).
func (s *MockSource) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
}

// FetchAll returns every remote record.
func (s *MockSource) FetchAll(ctx context.Context) ([]remote.Record, error) {
	return s.fetch(ctx, time.Time{})
}

// FetchSince returns records updated at or after since.
func (s *MockSource) FetchSince(ctx context.Context, since time.Time) ([]remote.Record, error) {
	return s.fetch(ctx, since)
}

// Search returns records whose title or body contains the query,
// case-insensitively.
func (s *MockSource) Search(ctx context.Context, query string) ([]remote.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(query)
	var out []remote.Record
	for _, r := range s.records {
		if r.Deleted {
			continue
		}
		if strings.Contains(strings.ToLower(r.Title), q) ||
			strings.Contains(strings.ToLower(r.Body), q) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MockSource) fetch(ctx context.Context, since time.Time) ([]remote.Record, error) {
	s.mu.Lock()
	s.FetchN++
	var err error
	if len(s.FetchErrs) > 0 {
		err = s.FetchErrs[0]
		s.FetchErrs = s.FetchErrs[1:]
	} else {
		err = s.FetchErr
	}
	delay := s.Delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []remote.Record
	for _, r := range s.records {
		if since.IsZero() || !r.UpdatedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}
