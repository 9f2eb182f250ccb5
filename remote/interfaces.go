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


// Package remote defines the contract for the remote record source consumed
// by the synchronizer and the hybrid search scope. The system never writes
// through this interface; reconciliation happens locally.
package remote

import (
	"context"
	"time"
)

// Record is a record as the remote source reports it.
type Record struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tags      []string  `json:"tags,omitempty"`
	Category  string    `json:"category,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   string    `json:"version"`
	Deleted   bool      `json:"deleted,omitempty"`
}

// Source provides read access to the remote record set.
// Implementations must be safe for concurrent use.
type Source interface {
	// FetchAll returns the full remote record set.
	FetchAll(ctx context.Context) ([]Record, error)

	// FetchSince returns records changed at or after the given instant.
	FetchSince(ctx context.Context, since time.Time) ([]Record, error)

	// Search returns candidate records matching the query. Ranking is the
	// caller's concern; the source only filters.
	Search(ctx context.Context, query string) ([]Record, error)
}
