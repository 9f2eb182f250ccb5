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


package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidRecord indicates a Record failed validation.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrEmptyID indicates the Id field is empty.
	ErrEmptyID = errors.New("record id cannot be empty")

	// ErrEmptyTitle indicates the Title field is empty.
	ErrEmptyTitle = errors.New("record title cannot be empty")

	// ErrInvalidSyncState indicates an invalid SyncState value.
	ErrInvalidSyncState = errors.New("invalid sync state")

	// ErrTimestampOrder indicates UpdatedAt precedes CreatedAt.
	ErrTimestampOrder = errors.New("updated timestamp cannot precede created timestamp")

	// ErrStrayConflictCache indicates a cached remote revision is present on a
	// record that is not in the conflict state.
	ErrStrayConflictCache = errors.New("conflict cache present without conflict state")

	// ErrMissingConflictCache indicates a record is in the conflict state but
	// carries no cached remote revision.
	ErrMissingConflictCache = errors.New("conflict state without cached remote revision")
)
