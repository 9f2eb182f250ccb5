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

import "fmt"

// ValidateRecord validates a Record according to domain rules.
//
// Validation rules:
//   - Id must not be empty
//   - Title must not be empty
//   - SyncState must be a known value
//   - UpdatedAt must not precede CreatedAt
//   - Conflict cache must be present exactly when SyncState == SyncConflict
//
// NOT validated:
//   - Body, Tags, Category (all may be empty)
//   - RemoteVersion (empty until the record has been synced once)
func ValidateRecord(record *Record) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}

	if record.Id == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyID)
	}

	if record.Title == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyTitle)
	}

	if err := ValidateSyncState(record.SyncState); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	if !record.UpdatedAt.IsZero() && record.UpdatedAt.Before(record.CreatedAt) {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrTimestampOrder)
	}

	if record.Conflict != nil && record.SyncState != SyncConflict {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrStrayConflictCache)
	}
	if record.Conflict == nil && record.SyncState == SyncConflict {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrMissingConflictCache)
	}

	return nil
}

// ValidateSyncState validates that a SyncState has a valid value.
func ValidateSyncState(state SyncState) error {
	switch state {
	case SyncLocalOnly, SyncSynced, SyncPendingPush, SyncConflict:
		return nil
	default:
		return fmt.Errorf("%w: value %d", ErrInvalidSyncState, state)
	}
}
