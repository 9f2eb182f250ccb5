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


package syncer

import "errors"

var (
	// ErrRepositoryRequired is returned when a repository is not provided.
	ErrRepositoryRequired = errors.New("repository required")

	// ErrSourceRequired is returned when a remote source is not provided.
	ErrSourceRequired = errors.New("remote source required")

	// ErrCycleInProgress is returned when a sync cycle is started while
	// another is still running.
	ErrCycleInProgress = errors.New("sync cycle already in progress")

	// ErrFetchTimeout is returned when the remote fetch exceeds the
	// configured timeout on every attempt.
	ErrFetchTimeout = errors.New("remote fetch timed out")

	// ErrFetchFailure is returned when the remote fetch fails after all
	// retry attempts.
	ErrFetchFailure = errors.New("remote fetch failed")

	// ErrInvalidMaxAttempts is returned when a retry is configured with
	// a non-positive attempt count.
	ErrInvalidMaxAttempts = errors.New("max attempts must be greater than zero")
)
