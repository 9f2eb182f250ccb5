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


package search

import "errors"

var (
	// ErrBackendProviderRequired is returned when a backend provider is not provided.
	ErrBackendProviderRequired = errors.New("backend provider required")

	// ErrNoRemoteSource is returned when a remote or hybrid search is
	// requested but no remote source is configured.
	ErrNoRemoteSource = errors.New("no remote source configured")

	// ErrUnknownScope is returned when a scope value is not recognized.
	ErrUnknownScope = errors.New("unknown search scope")
)
