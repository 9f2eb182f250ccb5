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


// Package search coordinates queries across the local backend and an
// optional remote source.
//
// The Coordinator type supports three scopes:
//   - Local search against the active storage backend
//   - Remote search against an injected source
//   - Hybrid search that supplements sparse local results with remote
//     candidates, de-duplicated by record id
//
// Merged results are re-scored with the shared weighted-term formula and
// ranked deterministically.
package search
