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


// Package syncer reconciles local records against a remote source.
//
// Each sync cycle moves through fetching, diffing, reconciling and
// committing. Remote fetches are retried with exponential backoff and
// bounded by a timeout. Diverged records are never merged automatically:
// they are parked in conflict state with the remote revision cached
// alongside the untouched local content, awaiting explicit resolution.
// Commit failures are isolated per record; a failed record keeps its prior
// state and is retried on the next cycle.
package syncer
