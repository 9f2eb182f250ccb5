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


// Package storage provides the storage abstraction layer for notekit.
//
// This package defines the Backend contract that decouples persistence from
// the rest of the system. Two engines implement it interchangeably: a
// BadgerDB key-value store (storage/badger) and a SQLite store with a
// full-text index (storage/sqlite). The store facade routes every read and
// write through exactly one active Backend; nothing outside the facade
// branches on which engine is active.
//
// # Constructor Return Type Pattern
//
// Concrete engine packages return their own types from constructors, but
// consumers should hold them as storage.Backend:
//
//	backend, err := badger.OpenBackend(path, false)   // *badger.Backend
//	var b storage.Backend = backend
//
// # Scans
//
// ListFiltered and Search return lazy iter.Seq sequences. Each range over
// the sequence performs a fresh scan, so sequences are restartable. Corrupt
// records never abort a scan: they are skipped and collected into the
// caller-provided ScanReport.
//
// # Relevance scoring
//
// The package also hosts the shared term-match scorer (Tokenize,
// ScoreRecord) used by every scan-tier search, so that the key-value
// backend, the relational fallback tier and the hybrid coordinator rank
// with the same formula.
//
// # Thread Safety
//
// All Backend implementations must be thread-safe and support concurrent
// access from multiple goroutines.
//
// # Context Support
//
// All Backend methods accept context.Context for cancellation and timeout
// support. Pass context.Background() for operations without specific
// timeout requirements.
package storage
