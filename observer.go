package notekit

import "github.com/poiesic/notekit/core"

// Mutation identifies which store operation changed a record.
type Mutation int

const (
	// MutationCreate fires after a record is created.
	MutationCreate Mutation = iota + 1
	// MutationUpdate fires after a record is patched.
	MutationUpdate
	// MutationDelete fires after a record is tombstoned.
	MutationDelete
	// MutationPurge fires after a record is hard-deleted.
	MutationPurge
	// MutationApply fires after a synchronizer or migration write.
	MutationApply
	// MutationResolve fires after a conflict is resolved.
	MutationResolve
)

// String returns the mutation name.
func (m Mutation) String() string {
	switch m {
	case MutationCreate:
		return "create"
	case MutationUpdate:
		return "update"
	case MutationDelete:
		return "delete"
	case MutationPurge:
		return "purge"
	case MutationApply:
		return "apply"
	case MutationResolve:
		return "resolve"
	default:
		return "unknown"
	}
}

// MutationObserver receives notifications after successful store mutations.
// Callbacks run on their own goroutine and must not assume ordering between
// mutations; the record is a private copy the observer may keep. A panicking
// observer is recovered and logged, never propagated to the mutating caller.
type MutationObserver interface {
	RecordChanged(op Mutation, record *core.Record)
}

// noopObserver is a no-op implementation of MutationObserver
type noopObserver struct{}

var _ MutationObserver = (*noopObserver)(nil)

func (n *noopObserver) RecordChanged(_ Mutation, _ *core.Record) {}

// notify dispatches an observer callback without blocking the mutation path.
func (s *Store) notify(op Mutation, record *core.Record) {
	if _, ok := s.observer.(*noopObserver); ok {
		return
	}
	copied := record.Clone()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("mutation observer panicked", "op", op.String(), "id", copied.Id, "panic", r)
			}
		}()
		s.observer.RecordChanged(op, copied)
	}()
}
