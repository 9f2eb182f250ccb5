package search

import (
	"github.com/poiesic/notekit/remote"
	"github.com/poiesic/notekit/storage"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string, scope Scope)
	AfterLocalSearch(matches []*storage.Match)
	AfterRemoteFetch(records []remote.Record)
	LocalHit(match *storage.Match)
	RemoteHit(match *storage.Match)
	Finish(results []*storage.Match)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ Scope)               {}
func (n *noopMonitor) AfterLocalSearch(_ []*storage.Match)   {}
func (n *noopMonitor) AfterRemoteFetch(_ []remote.Record)    {}
func (n *noopMonitor) LocalHit(_ *storage.Match)             {}
func (n *noopMonitor) RemoteHit(_ *storage.Match)            {}
func (n *noopMonitor) Finish(_ []*storage.Match)             {}
