package cachestore

import (
	"context"
	"time"

	"github.com/dvloznov/finance-tracker-web/internal/domain"
)

// Status is the lifecycle position of a cache entry.
type Status string

const (
	StatusAbsent     Status = "absent"
	StatusLoading    Status = "loading"
	StatusFresh      Status = "fresh"
	StatusStale      Status = "stale"
	StatusRefetching Status = "refetching"
	StatusError      Status = "error"
)

type entry struct {
	page    domain.Page
	hasData bool
	status  Status
	err     error

	fetchedAt time.Time
	lastUsed  time.Time
	stale     bool

	// gen is bumped whenever an in-flight read must not be applied.
	gen    uint64
	cancel context.CancelFunc

	// pending is the rollback ownership stack, newest last. It holds every
	// mutation still in flight on the key.
	pending []*Mutation
	// expired marks pending mutations whose snapshot predates a committed
	// change. Their failure restores nothing.
	expired map[*Mutation]bool
}

// Snapshot is a read-only view of one entry.
type Snapshot struct {
	Key       Key
	Page      domain.Page
	HasData   bool
	Status    Status
	Err       error
	FetchedAt time.Time
	LastUsed  time.Time
	Pending   int
}

func (e *entry) inflight() bool {
	return e.cancel != nil
}

// supersede makes any in-flight read for the entry obsolete.
func (e *entry) supersede() {
	e.gen++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	switch {
	case e.status == StatusRefetching:
		e.status = StatusStale
	case e.status == StatusLoading && !e.hasData:
		e.status = StatusAbsent
	}
}

func (e *entry) markStale() {
	e.stale = true
	if e.status == StatusFresh {
		e.status = StatusStale
	}
}

// remove drops m from the ownership stack at idx.
func (e *entry) remove(m *Mutation, idx int) {
	e.pending = append(e.pending[:idx:idx], e.pending[idx+1:]...)
	delete(e.expired, m)
}

func (e *entry) indexOf(m *Mutation) int {
	for i, p := range e.pending {
		if p == m {
			return i
		}
	}
	return -1
}
