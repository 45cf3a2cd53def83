package cachestore

import (
	"context"
	"sort"
	"sync"

	"github.com/dvloznov/finance-tracker-web/internal/domain"
)

type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationUpdate MutationKind = "update"
	MutationDelete MutationKind = "delete"
)

// MutationState moves from pending to exactly one terminal state.
type MutationState int

const (
	MutationPending MutationState = iota
	MutationCommitted
	MutationRolledBack
)

func (s MutationState) String() string {
	switch s {
	case MutationCommitted:
		return "committed"
	case MutationRolledBack:
		return "rolled_back"
	default:
		return "pending"
	}
}

// Mutation is one optimistic write. Its optimistic effect is already in the
// cache when the caller receives it.
type Mutation struct {
	kind     MutationKind
	targetID string

	// snapshots holds, per affected key, the page to restore on failure.
	// Guarded by the store mutex.
	snapshots map[Key]domain.Page

	mu     sync.Mutex
	state  MutationState
	result domain.Transaction
	err    error
	done   chan struct{}
}

func newMutation(kind MutationKind, targetID string) *Mutation {
	return &Mutation{
		kind:      kind,
		targetID:  targetID,
		snapshots: make(map[Key]domain.Page),
		done:      make(chan struct{}),
	}
}

func (m *Mutation) Kind() MutationKind { return m.kind }

// TargetID is the row the mutation acts on. For creates it is the
// temporary id of the optimistic row.
func (m *Mutation) TargetID() string { return m.targetID }

// Done is closed once the mutation has committed or rolled back.
func (m *Mutation) Done() <-chan struct{} { return m.done }

func (m *Mutation) State() MutationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Wait blocks until the mutation settles or ctx ends. It returns the
// server's transaction for creates and updates.
func (m *Mutation) Wait(ctx context.Context) (domain.Transaction, error) {
	select {
	case <-ctx.Done():
		return domain.Transaction{}, ctx.Err()
	case <-m.done:
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result, m.err
}

func (m *Mutation) finish(result domain.Transaction, err error) MutationState {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.result = result
	m.err = err
	m.state = MutationCommitted
	if err != nil {
		m.state = MutationRolledBack
	}
	close(m.done)
	return m.state
}

// LoadingState counts pending mutations and lists the rows they touch.
type LoadingState struct {
	Creating int      `json:"creating"`
	Updating int      `json:"updating"`
	Deleting int      `json:"deleting"`
	IDs      []string `json:"ids"`
}

func (l LoadingState) Any() bool {
	return l.Creating+l.Updating+l.Deleting > 0
}

// Busy reports whether the row is mid-operation.
func (l LoadingState) Busy(id string) bool {
	i := sort.SearchStrings(l.IDs, id)
	return i < len(l.IDs) && l.IDs[i] == id
}

// Create adds a transaction and waits for the server.
func (s *Store) Create(ctx context.Context, in domain.TransactionInput) (domain.Transaction, error) {
	m, err := s.CreateAsync(ctx, in)
	if err != nil {
		return domain.Transaction{}, err
	}
	return m.Wait(ctx)
}

func (s *Store) Update(ctx context.Context, id string, in domain.TransactionInput) (domain.Transaction, error) {
	m, err := s.UpdateAsync(ctx, id, in)
	if err != nil {
		return domain.Transaction{}, err
	}
	return m.Wait(ctx)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	m, err := s.DeleteAsync(ctx, id)
	if err != nil {
		return err
	}
	_, err = m.Wait(ctx)
	return err
}

// CreateAsync appends a row under a temporary id to every cached view, then
// sends the create in the background.
func (s *Store) CreateAsync(ctx context.Context, in domain.TransactionInput) (*Mutation, error) {
	tx := in.WithID(domain.NewTemporaryID())
	m := newMutation(MutationCreate, tx.ID)

	err := s.begin(ctx, m, func(key Key, p domain.Page) (domain.Page, bool) {
		return applyCreate(key, p, tx), true
	}, func(ctx context.Context) (domain.Transaction, error) {
		return s.transport.Create(ctx, in)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateAsync replaces the row in place, then sends the update in the background.
func (s *Store) UpdateAsync(ctx context.Context, id string, in domain.TransactionInput) (*Mutation, error) {
	if domain.IsTemporaryID(id) {
		return nil, ErrTemporaryID
	}
	m := newMutation(MutationUpdate, id)

	err := s.begin(ctx, m, func(_ Key, p domain.Page) (domain.Page, bool) {
		return applyUpdate(p, id, in)
	}, func(ctx context.Context) (domain.Transaction, error) {
		return s.transport.Update(ctx, id, in)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// DeleteAsync removes the row from every cached view, then sends the delete
// in the background.
func (s *Store) DeleteAsync(ctx context.Context, id string) (*Mutation, error) {
	if domain.IsTemporaryID(id) {
		return nil, ErrTemporaryID
	}
	m := newMutation(MutationDelete, id)

	err := s.begin(ctx, m, func(_ Key, p domain.Page) (domain.Page, bool) {
		return applyDelete(p, id), true
	}, func(ctx context.Context) (domain.Transaction, error) {
		return domain.Transaction{}, s.transport.Delete(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// begin applies the optimistic change synchronously and starts the network
// call. Every cached page the change touches has its in-flight read
// superseded, its current page snapshotted and m pushed on its ownership stack.
func (s *Store) begin(
	ctx context.Context,
	m *Mutation,
	apply func(Key, domain.Page) (domain.Page, bool),
	call func(context.Context) (domain.Transaction, error),
) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	for key, e := range s.entries {
		if !e.hasData {
			continue
		}
		next, changed := apply(key, e.page)
		if !changed {
			continue
		}
		e.supersede()
		m.snapshots[key] = e.page
		e.page = next
		e.pending = append(e.pending, m)
	}
	s.active[m] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Debug().
		Str("mutation", string(m.kind)).
		Str("target_id", m.targetID).
		Int("affected_keys", len(m.snapshots)).
		Msg("applied optimistic change")

	// The call outlives the caller's request but not the store.
	callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(s.baseCtx, cancel)

	go func() {
		defer s.wg.Done()
		defer stop()
		defer cancel()

		var (
			result domain.Transaction
			err    error
		)
		defer func() { s.settle(m, result, err) }()
		result, err = call(callCtx)
	}()
	return nil
}

// settle resolves ownership on every affected key, marks the cache stale and
// schedules a refetch for each key that no longer has a pending mutation.
func (s *Store) settle(m *Mutation, result domain.Transaction, err error) {
	s.mu.Lock()
	for key, snapshot := range m.snapshots {
		e, ok := s.entries[key]
		if !ok {
			continue
		}
		idx := e.indexOf(m)
		if idx < 0 {
			continue
		}

		if err != nil {
			switch {
			case e.expired[m]:
				// A newer commit replaced this baseline; the refetch after the
				// last settlement repairs the page.
			case idx == len(e.pending)-1:
				e.page = snapshot
			default:
				// Superseded: the mutation above inherits this baseline, so
				// its own rollback will also undo this change.
				e.pending[idx+1].snapshots[key] = snapshot
			}
			e.remove(m, idx)
			continue
		}

		// Older snapshots predate a committed change. The older mutations
		// stay pending until their own calls return.
		for _, older := range e.pending[:idx] {
			if e.expired == nil {
				e.expired = make(map[*Mutation]bool)
			}
			e.expired[older] = true
		}
		e.remove(m, idx)
		if m.kind == MutationCreate {
			if next, ok := replaceRow(e.page, m.targetID, result); ok {
				e.page = next
			}
		}
	}

	var refetch []Key
	for key, e := range s.entries {
		e.markStale()
		if len(e.pending) == 0 {
			e.supersede()
			refetch = append(refetch, key)
		}
	}
	delete(s.active, m)
	closed := s.closed
	state := m.finish(result, err)
	s.mu.Unlock()

	log := s.log.With().Str("mutation", string(m.kind)).Str("target_id", m.targetID).Logger()
	if err != nil {
		log.Warn().Err(err).Msg("mutation failed, rolled back")
	} else {
		log.Info().Str("id", result.ID).Msg("mutation committed")
	}
	s.metrics.mutation(context.Background(), m.kind, state)

	if closed {
		return
	}
	for _, key := range refetch {
		s.scheduleRefetch(key)
	}
}

// Loading reports the pending mutations, for disabling rows mid-operation.
func (s *Store) Loading() LoadingState {
	s.mu.Lock()
	defer s.mu.Unlock()

	var state LoadingState
	for m := range s.active {
		switch m.kind {
		case MutationCreate:
			state.Creating++
		case MutationUpdate:
			state.Updating++
		case MutationDelete:
			state.Deleting++
		}
		state.IDs = append(state.IDs, m.targetID)
	}
	sort.Strings(state.IDs)
	return state
}
