package cachestore

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/dvloznov/finance-tracker-web/internal/domain"
)

const (
	DefaultStaleTime = 2 * time.Minute
	DefaultGCTime    = 5 * time.Minute

	maxReadAttempts = 3
)

var (
	// ErrTemporaryID is returned for updates and deletes of rows the server
	// has not confirmed yet.
	ErrTemporaryID = errors.New("transaction is not saved yet")
	ErrNotFound    = errors.New("transaction not found")
	ErrClosed      = errors.New("cache store is closed")

	errSuperseded = errors.New("read superseded")
)

// Transport is the remote source of truth.
type Transport interface {
	List(ctx context.Context, params domain.ListParams) (domain.Page, error)
	Create(ctx context.Context, in domain.TransactionInput) (domain.Transaction, error)
	Update(ctx context.Context, id string, in domain.TransactionInput) (domain.Transaction, error)
	Delete(ctx context.Context, id string) error
}

type Options struct {
	StaleTime time.Duration
	GCTime    time.Duration
	// Scheduler receives refetch requests after mutations settle. When nil
	// the store refetches in its own goroutine, retrying RefetchRetries times.
	Scheduler      Scheduler
	RefetchRetries int
	Now            func() time.Time
}

// Store owns every cached transaction page. It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	entries map[Key]*entry
	active  map[*Mutation]struct{}
	closed  bool

	transport Transport
	scheduler Scheduler
	retries   int
	group     singleflight.Group
	log       zerolog.Logger
	metrics   *metrics
	now       func() time.Time

	staleTime time.Duration
	gcTime    time.Duration

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

func New(transport Transport, log zerolog.Logger, opts Options) *Store {
	if opts.StaleTime <= 0 {
		opts.StaleTime = DefaultStaleTime
	}
	if opts.GCTime <= 0 {
		opts.GCTime = DefaultGCTime
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		entries:    make(map[Key]*entry),
		active:     make(map[*Mutation]struct{}),
		transport:  transport,
		scheduler:  opts.Scheduler,
		retries:    opts.RefetchRetries,
		log:        log,
		metrics:    newMetrics(),
		now:        opts.Now,
		staleTime:  opts.StaleTime,
		gcTime:     opts.GCTime,
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// ListPaginated returns the page for (skip, take), from cache when fresh.
// On failure the previously cached page is returned together with the error.
func (s *Store) ListPaginated(ctx context.Context, skip, take int) (domain.Page, error) {
	if take < 1 {
		take = domain.DefaultTake
	}
	if skip < 0 {
		skip = 0
	}
	return s.read(ctx, PaginatedKey(skip, take))
}

// ListAll returns the unpaginated view used for the global totals.
func (s *Store) ListAll(ctx context.Context) (domain.Page, error) {
	return s.read(ctx, AllKey())
}

// GetByID resolves a transaction from the unpaginated view.
func (s *Store) GetByID(ctx context.Context, id string) (domain.Transaction, error) {
	page, err := s.ListAll(ctx)
	if idx := page.IndexOf(id); idx >= 0 {
		return page.Data[idx], nil
	}
	if err != nil {
		return domain.Transaction{}, err
	}
	return domain.Transaction{}, ErrNotFound
}

// ListInfinite walks the paginated keys from the start until the server
// reports no more rows.
func (s *Store) ListInfinite(ctx context.Context, pageSize int) ([]domain.Transaction, error) {
	if pageSize < 1 {
		pageSize = domain.DefaultTake
	}
	var out []domain.Transaction
	for skip := 0; ; skip += pageSize {
		page, err := s.ListPaginated(ctx, skip, pageSize)
		if err != nil {
			return out, err
		}
		out = append(out, page.Data...)
		if !page.HasMore || len(page.Data) == 0 {
			return out, nil
		}
	}
}

func (s *Store) read(ctx context.Context, key Key) (domain.Page, error) {
	for attempt := 0; attempt < maxReadAttempts; attempt++ {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return domain.Page{}, ErrClosed
		}
		e := s.entryLocked(key)
		now := s.now()
		e.lastUsed = now

		if len(e.pending) > 0 && e.hasData {
			page := e.page.Clone()
			s.mu.Unlock()
			s.metrics.read(ctx, key, "optimistic")
			return page, nil
		}
		if s.freshLocked(e, now) {
			page := e.page.Clone()
			s.mu.Unlock()
			s.metrics.read(ctx, key, "hit")
			return page, nil
		}
		gen := e.gen
		s.mu.Unlock()

		s.metrics.read(ctx, key, "miss")
		page, err := s.await(ctx, key, gen, false)
		if errors.Is(err, errSuperseded) {
			continue
		}
		return page, err
	}

	// Superseded repeatedly; settle for whatever the cache holds now.
	return s.cachedPage(key), nil
}

// await joins or starts the read for key at generation gen.
func (s *Store) await(ctx context.Context, key Key, gen uint64, force bool) (domain.Page, error) {
	ch := s.group.DoChan(flightKey(key, gen), func() (any, error) {
		return s.fetch(key, gen, force)
	})

	select {
	case <-ctx.Done():
		return s.cachedPage(key), ctx.Err()
	case res := <-ch:
		page, _ := res.Val.(domain.Page)
		return page.Clone(), res.Err
	}
}

func flightKey(key Key, gen uint64) string {
	return key.String() + "#" + strconv.FormatUint(gen, 10)
}

// fetch performs one list call for key. The result is applied only if the
// entry still exists at generation gen; otherwise it is discarded.
func (s *Store) fetch(key Key, gen uint64, force bool) (domain.Page, error) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok || e.gen != gen {
		s.mu.Unlock()
		return domain.Page{}, errSuperseded
	}
	if !force && s.freshLocked(e, s.now()) {
		page := e.page.Clone()
		s.mu.Unlock()
		return page, nil
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	e.cancel = cancel
	if e.hasData {
		e.status = StatusRefetching
	} else {
		e.status = StatusLoading
	}
	s.mu.Unlock()

	log := s.log.With().Str("cache_key", key.String()).Uint64("gen", gen).Logger()
	log.Debug().Msg("fetching")

	page, err := s.transport.List(ctx, key.Params())
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.entries[key]; !ok || cur != e || e.gen != gen {
		log.Debug().Msg("discarding superseded read")
		s.metrics.discardedRead(s.baseCtx, key)
		return domain.Page{}, errSuperseded
	}
	e.cancel = nil

	if err != nil {
		e.status = StatusError
		e.err = err
		log.Warn().Err(err).Bool("has_data", e.hasData).Msg("read failed, keeping cached page")
		return e.page.Clone(), err
	}

	e.page = page
	e.hasData = true
	e.status = StatusFresh
	e.err = nil
	e.stale = false
	e.fetchedAt = s.now()
	return page.Clone(), nil
}

// Refetch reloads a stale entry. It does nothing when the entry is absent,
// fresh, or owned by a pending mutation.
func (s *Store) Refetch(ctx context.Context, key Key) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	e, ok := s.entries[key]
	if !ok || len(e.pending) > 0 || s.freshLocked(e, s.now()) {
		s.mu.Unlock()
		return nil
	}
	gen := e.gen
	s.mu.Unlock()

	_, err := s.await(ctx, key, gen, true)
	if errors.Is(err, errSuperseded) {
		// Whoever superseded this read schedules its own refetch.
		return nil
	}
	return err
}

// Invalidate marks every entry stale so the next read goes to the network.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		e.markStale()
	}
}

// Peek reports an entry without fetching. ok is false for absent keys.
func (s *Store) Peek(key Key) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return Snapshot{Key: key, Status: StatusAbsent}, false
	}
	status := e.status
	if status == StatusFresh && !s.freshLocked(e, s.now()) {
		status = StatusStale
	}
	return Snapshot{
		Key:       key,
		Page:      e.page.Clone(),
		HasData:   e.hasData,
		Status:    status,
		Err:       e.err,
		FetchedAt: e.fetchedAt,
		LastUsed:  e.lastUsed,
		Pending:   len(e.pending),
	}, true
}

// Keys lists the cached keys in a stable order.
func (s *Store) Keys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Collect drops entries unused for longer than the GC time. Entries with a
// pending mutation or an in-flight read are kept.
func (s *Store) Collect() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if len(e.pending) > 0 || e.inflight() {
			continue
		}
		if now.Sub(e.lastUsed) >= s.gcTime {
			delete(s.entries, key)
			removed++
		}
	}
	if removed > 0 {
		s.log.Debug().Int("removed", removed).Msg("collected idle cache entries")
	}
	return removed
}

// Reset cancels every in-flight read and drops all entries.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		e.supersede()
	}
	s.entries = make(map[Key]*entry)
}

// Close stops the store: in-flight calls are cancelled and Close waits for
// running mutations and refetches to finish.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.baseCancel()
	s.wg.Wait()
}

func (s *Store) entryLocked(key Key) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{status: StatusAbsent}
		s.entries[key] = e
	}
	return e
}

func (s *Store) freshLocked(e *entry, now time.Time) bool {
	return e.hasData && e.status == StatusFresh && !e.stale && now.Sub(e.fetchedAt) < s.staleTime
}

func (s *Store) cachedPage(key Key) domain.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e.page.Clone()
	}
	return domain.Page{}
}
