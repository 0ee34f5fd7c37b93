// Package statesync implements the synchronizer of the cached state of a
// contract.
//
// A synchronizer is bound to one contract. The first read after a binding
// always loads the state from the contract reader and starts a periodic
// refresh in the background. At most one load per contract is in flight at any
// time: callers arriving during a load wait for it and receive its result.
package statesync

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.dedis.ch/community"
	"go.dedis.ch/community/contract"
	"go.dedis.ch/community/state"
	"golang.org/x/xerrors"
)

const (
	// DefaultInterval is the default period of the background refresh.
	DefaultInterval = 2 * time.Minute

	// DefaultTimeout is the default maximum duration of a load.
	DefaultTimeout = 30 * time.Second
)

var (
	// ErrUnboundContract is returned when the state is requested before a
	// contract is bound.
	ErrUnboundContract = xerrors.New("no contract bound")

	// ErrReloadFailed is returned to the caller and to every waiter of a load
	// that failed.
	ErrReloadFailed = xerrors.New("reload failed")
)

var (
	promReloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "community_statesync_reloads_total",
		Help: "total number of contract state reloads",
	}, []string{"result"})

	promReloadTime = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "community_statesync_reload_seconds",
		Help:    "duration of the contract state reloads",
		Buckets: prometheus.DefBuckets,
	})

	promCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "community_statesync_cache_hits_total",
		Help: "total number of reads served from the cache",
	})
)

func init() {
	community.PromCollectors = append(community.PromCollectors,
		promReloads, promReloadTime, promCacheHits)
}

// Option is the type of option to configure a synchronizer.
type Option func(*Synchronizer)

// WithInterval sets the period of the background refresh.
func WithInterval(d time.Duration) Option {
	return func(s *Synchronizer) {
		s.interval = d
	}
}

// WithTimeout sets the maximum duration of a load.
func WithTimeout(d time.Duration) Option {
	return func(s *Synchronizer) {
		s.timeout = d
	}
}

// WithLogger sets the logger of the synchronizer.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = l
	}
}

// flight is a load in progress. The done channel is closed once the result is
// available.
type flight struct {
	done chan struct{}
	id   string
	snap *state.Snapshot
	err  error
}

// Synchronizer owns the cached state of a contract and coordinates its
// refreshes.
type Synchronizer struct {
	sync.Mutex

	reader   contract.Reader
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
	watcher  *watcher

	contractID    string
	generation    uint64
	snapshot      *state.Snapshot
	hasLoadedOnce bool
	inflight      *flight

	loopGen    uint64
	cancelLoop context.CancelFunc
	loopDone   chan struct{}
	closed     bool
}

// New creates a synchronizer with no contract bound.
func New(reader contract.Reader, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		reader:   reader,
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		logger:   community.Logger.With().Str("component", "statesync").Logger(),
		watcher:  newWatcher(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ContractID returns the identifier of the bound contract, or an empty string.
func (s *Synchronizer) ContractID() string {
	s.Lock()
	defer s.Unlock()

	return s.contractID
}

// Snapshot returns the cached state without any I/O. It returns nil if nothing
// is cached yet.
func (s *Synchronizer) Snapshot() *state.Snapshot {
	s.Lock()
	defer s.Unlock()

	return s.snapshot
}

// Bind binds the synchronizer to the contract. The cache is reset and the
// state of the new contract is loaded. The binding is rolled back if the load
// fails.
func (s *Synchronizer) Bind(ctx context.Context, id string) error {
	if id == "" {
		return xerrors.New("empty contract id")
	}

	s.Lock()
	s.stopLoopLocked()
	s.contractID = id
	s.generation++
	s.snapshot = nil
	s.hasLoadedOnce = false
	s.inflight = nil
	gen := s.generation
	s.Unlock()

	_, err := s.GetState(ctx, false)
	if err != nil {
		s.Lock()
		if s.generation == gen {
			s.stopLoopLocked()
			s.contractID = ""
			s.generation++
			s.snapshot = nil
			s.hasLoadedOnce = false
			s.inflight = nil
		}
		s.Unlock()

		return xerrors.Errorf("failed to bind contract '%s': %w", id, err)
	}

	s.logger.Info().Str("contract", id).Msg("contract bound")

	return nil
}

// GetState returns the state of the bound contract. The cached state is
// returned without any I/O when it exists and the cache is allowed, otherwise
// the state is loaded. The very first read after a binding always loads.
func (s *Synchronizer) GetState(ctx context.Context, useCache bool) (*state.Snapshot, error) {
	_, snap, err := s.GetBoundState(ctx, useCache)
	return snap, err
}

// GetBoundState is like GetState but also returns the identifier of the
// contract the state belongs to, which may differ from ContractID after a
// concurrent rebind.
func (s *Synchronizer) GetBoundState(ctx context.Context, useCache bool) (string, *state.Snapshot, error) {
	s.Lock()

	if s.contractID == "" {
		s.Unlock()
		return "", nil, ErrUnboundContract
	}

	if useCache && s.hasLoadedOnce && s.snapshot != nil {
		id, snap := s.contractID, s.snapshot
		s.Unlock()

		promCacheHits.Inc()

		return id, snap, nil
	}

	f := s.joinLocked()
	s.Unlock()

	snap, err := s.wait(ctx, f)
	if err != nil {
		return "", nil, err
	}

	return f.id, snap, nil
}

// Watch registers the observer that is notified of every new cached state.
func (s *Synchronizer) Watch(obs Observer) {
	s.watcher.Add(obs)
}

// Unwatch removes the observer.
func (s *Synchronizer) Unwatch(obs Observer) {
	s.watcher.Remove(obs)
}

// Close stops the background refresh and waits for it to return. The state
// can still be read afterwards but it is not refreshed anymore.
func (s *Synchronizer) Close() error {
	s.Lock()
	done := s.loopDone
	s.closed = true
	s.stopLoopLocked()
	s.Unlock()

	if done != nil {
		<-done
	}

	return nil
}

// joinLocked returns the load in flight, or starts a new one. The caller must
// hold the lock.
func (s *Synchronizer) joinLocked() *flight {
	if s.inflight != nil {
		s.logger.Trace().Str("contract", s.contractID).Msg("waiting for load in flight")
		return s.inflight
	}

	f := &flight{done: make(chan struct{}), id: s.contractID}
	s.inflight = f

	go s.load(f, s.contractID, s.generation)

	return f
}

func (s *Synchronizer) wait(ctx context.Context, f *flight) (*state.Snapshot, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		return nil, xerrors.Errorf("interrupted while waiting for the load: %v", ctx.Err())
	}

	if f.err != nil {
		return nil, f.err
	}

	return f.snap, nil
}

// load reads the state of the contract and wakes up the waiters. The result is
// cached only if the binding did not change in the meantime, and the observers
// are then notified.
func (s *Synchronizer) load(f *flight, id string, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	snap, err := s.reader.ReadState(ctx, id)
	promReloadTime.Observe(time.Since(start).Seconds())

	cached := false

	s.Lock()

	if err != nil {
		promReloads.WithLabelValues("failure").Inc()
		f.err = xerrors.Errorf("failed to read contract '%s': %v: %w", id, err, ErrReloadFailed)
	} else {
		promReloads.WithLabelValues("success").Inc()
		f.snap = snap

		if s.generation == gen {
			s.snapshot = snap
			s.hasLoadedOnce = true
			s.startLoopLocked(gen)
			cached = true
		}
	}

	if s.inflight == f {
		s.inflight = nil
	}

	s.logger.Debug().
		Str("contract", id).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("contract state loaded")

	close(f.done)

	s.Unlock()

	// Observers are free to read the synchronizer.
	if cached {
		s.watcher.Notify(Event{ContractID: id, Snapshot: snap})
	}
}

// startLoopLocked starts the background refresh for the generation unless it
// is already running or the synchronizer is closed. The caller must hold the
// lock.
func (s *Synchronizer) startLoopLocked(gen uint64) {
	if s.closed {
		return
	}

	if s.cancelLoop != nil && s.loopGen == gen {
		return
	}

	s.stopLoopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.loopGen = gen
	s.cancelLoop = cancel
	s.loopDone = done

	go s.refreshLoop(ctx, done)
}

// stopLoopLocked cancels the background refresh without waiting for it. The
// caller must hold the lock.
func (s *Synchronizer) stopLoopLocked() {
	if s.cancelLoop != nil {
		s.cancelLoop()
	}

	s.cancelLoop = nil
	s.loopDone = nil
}

// refreshLoop schedules the next refresh once the previous one completed,
// until the context is cancelled.
func (s *Synchronizer) refreshLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.tick(ctx)
			timer.Reset(s.interval)
		}
	}
}

// tick performs a scheduled refresh. A failure is logged and the next refresh
// stays scheduled.
func (s *Synchronizer) tick(ctx context.Context) {
	s.Lock()

	if s.contractID == "" {
		s.Unlock()
		s.logger.Debug().Msg("no contract bound, refresh postponed")
		return
	}

	id := s.contractID
	f := s.joinLocked()
	s.Unlock()

	_, err := s.wait(ctx, f)
	if err != nil {
		s.logger.Warn().Err(err).Str("contract", id).Msg("scheduled refresh failed")
	}
}
