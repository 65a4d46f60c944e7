package storage

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

const closeAttempts = 3

// SaverConfig tunes write coalescing and retry backoff.
type SaverConfig struct {
	// Delay is the coalescing window: rapid writes to the same key within
	// it collapse into a single flush.
	Delay        time.Duration
	RetryInitial time.Duration
	RetryMax     time.Duration
}

type pendingWrite struct {
	fn      func() error
	attempt int
	due     time.Time
}

// Saver coalesces snapshot writes and retries failures with jittered
// exponential backoff. A pending write survives until it lands or a newer
// write for the same key supersedes it; nothing is silently dropped.
type Saver struct {
	cfg    SaverConfig
	logger *log.Logger

	mu      sync.Mutex
	pending map[string]*pendingWrite
	closing bool

	wakeCh chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	flushes atomic.Uint64
	retries atomic.Uint64
	started time.Time
}

// SaverStats reports durability health for hosts that surface it.
type SaverStats struct {
	Pending   int       `json:"pending"`
	Flushes   uint64    `json:"flushes"`
	Retries   uint64    `json:"retries"`
	StartedAt time.Time `json:"startedAt"`
}

// NewSaver starts the background flush loop.
func NewSaver(cfg SaverConfig, logger *log.Logger) *Saver {
	if logger == nil {
		panic("storage.NewSaver: logger is required")
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 150 * time.Millisecond
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = 250 * time.Millisecond
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 30 * time.Second
	}

	s := &Saver{
		cfg:     cfg,
		logger:  logger,
		pending: make(map[string]*pendingWrite),
		wakeCh:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		started: time.Now().UTC(),
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

// Schedule records fn as the latest write for key, replacing any write
// still pending under the same key. fn must capture the state to persist
// by reading it at call time so the flush always writes the newest data.
func (s *Saver) Schedule(key string, fn func() error) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		// After close, write synchronously so the mutation still lands.
		if err := fn(); err != nil {
			s.logger.WithError(err).WithField("key", key).Error("write after close failed")
		} else {
			s.flushes.Add(1)
		}
		return
	}
	s.pending[key] = &pendingWrite{fn: fn, due: time.Now().Add(s.cfg.Delay)}
	s.mu.Unlock()

	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Flush synchronously writes everything pending, ignoring coalescing
// deadlines. Failed writes are rescheduled with backoff and reported.
func (s *Saver) Flush() error {
	jobs := s.drain()
	var errs []error
	for key, pw := range jobs {
		if err := s.run(key, pw); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Close stops the flush loop and synchronously writes everything pending,
// retrying each key a bounded number of times so shutdown terminates.
func (s *Saver) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	jobs := s.drain()
	var errs []error
	for key, pw := range jobs {
		var err error
		for attempt := 0; attempt < closeAttempts; attempt++ {
			if err = pw.fn(); err == nil {
				s.flushes.Add(1)
				break
			}
			s.retries.Add(1)
			time.Sleep(s.cfg.RetryInitial)
		}
		if err != nil {
			s.logger.WithError(err).WithField("key", key).Error("final snapshot flush failed")
			errs = append(errs, fmt.Errorf("flush %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Stats returns a point-in-time view of the saver's counters.
func (s *Saver) Stats() SaverStats {
	s.mu.Lock()
	pending := len(s.pending)
	s.mu.Unlock()
	return SaverStats{
		Pending:   pending,
		Flushes:   s.flushes.Load(),
		Retries:   s.retries.Load(),
		StartedAt: s.started,
	}
}

func (s *Saver) loop() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		next, ok := s.nextDueLocked()
		s.mu.Unlock()

		if !ok {
			select {
			case <-s.wakeCh:
				continue
			case <-s.stopCh:
				return
			}
		}

		if wait := time.Until(next); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-s.wakeCh:
				timer.Stop()
				continue
			case <-s.stopCh:
				timer.Stop()
				return
			}
		}

		now := time.Now()
		for key, pw := range s.dueJobs(now) {
			_ = s.run(key, pw)
		}
	}
}

func (s *Saver) nextDueLocked() (time.Time, bool) {
	var next time.Time
	found := false
	for _, pw := range s.pending {
		if !found || pw.due.Before(next) {
			next = pw.due
			found = true
		}
	}
	return next, found
}

func (s *Saver) dueJobs(now time.Time) map[string]*pendingWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make(map[string]*pendingWrite)
	for key, pw := range s.pending {
		if !pw.due.After(now) {
			jobs[key] = pw
			delete(s.pending, key)
		}
	}
	return jobs
}

func (s *Saver) drain() map[string]*pendingWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make(map[string]*pendingWrite, len(s.pending))
	for key, pw := range s.pending {
		jobs[key] = pw
		delete(s.pending, key)
	}
	return jobs
}

// run executes one write. On failure it reschedules the same write with
// backoff unless a newer write for the key arrived in the meantime.
func (s *Saver) run(key string, pw *pendingWrite) error {
	err := pw.fn()
	if err == nil {
		s.flushes.Add(1)
		return nil
	}

	pw.attempt++
	s.retries.Add(1)
	s.logger.WithError(err).WithFields(log.Fields{
		"key":     key,
		"attempt": pw.attempt,
	}).Warn("snapshot write failed, will retry")

	pw.due = time.Now().Add(exponentialBackoff(pw.attempt, s.cfg.RetryInitial, s.cfg.RetryMax))
	s.mu.Lock()
	if _, superseded := s.pending[key]; !superseded && !s.closing {
		s.pending[key] = pw
	}
	s.mu.Unlock()

	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
	return err
}

func exponentialBackoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt <= 0 {
		if initial <= 0 {
			return time.Second
		}
		return initial
	}
	if initial <= 0 {
		initial = time.Second
	}
	if max <= 0 {
		max = 10 * time.Second
	}
	backoff := float64(initial) * math.Pow(2, float64(attempt-1))
	if backoff > float64(max) {
		backoff = float64(max)
	}
	jitter := 0.2 * backoff
	return time.Duration(backoff + (rand.Float64()-0.5)*2*jitter)
}
