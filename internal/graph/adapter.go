// Package graph implements the L0 Graph Adapter and Connection Pool: a
// single embedded database handle per path, shared and refcounted across
// every caller that opens it, with a bounded pool of concurrent users and
// retry-with-backoff on transient write-lock conflicts.
package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	_ "modernc.org/sqlite"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kuzu-memory/kuzu-memory/internal/errs"
)

// Config controls pool sizing and retry behavior for an Adapter.
type Config struct {
	MinConnections  int
	MaxConnections  int
	AcquireTimeout  time.Duration
	MaxRetries      int
	RetryBackoffMs  int
	BreakerMaxFails uint32
	BreakerTimeout  time.Duration

	// PoolWaitRatePerSec token-bucket-limits how fast new callers may
	// enter the pool-wait queue, smoothing a thundering herd of waiters
	// into the bounded pool instead of letting them all queue at once.
	// 0 disables the limiter.
	PoolWaitRatePerSec float64
	PoolWaitBurst      int
}

// DefaultConfig returns the pool/retry defaults used when callers don't
// override them.
func DefaultConfig() Config {
	return Config{
		MinConnections:     1,
		MaxConnections:     8,
		AcquireTimeout:     5 * time.Second,
		MaxRetries:         3,
		RetryBackoffMs:     50,
		BreakerMaxFails:    5,
		BreakerTimeout:     10 * time.Second,
		PoolWaitRatePerSec: 50,
		PoolWaitBurst:      8,
	}
}

// ExecuteOptions overrides retry behavior for a single Execute call.
type ExecuteOptions struct {
	MaxRetries     int
	RetryBackoffMs int
	Timeout        time.Duration
}

// Rows is the result of a read query: column names plus one []any of
// values per row, in Columns order, deliberately simple since this layer
// has no ORM.
type Rows struct {
	Columns []string
	Values  [][]any
}

// Adapter is a bounded, pooled handle onto one embedded database file.
// Multiple Adapters opened against the same path share one underlying
// *sql.DB and its refcount (see registry.go); each Adapter additionally
// enforces its own concurrency bound via sem.
type Adapter struct {
	path        string
	db          *sql.DB
	cfg         Config
	sem         chan struct{}
	poolLimiter *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
	log         *zap.Logger

	closeOnce sync.Once
}

// Open returns an Adapter for path, creating the on-disk database and
// applying pragmas on first open. Calling Open again with the same path
// is idempotent with respect to schema: it attaches to the existing
// shared handle and bumps its refcount rather than re-initializing it.
func Open(path string, cfg Config, log *zap.Logger) (*Adapter, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := acquireShared(path, func() (*sql.DB, error) {
		return openAndConfigure(path, log)
	})
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "graph.Open", err)
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "graph:" + path,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFails
		},
		// Only lock/busy conflicts count against the breaker. A caller's
		// own business-logic error (e.g. a duplicate-content check) is
		// not a database fault and shouldn't trip it.
		IsSuccessful: func(err error) bool {
			return err == nil || !isTransient(err)
		},
	})

	var limiter *rate.Limiter
	if cfg.PoolWaitRatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.PoolWaitRatePerSec), maxInt(cfg.PoolWaitBurst, 1))
	}

	return &Adapter{
		path:        path,
		db:          db,
		cfg:         cfg,
		sem:         make(chan struct{}, maxInt(cfg.MaxConnections, 1)),
		poolLimiter: limiter,
		breaker:     cb,
		log:         log.With(zap.String("db_path", path)),
	}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func openAndConfigure(path string, log *zap.Logger) (*sql.DB, error) {
	if isRecoverableWALStale(path) {
		removeStaleWAL(path, log)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("graph: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("graph: pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		if !isRecoverableWALError(err) {
			_ = db.Close()
			return nil, fmt.Errorf("graph: apply schema: %w", err)
		}
		log.Warn("schema apply hit recoverable WAL error, retrying once", zap.Error(err))
		if _, err := db.Exec(Schema); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("graph: apply schema after retry: %w", err)
		}
	}

	return db, nil
}

// WithConnection acquires a slot from the adapter's bounded pool, runs f
// with the same backoff-and-jitter retry against transient write-lock
// conflicts that Execute applies to raw queries, then releases the slot.
// It returns PoolExhausted if no slot becomes available before ctx is
// done or cfg.AcquireTimeout elapses.
func (a *Adapter) WithConnection(ctx context.Context, f func(*sql.DB) error) error {
	timeout := a.cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	acquireCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if a.poolLimiter != nil {
		if err := a.poolLimiter.Wait(acquireCtx); err != nil {
			return errs.Wrap(errs.Transient, "graph.WithConnection", errs.ErrPoolExhausted)
		}
	}

	select {
	case a.sem <- struct{}{}:
	case <-acquireCtx.Done():
		return errs.Wrap(errs.Transient, "graph.WithConnection", errs.ErrPoolExhausted)
	}
	defer func() { <-a.sem }()

	_, err := a.withRetry(ctx, "graph.WithConnection", a.cfg.MaxRetries, a.cfg.RetryBackoffMs, func() (any, error) {
		return nil, f(a.db)
	})
	return err
}

// Execute runs query with retry-with-backoff-and-jitter on transient
// write-lock conflicts, routed through a per-path circuit breaker so a
// persistently contended database fails fast instead of retrying forever.
func (a *Adapter) Execute(ctx context.Context, query string, args []any, opts ExecuteOptions) (*Rows, error) {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = a.cfg.MaxRetries
	}
	backoffMs := opts.RetryBackoffMs
	if backoffMs <= 0 {
		backoffMs = a.cfg.RetryBackoffMs
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	result, err := a.withRetry(ctx, "graph.Execute", maxRetries, backoffMs, func() (any, error) {
		return a.runOnce(ctx, query, args)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Rows), nil
}

// withRetry is the shared retry-with-backoff-and-jitter loop behind both
// WithConnection and Execute. A non-transient error from fn — including
// a caller's own business-logic sentinel, such as the store's
// duplicate-content check — is returned unwrapped and immediately,
// without spending a retry; only a genuine lock/busy conflict backs off
// and retries through the breaker.
func (a *Adapter) withRetry(ctx context.Context, op string, maxRetries, backoffMs int, fn func() (any, error)) (any, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err := a.breaker.Execute(fn)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errs.Wrap(errs.Transient, op, errs.ErrQueryTimeout)
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errs.Wrap(errs.Transient, op, errs.ErrPoolExhausted)
		}
		if !isTransient(err) {
			return nil, err
		}

		delay := time.Duration(float64(backoffMs)*math.Pow(2, float64(attempt))) * time.Millisecond
		jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
		a.log.Warn("transient write conflict, retrying",
			zap.String("op", op), zap.Int("attempt", attempt), zap.Duration("delay", delay+jitter), zap.Error(err))

		select {
		case <-time.After(delay + jitter):
		case <-ctx.Done():
			return nil, errs.Wrap(errs.Transient, op, errs.ErrQueryTimeout)
		}
	}
	return nil, errs.Wrap(errs.Transient, op, fmt.Errorf("%w: %v", errs.ErrWriteConflict, lastErr))
}

func (a *Adapter) runOnce(ctx context.Context, query string, args []any) (*Rows, error) {
	trimmed := strings.TrimSpace(strings.ToUpper(query))
	if strings.HasPrefix(trimmed, "SELECT") || strings.HasPrefix(trimmed, "WITH") {
		sqlRows, err := a.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		defer sqlRows.Close()
		return scanRows(sqlRows)
	}
	if _, err := a.db.ExecContext(ctx, query, args...); err != nil {
		return nil, err
	}
	return &Rows{}, nil
}

func scanRows(sqlRows *sql.Rows) (*Rows, error) {
	cols, err := sqlRows.Columns()
	if err != nil {
		return nil, err
	}
	out := &Rows{Columns: cols}
	for sqlRows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := sqlRows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out.Values = append(out.Values, vals)
	}
	return out, sqlRows.Err()
}

func isTransient(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "busy")
}

// Close decrements this path's shared refcount, closing the underlying
// handle only when the last opener has closed.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		closed, cerr := releaseShared(a.path)
		if cerr != nil {
			err = cerr
			return
		}
		if closed {
			a.log.Info("closed shared database handle")
		}
	})
	return err
}

// Refcount reports the number of open Adapters sharing this path's
// underlying handle, for diagnostics and tests.
func (a *Adapter) Refcount() int {
	return refcountFor(a.path)
}
