// Package router resolves named provider configurations into live provider
// instances and wraps every storage call with a per-call timeout and bounded
// exponential backoff for retryable errors.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/chunkvault/internal/logging"
	"github.com/dmitrijs2005/chunkvault/internal/models"
	"github.com/dmitrijs2005/chunkvault/internal/netx"
	"github.com/dmitrijs2005/chunkvault/internal/provider"
	"github.com/dmitrijs2005/chunkvault/internal/repositories/providers"
)

// RetryPolicy bounds how storage calls are retried. Only errors recognized by
// provider.IsRetryable are retried; everything else surfaces immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	CallTimeout time.Duration
}

// DefaultRetryPolicy matches the shipped configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  8 * time.Second,
		CallTimeout: 2 * time.Minute,
	}
}

type cacheEntry struct {
	once sync.Once
	p    provider.Provider
	err  error
}

// Router hands out provider instances by configuration name. Instances are
// validated once and cached per (name, version) for the process lifetime, so
// editing a configuration (which bumps its version) yields a fresh instance
// while in-flight transfers keep the one they started with.
type Router struct {
	repo   providers.Repository
	policy RetryPolicy
	log    logging.Logger

	mu    sync.Mutex
	cache map[string]*cacheEntry
}

func New(repo providers.Repository, policy RetryPolicy, log logging.Logger) *Router {
	return &Router{
		repo:   repo,
		policy: policy,
		log:    log.With("component", "router"),
		cache:  map[string]*cacheEntry{},
	}
}

// Resolve returns the live provider for the named configuration together with
// the stored configuration record. Construction and the live credential check
// happen at most once per (name, version) even under concurrent first use.
func (r *Router) Resolve(ctx context.Context, name string) (provider.Provider, *models.ProviderConfig, error) {
	cfg, err := r.repo.GetByName(ctx, name)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve provider %q: %w", name, err)
	}

	key := fmt.Sprintf("%s@%d", cfg.Name, cfg.Version)
	r.mu.Lock()
	entry, ok := r.cache[key]
	if !ok {
		entry = &cacheEntry{}
		r.cache[key] = entry
	}
	r.mu.Unlock()

	entry.once.Do(func() {
		p, err := provider.New(cfg.Platform, cfg.Config, true)
		if err != nil {
			entry.err = err
			return
		}
		vctx, cancel := context.WithTimeout(ctx, r.policy.CallTimeout)
		defer cancel()
		if err := p.ValidateConfig(vctx); err != nil {
			entry.err = err
			return
		}
		entry.p = p
	})

	if entry.err != nil {
		// A failed construction is not cached forever; the next caller
		// gets a fresh attempt.
		r.mu.Lock()
		if r.cache[key] == entry {
			delete(r.cache, key)
		}
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("provider %q: %w", name, entry.err)
	}
	return entry.p, cfg, nil
}

// ResolveByID is Resolve keyed by configuration id, used when reopening files
// that reference their provider by id.
func (r *Router) ResolveByID(ctx context.Context, id string) (provider.Provider, *models.ProviderConfig, error) {
	cfg, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve provider id %q: %w", id, err)
	}
	return r.Resolve(ctx, cfg.Name)
}

// PrepareStorage calls the provider with retry and timeout applied.
func (r *Router) PrepareStorage(ctx context.Context, p provider.Provider, meta provider.FileInfo) (provider.Context, error) {
	var out provider.Context
	err := r.do(ctx, "prepare storage", func(cctx context.Context) error {
		var err error
		out, err = p.PrepareStorage(cctx, meta)
		return err
	})
	return out, err
}

func (r *Router) UploadChunk(ctx context.Context, p provider.Provider, payload []byte, sctx provider.Context) (provider.ChunkRef, error) {
	var out provider.ChunkRef
	err := r.do(ctx, "upload chunk", func(cctx context.Context) error {
		var err error
		out, err = p.UploadChunk(cctx, payload, sctx)
		return err
	})
	return out, err
}

func (r *Router) DownloadChunk(ctx context.Context, p provider.Provider, ref provider.ChunkRef, sctx provider.Context) ([]byte, error) {
	var out []byte
	err := r.do(ctx, "download chunk", func(cctx context.Context) error {
		var err error
		out, err = p.DownloadChunk(cctx, ref, sctx)
		return err
	})
	return out, err
}

func (r *Router) DeleteChunk(ctx context.Context, p provider.Provider, ref provider.ChunkRef, sctx provider.Context) error {
	return r.do(ctx, "delete chunk", func(cctx context.Context) error {
		return p.DeleteChunk(cctx, ref, sctx)
	})
}

// do runs one storage call with the per-call timeout, retrying retryable
// failures with exponential backoff. A per-call deadline expiry is treated as
// transient; cancellation of the parent context stops the loop.
func (r *Router) do(ctx context.Context, op string, call func(context.Context) error) error {
	attempts := r.policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := r.policy.BaseBackoff

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		cctx := ctx
		cancel := context.CancelFunc(func() {})
		if r.policy.CallTimeout > 0 {
			cctx, cancel = context.WithTimeout(ctx, r.policy.CallTimeout)
		}
		err = call(cctx)
		cancel()

		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %s timed out", provider.ErrTransient, op)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !provider.IsRetryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		r.log.Warn(ctx, "retrying storage call", "op", op, "attempt", attempt, "delay", delay.String(), "error", err.Error())
		if serr := netx.SleepContext(ctx, delay); serr != nil {
			return serr
		}
		delay *= 2
		if r.policy.MaxBackoff > 0 && delay > r.policy.MaxBackoff {
			delay = r.policy.MaxBackoff
		}
	}
	return fmt.Errorf("%s: attempts exhausted: %w", op, err)
}
