// Package pending holds one-time linking codes that have been issued but not yet redeemed.
package pending

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"linkgate/internal/linking/domain"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultTTL         = 10 * time.Minute
	DefaultMaxPending  = 10000
	DefaultMaxAttempts = 100
)

// ErrCodeSpaceExhausted is returned when no unused code could be generated within the attempt budget.
var ErrCodeSpaceExhausted = errors.New("pending: could not generate an unused code")

// CodeSource produces candidate codes. *code.Generator satisfies it.
type CodeSource interface {
	Generate() (string, error)
}

// Config tunes a Registry.
type Config struct {
	// TTL is how long an issued code stays redeemable.
	TTL time.Duration
	// MaxPending caps the number of stored codes; a negative value disables the cap.
	MaxPending int
	// MaxAttempts bounds collision retries per Issue.
	MaxAttempts int
}

// Registry maps codes to pending links. At most one code per account is live at a time.
type Registry struct {
	mu        sync.Mutex
	codes     map[string]domain.PendingCode
	byAccount map[string]string
	gen       CodeSource
	ttl       time.Duration
	max       int
	attempts  int
	nowF      func() time.Time
}

// New returns an empty Registry drawing codes from gen.
func New(gen CodeSource, cfg Config) *Registry {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxPending == 0 {
		cfg.MaxPending = DefaultMaxPending
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Registry{
		codes:     make(map[string]domain.PendingCode),
		byAccount: make(map[string]string),
		gen:       gen,
		ttl:       cfg.TTL,
		max:       cfg.MaxPending,
		attempts:  cfg.MaxAttempts,
		nowF:      func() time.Time { return time.Now().UTC() },
	}
}

// TTL returns the lifetime given to new codes.
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// Issue creates a new code for accountID, replacing any code the account already holds.
// When the registry is full, expired codes are dropped first, then the oldest codes.
func (r *Registry) Issue(accountID, displayName string) (domain.PendingCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowF()
	r.revokeLocked(accountID)
	if r.max > 0 && len(r.codes) >= r.max {
		r.evictLocked(now)
	}

	for i := 0; i < r.attempts; i++ {
		c, err := r.gen.Generate()
		if err != nil {
			return domain.PendingCode{}, fmt.Errorf("pending: generate code: %w", err)
		}
		if _, taken := r.codes[c]; taken {
			continue
		}
		p := domain.PendingCode{
			Code:        c,
			AccountID:   accountID,
			DisplayName: displayName,
			CreatedAt:   now,
			ExpiresAt:   now.Add(r.ttl),
		}
		r.codes[c] = p
		r.byAccount[accountID] = c
		return p, nil
	}
	return domain.PendingCode{}, ErrCodeSpaceExhausted
}

// Peek returns the pending code without consuming it. Expired codes are removed and reported missing.
func (r *Registry) Peek(code string) (domain.PendingCode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.liveLocked(code, r.nowF())
}

// Consume returns and removes the pending code. Only one caller can consume a given code.
func (r *Registry) Consume(code string) (domain.PendingCode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.liveLocked(code, r.nowF())
	if !ok {
		return domain.PendingCode{}, false
	}
	r.deleteLocked(p)
	return p, true
}

// RevokeAccount drops the account's pending code, if any.
func (r *Registry) RevokeAccount(accountID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revokeLocked(accountID)
}

// Sweep removes every code that is expired at now and returns how many were removed.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepLocked(now)
}

// Counts returns the number of stored codes, split by liveness at now.
func (r *Registry) Counts(now time.Time) (total, active, expired int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.codes {
		if p.Live(now) {
			active++
		} else {
			expired++
		}
	}
	return len(r.codes), active, expired
}

// Len returns the number of stored codes, live or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.codes)
}

func (r *Registry) liveLocked(code string, now time.Time) (domain.PendingCode, bool) {
	p, ok := r.codes[code]
	if !ok {
		return domain.PendingCode{}, false
	}
	if !p.Live(now) {
		r.deleteLocked(p)
		return domain.PendingCode{}, false
	}
	return p, true
}

func (r *Registry) revokeLocked(accountID string) bool {
	c, ok := r.byAccount[accountID]
	if !ok {
		return false
	}
	delete(r.codes, c)
	delete(r.byAccount, accountID)
	return true
}

func (r *Registry) deleteLocked(p domain.PendingCode) {
	delete(r.codes, p.Code)
	if r.byAccount[p.AccountID] == p.Code {
		delete(r.byAccount, p.AccountID)
	}
}

func (r *Registry) sweepLocked(now time.Time) int {
	removed := 0
	for _, p := range r.codes {
		if !p.Live(now) {
			r.deleteLocked(p)
			removed++
		}
	}
	return removed
}

// evictLocked frees at least one slot below max.
func (r *Registry) evictLocked(now time.Time) {
	r.sweepLocked(now)
	excess := len(r.codes) - r.max + 1
	if excess <= 0 {
		return
	}
	all := make([]domain.PendingCode, 0, len(r.codes))
	for _, p := range r.codes {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].Code < all[j].Code
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	for _, p := range all[:excess] {
		r.deleteLocked(p)
	}
}
