package metering

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dengrow/dengrow/types"
)

// QuotaWindow is one client's free-use counter.
type QuotaWindow struct {
	WindowStart time.Time
	Count       int
}

// QuotaStore is a key-addressed counter with an atomic take operation. It is
// injectable so the in-process map can be swapped for a shared cache without
// touching strategy logic.
type QuotaStore interface {
	// Take atomically applies one use at time now: it starts a new window
	// when none exists or the current one has aged past window, otherwise
	// increments the counter. It reports whether the use fit inside the free
	// limit.
	Take(key string, now time.Time, limit int, window time.Duration) bool
}

// MemoryQuotaStore keeps quota windows in process memory. State survives for
// the process lifetime only; no durability across restarts.
type MemoryQuotaStore struct {
	mu      sync.Mutex
	windows map[string]*QuotaWindow
}

// NewMemoryQuotaStore builds an empty store.
func NewMemoryQuotaStore() *MemoryQuotaStore {
	return &MemoryQuotaStore{windows: make(map[string]*QuotaWindow)}
}

// Take implements QuotaStore. The read-decide-increment sequence is a single
// critical section so two concurrent requests cannot both claim the last
// free slot. Nothing slow happens under the lock.
func (s *MemoryQuotaStore) Take(key string, now time.Time, limit int, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || now.Sub(w.WindowStart) >= window {
		s.windows[key] = &QuotaWindow{WindowStart: now, Count: 1}
		return true
	}

	w.Count++
	return w.Count <= limit
}

// Window returns a copy of the current window for a key, for inspection.
func (s *MemoryQuotaStore) Window(key string) (QuotaWindow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	if !ok {
		return QuotaWindow{}, false
	}
	return *w, true
}

// FreeQuota allows a number of free requests per client key per window, then
// requires payment. Uses are counted on attempt, not on handler success: a
// request that is admitted free but later fails downstream still consumes a
// slot.
type FreeQuota struct {
	Limit  int
	Window time.Duration
	Store  QuotaStore
	Paid   types.PaymentRequirements

	// KeyFunc derives the client key. Defaults to the remote IP.
	KeyFunc func(r *http.Request) string

	// Now is the clock, injectable for tests.
	Now func() time.Time
}

// NewFreeQuota builds a free-quota strategy over the given store.
func NewFreeQuota(limit int, window time.Duration, store QuotaStore, paid types.PaymentRequirements) *FreeQuota {
	return &FreeQuota{
		Limit:   limit,
		Window:  window,
		Store:   store,
		Paid:    paid,
		KeyFunc: clientIP,
		Now:     time.Now,
	}
}

// Evaluate admits the request free while the window has room, otherwise
// requires the configured payment.
func (s *FreeQuota) Evaluate(r *http.Request) Decision {
	key := s.KeyFunc(r)
	if s.Store.Take(key, s.Now(), s.Limit, s.Window) {
		return Allow()
	}

	reqs := s.Paid
	reqs.Resource = r.URL.Path
	d := RequirePayment(reqs)
	d.QuotaExhausted = true
	return d
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
