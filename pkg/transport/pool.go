package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/karlseguin/ccache"
)

const (
	// DefaultPoolSize bounds the number of distinct targets a Pool keeps.
	DefaultPoolSize = 10

	poolEntryTTL = 10 * time.Minute
)

// Pool keeps one *http.Client per key so keep-alive connections are reused
// across calls. Least recently used entries are evicted once the pool holds
// more than its size, and their idle connections are closed.
//
// A Pool may be shared between connectors. HTTPConnector keys its client by
// target, timeout and TLS mode but not by DeviceDialer, so connectors sharing
// a pool must use the same dialer for the same device.
type Pool struct {
	mu     sync.Mutex
	cache  *ccache.Cache
	closed bool

	// live mirrors the cached clients so Close can reach them; ccache
	// cannot enumerate its entries.
	liveMu sync.Mutex
	live   map[*http.Client]struct{}
}

// NewPool creates a pool bounded to size entries; size <= 0 uses
// DefaultPoolSize. The pool runs a background worker until Close.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	p := &Pool{live: make(map[*http.Client]struct{})}
	p.cache = ccache.New(ccache.Configure().
		MaxSize(int64(size)).
		ItemsToPrune(1).
		OnDelete(p.evicted))
	return p
}

// evicted runs on the cache worker.
func (p *Pool) evicted(item *ccache.Item) {
	c, ok := item.Value().(*http.Client)
	if !ok {
		return
	}
	p.liveMu.Lock()
	delete(p.live, c)
	p.liveMu.Unlock()
	c.CloseIdleConnections()
}

// Get returns the client cached for key, calling create on a miss. After
// Close every call gets a fresh client that is not cached.
func (p *Pool) Get(key string, create func() *http.Client) *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return create()
	}
	if item := p.cache.Get(key); item != nil && !item.Expired() {
		if c, ok := item.Value().(*http.Client); ok {
			item.Extend(poolEntryTTL)
			return c
		}
	}
	c := create()
	p.liveMu.Lock()
	p.live[c] = struct{}{}
	p.liveMu.Unlock()
	p.cache.Set(key, c, poolEntryTTL)
	return c
}

// Close stops the background worker and closes the idle connections of
// every cached client. Close is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	p.cache.Stop()

	p.liveMu.Lock()
	live := p.live
	p.live = nil
	p.liveMu.Unlock()
	for c := range live {
		c.CloseIdleConnections()
	}
}
