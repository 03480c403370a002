// Package access keeps the client-local record that a wallet address has
// already paid for access.
//
// A grant is advisory: it exists only to avoid re-prompting payment on every
// navigation, and it is never a server-verifiable credential.  Grants are
// scoped to a single address and must be revoked the moment that address
// disconnects.
package access

import (
	"strings"
	"sync"
	"time"
)

// Grant records a completed payment for one wallet address.
type Grant struct {
	Address   string
	Network   string
	GrantedAt time.Time
}

// Cache is an explicit, address-scoped grant cache.  Pass one instance into
// the orchestrator and wire OnDisconnect to the wallet's disconnect event;
// it is deliberately not a process-wide singleton.
type Cache struct {
	mu     sync.Mutex
	grants map[string]Grant
	now    func() time.Time
}

func NewCache() *Cache {
	return &Cache{
		grants: make(map[string]Grant),
		now:    time.Now,
	}
}

func key(address string) string {
	return strings.ToLower(address)
}

// Record stores a grant for the address, replacing any previous one.
func (c *Cache) Record(address, network string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.grants[key(address)] = Grant{
		Address:   address,
		Network:   network,
		GrantedAt: c.now(),
	}
}

// Granted reports whether the address holds a grant.  A grant for one
// address never answers for another.
func (c *Cache) Granted(address string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.grants[key(address)]

	return ok
}

// Lookup returns the grant for the address, if any.
func (c *Cache) Lookup(address string) (Grant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.grants[key(address)]

	return g, ok
}

// Revoke removes the grant for the address.
func (c *Cache) Revoke(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.grants, key(address))
}

// OnDisconnect is the lifecycle hook for wallet disconnection: it clears the
// disconnected address immediately.
func (c *Cache) OnDisconnect(address string) {
	c.Revoke(address)
}

// RevokeAll clears every grant, e.g. when the wallet provider itself goes
// away.
func (c *Cache) RevokeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.grants = make(map[string]Grant)
}
