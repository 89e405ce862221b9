package executor

import (
	"sync"
	"time"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// Cooldown suppresses repeat dispatch of the same game within a TTL. The
// ledger remains the authority on ownership; this only saves a claim round
// trip when a game is re-detected every cycle. It is safe for concurrent use.
type Cooldown struct {
	seen map[domain.GameID]time.Time
	ttl  time.Duration
	mu   sync.Mutex
	now  func() time.Time
}

// NewCooldown creates a Cooldown with the given ttl. A zero ttl disables it.
func NewCooldown(ttl time.Duration) *Cooldown {
	return &Cooldown{seen: make(map[domain.GameID]time.Time), ttl: ttl, now: time.Now}
}

// Seen reports whether game was dispatched within the ttl. If not, it
// records the dispatch and returns false.
func (c *Cooldown) Seen(game domain.GameID) bool {
	if c.ttl <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if last, ok := c.seen[game]; ok && now.Sub(last) < c.ttl {
		return true
	}
	c.seen[game] = now
	return false
}

// Cleanup removes expired entries.
func (c *Cooldown) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, ts := range c.seen {
		if now.Sub(ts) >= c.ttl {
			delete(c.seen, id)
		}
	}
}
