// Package dedupe suppresses repeated memory candidates.
//
// Content is normalized (trimmed, case-folded, whitespace collapsed) and
// hashed; a bounded least-recently-used cache remembers which hashes each
// session has recently admitted.
package dedupe

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/halldyll/recall-go/pkg/model"
)

// Normalize trims s, folds case and collapses whitespace runs to a single
// space. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Hash returns the hex MD5 of the normalized content.
func Hash(s string) string {
	sum := md5.Sum([]byte(Normalize(s)))
	return hex.EncodeToString(sum[:])
}

type key struct {
	session model.SessionID
	hash    string
}

// Entry records the stored memory behind a cached hash. Expiry depends on
// the stored kind, not on the kind of a later candidate with the same text.
type Entry struct {
	Kind   model.MemoryKind
	SeenAt time.Time
}

// Cache is a bounded recently-seen cache keyed by session and content hash.
// It is safe for concurrent use.
type Cache struct {
	entries *lru.Cache[key, Entry]
}

// NewCache creates a cache holding at most capacity entries.
func NewCache(capacity int) (*Cache, error) {
	entries, err := lru.New[key, Entry](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

// Seen reports whether hash was recently admitted for session. A hit counts
// as a use and refreshes the entry's recency.
func (c *Cache) Seen(session model.SessionID, hash string) bool {
	_, ok := c.entries.Get(key{session: session, hash: hash})
	return ok
}

// Admit records that a memory of kind with this hash was stored for session
// at time at, evicting the least recently used entry if the cache is full.
func (c *Cache) Admit(session model.SessionID, hash string, kind model.MemoryKind, at time.Time) {
	c.entries.Add(key{session: session, hash: hash}, Entry{Kind: kind, SeenAt: at})
}

// LastSeen returns the cached entry for hash without refreshing it.
func (c *Cache) LastSeen(session model.SessionID, hash string) (Entry, bool) {
	return c.entries.Peek(key{session: session, hash: hash})
}

// Forget drops hash for session.
func (c *Cache) Forget(session model.SessionID, hash string) {
	c.entries.Remove(key{session: session, hash: hash})
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}
