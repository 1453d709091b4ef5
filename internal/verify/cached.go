package verify

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cached memoizes Check results for identical inputs. Only the signature check
// is cached, so expiry and principal decisions are always made fresh.
type Cached struct {
	checker Checker
	c       *gocache.Cache
}

type cachedResult struct {
	err error
}

func NewCached(checker Checker, ttl time.Duration) *Cached {
	return &Cached{
		checker: checker,
		c:       gocache.New(ttl, time.Minute),
	}
}

func (c *Cached) Verify(publicKey, certificate []byte) bool {
	return c.Check(publicKey, certificate) == nil
}

func (c *Cached) Check(publicKey, certificate []byte) error {
	key := cacheKey(publicKey, certificate)
	if v, ok := c.c.Get(key); ok {
		if r, ok := v.(cachedResult); ok {
			return r.err
		}
	}

	err := c.checker.Check(publicKey, certificate)
	c.c.SetDefault(key, cachedResult{err: err})
	return err
}

// Len is the number of cached results.
func (c *Cached) Len() int {
	return c.c.ItemCount()
}

func cacheKey(publicKey, certificate []byte) string {
	h := sha256.New()
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(publicKey)))
	h.Write(n[:])
	h.Write(publicKey)
	h.Write(certificate)
	return hex.EncodeToString(h.Sum(nil))
}
