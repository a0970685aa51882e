package payload

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"
	"github.com/spf13/afero"

	"github.com/sells-group/afm-api/internal/metrics"
)

// Cache memoizes decoded payloads. Entries are keyed by path, modification
// time and size, so a rewritten file is decoded again.
type Cache struct {
	fs  afero.Fs
	lru *lru.Cache[string, any]
}

// NewCache creates a payload cache holding up to size decoded files. A size
// of zero or less disables caching.
func NewCache(fs afero.Fs, size int) (*Cache, error) {
	c := &Cache{fs: fs}
	if size <= 0 {
		return c, nil
	}
	l, err := lru.New[string, any](size)
	if err != nil {
		return nil, eris.Wrap(err, "payload: create lru")
	}
	c.lru = l
	return c, nil
}

// Load returns the decoded payload at path.
func (c *Cache) Load(path string) (any, error) {
	if c.lru == nil {
		return DecodeFile(c.fs, path)
	}

	info, err := c.fs.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "payload: stat %s", path)
	}
	key := fmt.Sprintf("%s|%d|%d", path, info.ModTime().UnixNano(), info.Size())

	if v, ok := c.lru.Get(key); ok {
		metrics.PayloadCacheTotal.WithLabelValues("hit").Inc()
		return v, nil
	}
	metrics.PayloadCacheTotal.WithLabelValues("miss").Inc()

	v, err := DecodeFile(c.fs, path)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, v)
	return v, nil
}

// Len returns the number of cached payloads.
func (c *Cache) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

// Purge drops every cached payload.
func (c *Cache) Purge() {
	if c.lru != nil {
		c.lru.Purge()
	}
}
