package intel

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Cache stores lookup outcomes in SQLite so repeat queries within the
// TTL never hit the network. Positive reports and clean not-found
// verdicts are both cached; unavailable outcomes never are.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
	log *zap.Logger
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS lookups (
	kind       TEXT NOT NULL,
	artifact   TEXT NOT NULL,
	found      INTEGER NOT NULL,
	report     TEXT,
	fetched_at INTEGER NOT NULL,
	PRIMARY KEY (kind, artifact)
);`

// OpenCache opens (creating if needed) the cache database at path.
func OpenCache(path string, ttl time.Duration, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open lookup cache: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init lookup cache schema: %w", err)
	}

	return &Cache{
		db:  db,
		ttl: ttl,
		now: time.Now,
		log: logger,
	}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached outcome for an artifact. hit reports a fresh
// entry; a hit with a nil report means the provider's not-found verdict
// was cached. Stale entries read as misses.
func (c *Cache) Get(ctx context.Context, kind Kind, artifact string) (rep *Report, hit bool, err error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT found, report, fetched_at FROM lookups WHERE kind = ? AND artifact = ?`,
		string(kind), artifact)

	var found int
	var payload sql.NullString
	var fetched int64
	if err := row.Scan(&found, &payload, &fetched); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("lookup cache read: %w", err)
	}

	if c.now().Sub(time.Unix(fetched, 0)) > c.ttl {
		return nil, false, nil
	}
	if found == 0 {
		return nil, true, nil
	}

	var r Report
	if err := json.Unmarshal([]byte(payload.String), &r); err != nil {
		return nil, false, fmt.Errorf("lookup cache decode: %w", err)
	}
	return &r, true, nil
}

// Put stores an outcome. A nil report records a not-found verdict.
func (c *Cache) Put(ctx context.Context, kind Kind, artifact string, rep *Report) error {
	found := 0
	var payload any
	if rep != nil {
		data, err := json.Marshal(rep)
		if err != nil {
			return fmt.Errorf("lookup cache encode: %w", err)
		}
		found = 1
		payload = string(data)
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO lookups (kind, artifact, found, report, fetched_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(kind, artifact) DO UPDATE SET
		   found = excluded.found,
		   report = excluded.report,
		   fetched_at = excluded.fetched_at`,
		string(kind), artifact, found, payload, c.now().Unix())
	if err != nil {
		return fmt.Errorf("lookup cache write: %w", err)
	}
	return nil
}

// Cached wraps a provider with the response cache. Cache failures
// degrade to a direct provider call; they never surface to the shell.
type Cached struct {
	Provider
	cache *Cache
	log   *zap.Logger
}

// WithCache decorates p. A nil cache returns p unchanged.
func WithCache(p Provider, cache *Cache, logger *zap.Logger) Provider {
	if cache == nil {
		return p
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{Provider: p, cache: cache, log: logger}
}

// Lookup implements Provider.
func (c *Cached) Lookup(ctx context.Context, artifact string) (*Report, error) {
	rep, hit, err := c.cache.Get(ctx, c.Kind(), artifact)
	if err != nil {
		c.log.Debug("lookup cache read failed", zap.Error(err))
	} else if hit {
		c.log.Debug("lookup cache hit",
			zap.String("kind", string(c.Kind())),
			zap.String("artifact", artifact))
		if rep == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, artifact)
		}
		return rep, nil
	}

	rep, err = c.Provider.Lookup(ctx, artifact)
	switch {
	case err == nil:
		if perr := c.cache.Put(ctx, c.Kind(), artifact, rep); perr != nil {
			c.log.Debug("lookup cache write failed", zap.Error(perr))
		}
	case errors.Is(err, ErrNotFound):
		if perr := c.cache.Put(ctx, c.Kind(), artifact, nil); perr != nil {
			c.log.Debug("lookup cache write failed", zap.Error(perr))
		}
	}
	return rep, err
}
