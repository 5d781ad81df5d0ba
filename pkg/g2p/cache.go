package g2p

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Cache is a [Transliterator] that memoises another one in a SQLite
// database, so that slow external transliterators run once per distinct
// text. Entries are namespaced, usually by language, so one database can
// serve several converters.
type Cache struct {
	db        *sql.DB
	namespace string
	next      Transliterator
}

var _ Transliterator = (*Cache)(nil)

// OpenCache opens or creates the cache database at path.
func OpenCache(path, namespace string, next Transliterator) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("g2p: create cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("g2p: open cache: %w", err)
	}

	c := &Cache{db: db, namespace: namespace, next: next}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("g2p: migrate cache: %w", err)
	}
	return c, nil
}

func (c *Cache) migrate() error {
	_, err := c.db.Exec(`
	CREATE TABLE IF NOT EXISTS transliterations (
		ns         TEXT NOT NULL,
		text       TEXT NOT NULL,
		ipa        TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (ns, text)
	);`)
	return err
}

// Transliterate implements [Transliterator]. Lookup failures are logged and
// treated as misses; a failed write does not fail the call.
func (c *Cache) Transliterate(ctx context.Context, text string) (string, error) {
	var ipa string
	err := c.db.QueryRowContext(ctx,
		`SELECT ipa FROM transliterations WHERE ns = ? AND text = ?`,
		c.namespace, text,
	).Scan(&ipa)
	switch {
	case err == nil:
		return ipa, nil
	case !errors.Is(err, sql.ErrNoRows):
		slog.Warn("g2p: cache lookup failed", "namespace", c.namespace, "err", err)
	}

	ipa, err = c.next.Transliterate(ctx, text)
	if err != nil {
		return "", err
	}

	if _, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO transliterations (ns, text, ipa, created_at) VALUES (?, ?, ?, ?)`,
		c.namespace, text, ipa, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		slog.Warn("g2p: cache write failed", "namespace", c.namespace, "err", err)
	}
	return ipa, nil
}

// Len returns the number of cached entries in this cache's namespace.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transliterations WHERE ns = ?`, c.namespace,
	).Scan(&n)
	return n, err
}

// Ping checks that the database is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
