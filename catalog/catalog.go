// Package catalog keeps a SQLite index of scanned items so they can be
// searched without walking the library. The sidecars stay authoritative;
// the catalog is rebuilt from them on every scan.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/stevecastle/wallkit/media"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	path         TEXT PRIMARY KEY,
	root         TEXT NOT NULL,
	id           TEXT NOT NULL,
	title        TEXT NOT NULL,
	type         TEXT NOT NULL,
	rating       TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	packaged     INTEGER NOT NULL DEFAULT 0,
	package_path TEXT NOT NULL DEFAULT '',
	preview_path TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_root ON items(root);
CREATE TABLE IF NOT EXISTS item_collections (
	item_path TEXT NOT NULL,
	label     TEXT NOT NULL,
	PRIMARY KEY (item_path, label)
);
CREATE INDEX IF NOT EXISTS idx_item_collections_label ON item_collections(label);
CREATE TABLE IF NOT EXISTS item_tags (
	item_path TEXT NOT NULL,
	position  INTEGER NOT NULL,
	label     TEXT NOT NULL,
	PRIMARY KEY (item_path, label)
);
CREATE INDEX IF NOT EXISTS idx_item_tags_label ON item_tags(label);
`

// Catalog is an open item index.
type Catalog struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the catalog database at path. ":memory:"
// gives a private in-memory catalog.
func Open(path string) (*Catalog, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "create catalog directory")
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open catalog %s", path)
	}
	// SQLite allows one writer; a single connection also keeps an in-memory
	// database shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "configure catalog %s", path)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "create catalog schema in %s", path)
	}
	return &Catalog{db: db, path: path}, nil
}

// DefaultPath returns catalog.db next to the config file.
func DefaultPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "catalog.db")
}

// Path returns the database location.
func (c *Catalog) Path() string { return c.path }

// Close closes the database.
func (c *Catalog) Close() error { return c.db.Close() }

// Sync replaces every row recorded under root with items.
func (c *Catalog) Sync(ctx context.Context, root string, items []media.Item) error {
	return c.tx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM item_collections WHERE item_path IN (SELECT path FROM items WHERE root = ?)`,
			`DELETE FROM item_tags WHERE item_path IN (SELECT path FROM items WHERE root = ?)`,
			`DELETE FROM items WHERE root = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, root); err != nil {
				return errors.Wrap(err, "clear catalog root")
			}
		}
		for _, it := range items {
			if err := insertItem(ctx, tx, root, it); err != nil {
				return err
			}
		}
		return nil
	})
}

// Refresh re-reads the given item folders from disk and updates their rows.
// Folders that are not items any more are removed.
func (c *Catalog) Refresh(ctx context.Context, root string, dirs []string) error {
	return c.tx(ctx, func(tx *sql.Tx) error {
		for _, dir := range dirs {
			if err := deleteItem(ctx, tx, dir); err != nil {
				return err
			}
			it, ok, _, err := media.LoadItem(dir)
			if err != nil || !ok {
				continue
			}
			if err := insertItem(ctx, tx, root, it); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Catalog) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin catalog transaction")
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit catalog")
}

func deleteItem(ctx context.Context, tx *sql.Tx, path string) error {
	for _, stmt := range []string{
		`DELETE FROM item_collections WHERE item_path = ?`,
		`DELETE FROM item_tags WHERE item_path = ?`,
		`DELETE FROM items WHERE path = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, path); err != nil {
			return errors.Wrapf(err, "delete catalog item %s", path)
		}
	}
	return nil
}

func insertItem(ctx context.Context, tx *sql.Tx, root string, it media.Item) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO items (path, root, id, title, type, rating, description, packaged, package_path, preview_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.Path, root, it.ID, it.Title, it.Type, it.Rating, it.Description, it.Packaged, it.PackagePath, it.PreviewPath)
	if err != nil {
		return errors.Wrapf(err, "index item %s", it.Path)
	}
	for _, label := range it.Collections {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO item_collections (item_path, label) VALUES (?, ?)`, it.Path, label); err != nil {
			return errors.Wrapf(err, "index collections of %s", it.Path)
		}
	}
	for i, tag := range it.Tags {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO item_tags (item_path, position, label) VALUES (?, ?, ?)`, it.Path, i, tag); err != nil {
			return errors.Wrapf(err, "index tags of %s", it.Path)
		}
	}
	return nil
}

// Search returns items matching query, ordered by title, with paging.
// hasMore reports whether another page exists.
func (c *Catalog) Search(ctx context.Context, query string, limit, offset int) (items []media.Item, hasMore bool, err error) {
	q, err := ParseQuery(query)
	if err != nil {
		return nil, false, err
	}
	if limit <= 0 {
		limit = 100
	}
	where, args := buildWhereClause(q)
	stmt := `SELECT i.path, i.id, i.title, i.type, i.rating, i.description, i.packaged, i.package_path, i.preview_path
		FROM items i ` + where + ` ORDER BY i.title COLLATE NOCASE, i.path LIMIT ? OFFSET ?`
	args = append(args, limit+1, offset)

	rows, err := c.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, false, errors.Wrap(err, "search catalog")
	}
	defer rows.Close()

	for rows.Next() {
		var it media.Item
		if err := rows.Scan(&it.Path, &it.ID, &it.Title, &it.Type, &it.Rating, &it.Description, &it.Packaged, &it.PackagePath, &it.PreviewPath); err != nil {
			return nil, false, errors.Wrap(err, "read search row")
		}
		it.Collections = []string{}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, false, errors.Wrap(err, "search catalog")
	}

	if len(items) > limit {
		items = items[:limit]
		hasMore = true
	}
	if err := c.attachLabels(ctx, items); err != nil {
		return nil, false, err
	}
	return items, hasMore, nil
}

// attachLabels fills collections and tags for items in one query per table.
func (c *Catalog) attachLabels(ctx context.Context, items []media.Item) error {
	if len(items) == 0 {
		return nil
	}
	index := make(map[string]int, len(items))
	placeholders := make([]string, len(items))
	args := make([]any, len(items))
	for i, it := range items {
		index[it.Path] = i
		placeholders[i] = "?"
		args[i] = it.Path
	}
	in := strings.Join(placeholders, ",")

	load := func(query string, add func(*media.Item, string)) error {
		rows, err := c.db.QueryContext(ctx, fmt.Sprintf(query, in), args...)
		if err != nil {
			return errors.Wrap(err, "load item labels")
		}
		defer rows.Close()
		for rows.Next() {
			var path, label string
			if err := rows.Scan(&path, &label); err != nil {
				return errors.Wrap(err, "read item label")
			}
			if i, ok := index[path]; ok {
				add(&items[i], label)
			}
		}
		return rows.Err()
	}

	err := load(`SELECT item_path, label FROM item_collections WHERE item_path IN (%s) ORDER BY item_path, label`,
		func(it *media.Item, l string) { it.Collections = append(it.Collections, l) })
	if err != nil {
		return err
	}
	return load(`SELECT item_path, label FROM item_tags WHERE item_path IN (%s) ORDER BY item_path, position`,
		func(it *media.Item, l string) { it.Tags = append(it.Tags, l) })
}

// CollectionCount is a collection label with the number of items in it.
type CollectionCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Collections lists every collection label in use, most populated first.
func (c *Catalog) Collections(ctx context.Context) ([]CollectionCount, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT label, COUNT(*) AS n FROM item_collections
		GROUP BY label ORDER BY n DESC, label`)
	if err != nil {
		return nil, errors.Wrap(err, "list collections")
	}
	defer rows.Close()

	out := []CollectionCount{}
	for rows.Next() {
		var cc CollectionCount
		if err := rows.Scan(&cc.Label, &cc.Count); err != nil {
			return nil, errors.Wrap(err, "read collection row")
		}
		out = append(out, cc)
	}
	return out, errors.Wrap(rows.Err(), "list collections")
}
