package media

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ScanOptions configure Scan.
type ScanOptions struct {
	Logger zerolog.Logger
	// OnItem is called once per item as soon as it has been resolved.
	OnItem func(Item)
}

// ItemDirs lists the immediate subdirectories of root in enumeration order.
// A missing root yields no directories and no error.
func ItemDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read library root %s", root)
	}
	dirs := make([]string, 0, len(entries))
	for _, e := range entries {
		p := filepath.Join(root, e.Name())
		if e.IsDir() {
			dirs = append(dirs, p)
			continue
		}
		if e.Type()&os.ModeSymlink != 0 {
			if info, err := os.Stat(p); err == nil && info.IsDir() {
				dirs = append(dirs, p)
			}
		}
	}
	return dirs, nil
}

// Scan walks root one level deep and returns every folder that has a
// recognized preview. Each item is also passed to opts.OnItem as soon as it
// is resolved. Unreadable folders are logged and skipped.
func Scan(ctx context.Context, root string, opts ScanOptions) ([]Item, error) {
	logger := opts.Logger.With().Str("component", "scanner").Logger()

	dirs, err := ItemDirs(root)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(dirs))
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		item, ok, sidecarErr, err := LoadItem(dir)
		if err != nil {
			logger.Warn().Err(err).Str("path", dir).Msg("skipping unreadable folder")
			continue
		}
		if !ok {
			continue
		}
		if sidecarErr != nil {
			logger.Warn().Err(sidecarErr).Str("item", item.ID).Msg("ignoring sidecar")
		}
		if opts.OnItem != nil {
			opts.OnItem(item)
		}
		items = append(items, item)
	}

	logger.Debug().Str("root", root).Int("items", len(items)).Int("folders", len(dirs)).Msg("scan complete")
	return items, nil
}

// Select returns the items whose ID is in ids, in the order of ids. Unknown
// IDs are returned separately. An empty ids selects everything.
func Select(items []Item, ids []string) (selected []Item, unknown []string) {
	if len(ids) == 0 {
		return items, nil
	}
	byID := make(map[string]Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	for _, id := range ids {
		if it, ok := byID[id]; ok {
			selected = append(selected, it)
		} else {
			unknown = append(unknown, id)
		}
	}
	return selected, unknown
}
