// Package collections maintains the user-defined collection labels stored in
// each item's sidecar.
package collections

import (
	"context"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stevecastle/wallkit/errs"
	"github.com/stevecastle/wallkit/media"
	"github.com/stevecastle/wallkit/sidecar"
)

// Result is the outcome of a mutation on one item folder.
type Result struct {
	Path    string `json:"path"`
	Changed bool   `json:"changed"`
	Err     error  `json:"-"`
}

// Error returns the failure text, or "" on success.
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Store mutates collection labels. Mutations are written to disk immediately.
type Store struct {
	logger zerolog.Logger
}

// New creates a Store.
func New(logger zerolog.Logger) *Store {
	return &Store{logger: logger.With().Str("component", "collections").Logger()}
}

// ValidateLabel rejects empty and whitespace-only labels. Labels are
// otherwise used byte for byte.
func ValidateLabel(label string) error {
	if strings.TrimSpace(label) == "" {
		return errs.Invalid("collections", "collection label must not be empty")
	}
	return nil
}

// Add puts label on every folder in paths. Each folder is handled on its own;
// one failure does not stop the rest.
func (s *Store) Add(paths []string, label string) ([]Result, error) {
	if err := ValidateLabel(label); err != nil {
		return nil, err
	}
	return s.apply(paths, func(labels []string) ([]string, bool) {
		if slices.Contains(labels, label) {
			return labels, false
		}
		return append(labels, label), true
	}), nil
}

// Remove takes label off every folder in paths.
func (s *Store) Remove(paths []string, label string) ([]Result, error) {
	if err := ValidateLabel(label); err != nil {
		return nil, err
	}
	return s.apply(paths, func(labels []string) ([]string, bool) {
		return without(labels, label)
	}), nil
}

// DeleteEverywhere removes label from every item under root, including items
// the caller has not loaded. It rescans the same folders the scanner visits,
// so the cost grows with the size of the library. Only folders that had the
// label are returned.
func (s *Store) DeleteEverywhere(ctx context.Context, root, label string) ([]Result, error) {
	if err := ValidateLabel(label); err != nil {
		return nil, err
	}
	dirs, err := media.ItemDirs(root)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if _, ok, err := media.FindPreview(dir); err != nil || !ok {
			continue
		}
		doc, err := sidecar.Read(dir)
		if err != nil || !slices.Contains(doc.Strings(sidecar.KeyCollections), label) {
			continue
		}
		results = append(results, s.apply([]string{dir}, func(labels []string) ([]string, bool) {
			return without(labels, label)
		})...)
	}
	s.logger.Info().Str("label", label).Int("items", len(results)).Msg("collection deleted")
	return results, nil
}

func (s *Store) apply(paths []string, mutate func([]string) ([]string, bool)) []Result {
	results := make([]Result, 0, len(paths))
	for _, p := range paths {
		r := Result{Path: p}
		r.Err = sidecar.Update(p, func(doc sidecar.Document) error {
			labels, changed := mutate(dedupe(doc.Strings(sidecar.KeyCollections)))
			r.Changed = changed
			if !changed {
				return sidecar.ErrUnchanged
			}
			doc.SetStrings(sidecar.KeyCollections, labels)
			return nil
		})
		if r.Err != nil {
			r.Changed = false
			s.logger.Warn().Err(r.Err).Str("path", p).Msg("collection update failed")
		}
		results = append(results, r)
	}
	return results
}

// Failed counts the results that carry an error.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

func without(labels []string, label string) ([]string, bool) {
	out := labels[:0:0]
	changed := false
	for _, l := range labels {
		if l == label {
			changed = true
			continue
		}
		out = append(out, l)
	}
	return out, changed
}

func dedupe(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	return out
}
