// Package sidecar reads and rewrites the per-item project.json metadata file.
// Every write is a read-merge-write of the whole document: keys this package
// does not know about are carried over byte for byte.
package sidecar

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/stevecastle/wallkit/errs"
)

// FileName is the sidecar file inside every item folder.
const FileName = "project.json"

// Recognized keys.
const (
	KeyTitle       = "title"
	KeyType        = "type"
	KeyRating      = "contentrating"
	KeyDescription = "description"
	KeyCollections = "collections"
	KeyTags        = "preview_tagger"
)

// Document is a sidecar decoded one level deep. Values stay raw so that
// unknown keys survive a rewrite unchanged.
type Document map[string]json.RawMessage

// Path returns the sidecar path for an item folder.
func Path(dir string) string { return filepath.Join(dir, FileName) }

// Read loads the sidecar in dir. A missing file yields an empty document and
// no error. An unparseable file yields an empty document together with a
// Malformed error so callers can log it and carry on.
func Read(dir string) (Document, error) {
	doc, _, err := load(dir)
	return doc, err
}

// load is Read that also returns the top-level keys in file order.
func load(dir string) (Document, []string, error) {
	p := Path(dir)
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return Document{}, nil, nil
		}
		return Document{}, nil, errors.Wrapf(err, "read sidecar %s", p)
	}
	doc := Document{}
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		if err == nil {
			err = errors.New("document is not an object")
		}
		return Document{}, nil, errs.Malformed("sidecar.Read", p, err)
	}
	return doc, keyOrder(data), nil
}

// keyOrder lists the top-level keys of a JSON object in the order they
// appear, each once.
func keyOrder(data []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}
	var keys []string
	seen := map[string]bool{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return keys
		}
		key, _ := tok.(string)
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return keys
		}
	}
	return keys
}

var (
	locksMu sync.Mutex
	locks   = map[string]*sync.Mutex{}
)

func lockFor(dir string) *sync.Mutex {
	key := filepath.Clean(dir)
	locksMu.Lock()
	defer locksMu.Unlock()
	m, ok := locks[key]
	if !ok {
		m = &sync.Mutex{}
		locks[key] = m
	}
	return m
}

// ErrUnchanged can be returned by an Update callback to skip the write.
var ErrUnchanged = errors.New("sidecar unchanged")

// Update applies fn to the current sidecar of dir and writes the result back.
// Existing keys keep their position and their exact bytes unless fn replaced
// them; new keys are appended in sorted order. A malformed sidecar is treated
// as empty and overwritten with the known keys only. When fn returns an error
// nothing is written; ErrUnchanged is not reported to the caller.
func Update(dir string, fn func(Document) error) error {
	mu := lockFor(dir)
	mu.Lock()
	defer mu.Unlock()

	doc, order, err := load(dir)
	if err != nil && errs.KindOf(err) != errs.KindMalformed {
		return err
	}
	if err := fn(doc); err != nil {
		if errors.Is(err, ErrUnchanged) {
			return nil
		}
		return err
	}
	return write(dir, doc, order)
}

// encode renders doc as an object with one key per line, in order. Values are
// written as stored.
func encode(doc Document, order []string) ([]byte, error) {
	keys := make([]string, 0, len(doc))
	for _, k := range order {
		if _, ok := doc[k]; ok {
			keys = append(keys, k)
		}
	}
	var added []string
	for k := range doc {
		if !slices.Contains(keys, k) {
			added = append(added, k)
		}
	}
	sort.Strings(added)
	keys = append(keys, added...)

	var buf bytes.Buffer
	buf.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			buf.WriteString(",")
		}
		name, err := marshal(k)
		if err != nil {
			return nil, err
		}
		buf.WriteString("\n  ")
		buf.Write(name)
		buf.WriteString(": ")
		buf.Write(doc[k])
	}
	if len(keys) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// marshal encodes v without HTML escaping.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func write(dir string, doc Document, order []string) error {
	p := Path(dir)
	data, err := encode(doc, order)
	if err != nil {
		return errors.Wrapf(err, "encode sidecar %s", p)
	}
	tmp, err := os.CreateTemp(dir, ".project-*.json")
	if err != nil {
		return errors.Wrapf(err, "write sidecar %s", p)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, "write sidecar %s", p)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "write sidecar %s", p)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "replace sidecar %s", p)
	}
	return nil
}

// String returns the string stored under key, or "" when absent or not a string.
func (d Document) String(key string) string {
	raw, ok := d[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Strings returns the string array stored under key. Non-string elements are
// dropped; a value of any other shape yields nil.
func (d Document) Strings(key string) []string {
	raw, ok := d[key]
	if !ok {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		var s string
		if json.Unmarshal(it, &s) == nil {
			out = append(out, s)
		}
	}
	return out
}

// SetStrings stores values under key as a JSON array.
func (d Document) SetStrings(key string, values []string) {
	if values == nil {
		values = []string{}
	}
	raw, _ := marshal(values)
	d[key] = raw
}
