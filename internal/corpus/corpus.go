// Package corpus loads the identifier list a benchmark run iterates over.
package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrMalformed is returned when the corpus source is not a JSON list of strings.
var ErrMalformed = errors.New("corpus is not a JSON array of strings")

// Corpus is the deduplicated, ordered identifier sequence of a run.
type Corpus struct {
	items []string
}

// New builds a corpus from raw identifiers, dropping blanks and duplicates.
func New(raw []string) *Corpus {
	return &Corpus{items: Dedupe(raw)}
}

// Items returns the identifiers in first-seen order. The slice must not be modified.
func (c *Corpus) Items() []string {
	if c == nil {
		return nil
	}
	return c.items
}

func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// Load reads a JSON array of identifier strings from path.
func Load(ctx context.Context, path string) (*Corpus, error) {
	data, err := read(ctx, path)
	if err != nil {
		return nil, err
	}
	return decode(path, data)
}

// readFile is swapped in tests to observe how often the corpus is read.
var readFile = os.ReadFile

func read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := readFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read corpus %q: %w", path, err)
	}
	return data, nil
}

func decode(path string, data []byte) (*Corpus, error) {
	raw, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse corpus %q: %w", path, err)
	}
	return New(raw), nil
}

// Parse decodes a JSON array of strings.
func Parse(data []byte) ([]string, error) {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw == nil {
		return nil, ErrMalformed
	}
	return raw, nil
}

// Dedupe keeps the first occurrence of every identifier, preserving order.
func Dedupe(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
