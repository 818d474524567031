// Package catalog answers read-only listing and search requests over the
// simple index of the store.
package catalog

import (
	"context"
	"sort"
	"strings"
)

// NameLister lists the entries of the simple index.
type NameLister interface {
	ListNames(ctx context.Context) ([]string, error)
}

// Catalog lists and searches stored package names. Every call reads the
// store afresh.
type Catalog struct {
	store NameLister
}

// New creates a Catalog over store.
func New(store NameLister) *Catalog {
	return &Catalog{store: store}
}

// List returns the sorted simple index entries. Store errors are returned
// unchanged.
func (c *Catalog) List(ctx context.Context) ([]string, error) {
	names, err := c.store.ListNames(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(names))
	copy(out, names)
	sort.Strings(out)
	return out, nil
}

// Search returns the entries of List containing s, ignoring case. An empty
// s matches everything; no match yields an empty, non-nil slice.
func (c *Catalog) Search(ctx context.Context, s string) ([]string, error) {
	names, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(s)
	out := make([]string, 0, len(names))
	for _, n := range names {
		if strings.Contains(strings.ToLower(n), needle) {
			out = append(out, n)
		}
	}
	return out, nil
}
