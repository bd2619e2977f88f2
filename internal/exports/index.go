package exports

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// ErrNotIntrospectable is returned when a package's exports cannot be read.
var ErrNotIntrospectable = errors.New("package exports not introspectable")

// Introspector reads the raw export names of an installed package.
type Introspector interface {
	Exports(ctx context.Context, name string) ([]string, error)
}

type indexEntry struct {
	once sync.Once
	keys KeySet
	err  error
}

// Index caches the KeySet of every package looked up during one build
// session. Entries are computed once and never invalidated.
type Index struct {
	introspector Introspector
	logger       zerolog.Logger

	mu      sync.Mutex
	entries map[string]*indexEntry
}

// NewIndex creates an index backed by introspector.
func NewIndex(introspector Introspector, logger zerolog.Logger) *Index {
	return &Index{
		introspector: introspector,
		logger:       logger,
		entries:      make(map[string]*indexEntry),
	}
}

// Keys returns the KeySet of a package. When the package cannot be
// introspected, Keys returns an empty KeySet and an error wrapping
// ErrNotIntrospectable; the failure is cached like a success.
func (x *Index) Keys(ctx context.Context, name string) (KeySet, error) {
	x.mu.Lock()
	entry, ok := x.entries[name]
	if !ok {
		entry = &indexEntry{}
		x.entries[name] = entry
	}
	x.mu.Unlock()

	entry.once.Do(func() {
		// the result is shared by every caller, so one caller going away
		// must not fail the lookup for the rest
		names, err := x.introspector.Exports(context.WithoutCancel(ctx), name)
		if err != nil {
			entry.keys = KeySet{}
			if errors.Is(err, ErrNotIntrospectable) {
				entry.err = err
			} else {
				entry.err = fmt.Errorf("%w: %s: %v", ErrNotIntrospectable, name, err)
			}
			x.logger.Warn().Err(err).Str("package", name).Msg("Failed to read package exports")
			return
		}
		entry.keys = NewKeySet(names)
		x.logger.Debug().Str("package", name).Int("exports", entry.keys.Len()).Msg("Package exports resolved")
	})

	return entry.keys, entry.err
}

// Known returns the names looked up so far, sorted.
func (x *Index) Known() []string {
	x.mu.Lock()
	defer x.mu.Unlock()

	names := make([]string, 0, len(x.entries))
	for name := range x.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
