// Package id provides ULID generation for daemon-side identifiers.
//
// Open file handles and HTTP requests are named by prefixed ULIDs
// ("fh_01J...", "req_01J..."). Within one generator IDs are strictly
// increasing, so handle listings sort in open order.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// HandleID identifies an open endpoint handle held by the daemon.
type HandleID string

// RequestID identifies an API request.
type RequestID string

const (
	HandlePrefix  = "fh"
	RequestPrefix = "req"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the shared generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator with monotonic crypto entropy.
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(ulid.Monotonic(rand.Reader, 0))
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewHandleID generates a new handle ID.
func (g *Generator) NewHandleID() HandleID {
	return HandleID(g.GenerateWithPrefix(HandlePrefix))
}

// NewRequestID generates a new request ID.
func (g *Generator) NewRequestID() RequestID {
	return RequestID(g.GenerateWithPrefix(RequestPrefix))
}

func (id HandleID) String() string  { return string(id) }
func (id RequestID) String() string { return string(id) }

// ParseHandleID validates s as a handle ID.
func ParseHandleID(s string) (HandleID, error) {
	if err := checkPrefixed(s, HandlePrefix); err != nil {
		return "", err
	}
	return HandleID(s), nil
}

// Timestamp extracts the creation time from a prefixed or bare ULID.
func Timestamp(id string) (time.Time, error) {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

func checkPrefixed(s, prefix string) error {
	rest, ok := strings.CutPrefix(s, prefix+"_")
	if !ok {
		return fmt.Errorf("id %q: missing %s_ prefix", s, prefix)
	}
	if _, err := ulid.Parse(rest); err != nil {
		return fmt.Errorf("id %q: %w", s, err)
	}
	return nil
}
