package session

import (
	"crypto/rand"
	"io"
	"math"
	mathrand "math/rand/v2"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ID identifies one isolated session. It is a version 4 UUID in canonical text form.
type ID string

// String returns the id text.
func (id ID) String() string {
	return string(id)
}

// MinEntropyThreshold is the lowest normalised entropy considered acceptable for an id.
const MinEntropyThreshold = 0.8

var idPattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// IsValidID reports whether s is a canonical version 4 UUID. Case is ignored.
func IsValidID(s string) bool {
	return idPattern.MatchString(s)
}

// Generator produces session ids from a strong entropy source and falls back
// to a pseudo-random source when the strong one fails.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

var (
	defaultGenerator *Generator
	generatorOnce    sync.Once
)

// DefaultGenerator returns the shared generator backed by crypto/rand.
func DefaultGenerator() *Generator {
	generatorOnce.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator reading from crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate returns a new id. Both the strong and the fallback path set the
// version nibble to 4 and the variant nibble to one of 8, 9, a, b.
func (g *Generator) Generate() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	u, err := uuid.NewRandomFromReader(g.entropy)
	if err != nil {
		return pseudoRandomID()
	}
	return ID(u.String())
}

func pseudoRandomID() ID {
	var u uuid.UUID
	for i := 0; i < len(u); i += 8 {
		v := mathrand.Uint64()
		for j := 0; j < 8; j++ {
			u[i+j] = byte(v >> (8 * j))
		}
	}
	u[6] = (u[6] & 0x0f) | 0x40
	u[8] = (u[8] & 0x3f) | 0x80
	return ID(u.String())
}

// GenerateID returns a new id from the default generator.
func GenerateID() ID {
	return DefaultGenerator().Generate()
}

// GenerateUnique returns count distinct ids.
func GenerateUnique(count int) []ID {
	seen := make(map[ID]struct{}, count)
	ids := make([]ID, 0, count)
	for len(ids) < count {
		id := GenerateID()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// Entropy returns the Shannon entropy of the id's hex digits normalised to [0,1].
// Invalid ids score 0.
func Entropy(id string) float64 {
	if !IsValidID(id) {
		return 0
	}

	clean := strings.ToLower(strings.ReplaceAll(id, "-", ""))
	freq := make(map[rune]int, 16)
	for _, c := range clean {
		freq[c]++
	}

	n := float64(len(clean))
	var h float64
	for _, count := range freq {
		p := float64(count) / n
		h -= p * math.Log2(p)
	}
	return h / math.Log2(16)
}
