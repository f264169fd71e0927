// Package wordlist ships an in-memory dictionary and answer picker. The
// production deployment swaps in the full frequency dictionary behind the
// same interfaces; this list keeps local runs and tests self-contained.
package wordlist

import (
	"context"
	"math/rand"
	"strings"
	"sync"
)

// words is a small slice of the accepted 5-letter dictionary.
var words = []string{
	"ABOUT", "ALERT", "APPLE", "BEACH", "BRAVE", "BREAD", "BRICK", "BRINE",
	"CANDY", "CHAIR", "CHARM", "CHESS", "CLOUD", "CRANE", "CRISP", "DANCE",
	"DREAM", "DRIFT", "EAGLE", "EARTH", "FABLE", "FLAME", "FLOUR", "FROST",
	"GHOST", "GLIDE", "GRAPE", "GREEN", "HEART", "HONEY", "HOUSE", "IVORY",
	"JOLLY", "JUICE", "KNIFE", "LEMON", "LIGHT", "LUNAR", "MANGO", "MAPLE",
	"MIRTH", "NIGHT", "NOBLE", "OCEAN", "OLIVE", "PEACH", "PEARL", "PLANE",
	"PLANT", "PRIZE", "QUILT", "RIVER", "ROAST", "SALTY", "SHINE", "SMILE",
	"SNAKE", "SPARK", "STONE", "STORM", "SUGAR", "TIGER", "TRAIL", "TRUST",
	"VIVID", "WHALE", "WHEAT", "WORLD", "YOUTH", "ZESTY",
}

// Dictionary is an in-memory dictionary membership check.
type Dictionary struct {
	mu  sync.RWMutex
	set map[string]struct{}
}

// NewDictionary builds a Dictionary from the embedded word list.
func NewDictionary() *Dictionary {
	d := &Dictionary{set: make(map[string]struct{}, len(words))}
	for _, w := range words {
		d.set[w] = struct{}{}
	}
	return d
}

// IsValidWord reports dictionary membership, case insensitively.
func (d *Dictionary) IsValidWord(ctx context.Context, word string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.set[strings.ToUpper(word)]
	return ok, nil
}

// Add registers extra words; used by tests to pin a specific answer.
func (d *Dictionary) Add(extra ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range extra {
		d.set[strings.ToUpper(w)] = struct{}{}
	}
}

// Provider picks answers and wheel decoys from the embedded list.
type Provider struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewProvider creates a Provider seeded from the given source.
func NewProvider(seed int64) *Provider {
	return &Provider{rng: rand.New(rand.NewSource(seed))}
}

// PickAnswer returns a random answer word.
func (p *Provider) PickAnswer(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return words[p.rng.Intn(len(words))], nil
}

// Decoys returns n distinct words, none equal to the answer, for the
// public wheel.
func (p *Provider) Decoys(ctx context.Context, answer string, n int) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	answer = strings.ToUpper(answer)
	perm := p.rng.Perm(len(words))
	decoys := make([]string, 0, n)
	for _, i := range perm {
		if len(decoys) == n {
			break
		}
		if words[i] == answer {
			continue
		}
		decoys = append(decoys, words[i])
	}
	return decoys, nil
}
