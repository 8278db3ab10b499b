package game

import (
	"math/rand"
	"sync"
	"time"
)

// BagGenerator hands out shuffled permutations of the seven piece types
type BagGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewBagGenerator creates a generator seeded from the clock
func NewBagGenerator() *BagGenerator {
	return NewSeededBagGenerator(time.Now().UnixNano())
}

// NewSeededBagGenerator creates a generator with a fixed seed
func NewSeededBagGenerator(seed int64) *BagGenerator {
	return &BagGenerator{rng: rand.New(rand.NewSource(seed))}
}

// RegenBag returns a fresh uniform random permutation of all piece types
func (g *BagGenerator) RegenBag() []Mino {
	bag := append([]Mino(nil), AllMinos...)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.rng.Shuffle(len(bag), func(i, j int) {
		bag[i], bag[j] = bag[j], bag[i]
	})
	return bag
}
