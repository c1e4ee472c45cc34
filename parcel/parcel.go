// Package parcel defines the packages that move through the sorting line and
// the generator that manufactures them.
package parcel

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Category is a package size class.
type Category int

const (
	CategoryA Category = iota // 64x38x8 cm
	CategoryB                 // 64x38x19 cm
	CategoryC                 // 64x38x41 cm
)

// Categories lists every category in order.
var Categories = []Category{CategoryA, CategoryB, CategoryC}

// String returns "A", "B" or "C".
func (c Category) String() string {
	switch c {
	case CategoryA:
		return "A"
	case CategoryB:
		return "B"
	case CategoryC:
		return "C"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// Volume returns the fixed volume of the category in m³, or 0 for an
// unknown category.
func (c Category) Volume() float64 {
	switch c {
	case CategoryA:
		return 0.019456
	case CategoryB:
		return 0.046208
	case CategoryC:
		return 0.099712
	default:
		return 0
	}
}

// ParseCategory maps "A", "B" or "C" to a Category.
func ParseCategory(s string) (Category, error) {
	switch s {
	case "A", "a":
		return CategoryA, nil
	case "B", "b":
		return CategoryB, nil
	case "C", "c":
		return CategoryC, nil
	}
	return 0, fmt.Errorf("unknown package category %q", s)
}

// Weight bounds for a freshly drawn package, before category scaling.
const (
	MinWeight = 0.1
	MaxWeight = 25.0
)

// Package is an immutable value once created.
type Package struct {
	ID       string   `json:"id"`
	Category Category `json:"category"`
	Weight   float64  `json:"weight_kg"`
	Volume   float64  `json:"volume_m3"`
}

// New builds a package with the category's fixed volume and a fresh ID.
func New(c Category, weight float64) Package {
	return Package{
		ID:       uuid.NewString(),
		Category: c,
		Weight:   weight,
		Volume:   c.Volume(),
	}
}

// Generator manufactures packages with random weights. It is safe for
// concurrent use, though each worker normally owns one.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator returns a generator seeded with seed. A zero seed uses the
// current time.
func NewGenerator(seed uint64) *Generator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Weight draws a weight uniformly from [MinWeight, MaxWeight], then scales
// heavy small packages down: A over 10 kg is divided by 3, B over 10 kg by 2.
func (g *Generator) Weight(c Category) float64 {
	g.mu.Lock()
	w := MinWeight + g.rng.Float64()*(MaxWeight-MinWeight)
	g.mu.Unlock()

	switch {
	case c == CategoryA && w > 10:
		w /= 3
	case c == CategoryB && w > 10:
		w /= 2
	}
	return w
}

// Make manufactures a package of category c.
func (g *Generator) Make(c Category) Package {
	return New(c, g.Weight(c))
}

// Random manufactures a package of a uniformly chosen category.
func (g *Generator) Random() Package {
	g.mu.Lock()
	c := Categories[g.rng.IntN(len(Categories))]
	g.mu.Unlock()
	return g.Make(c)
}

// IntBetween returns a uniform integer in [lo, hi].
func (g *Generator) IntBetween(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return lo + g.rng.IntN(hi-lo+1)
}
