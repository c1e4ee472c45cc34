// Package belt implements the conveyor belt: a fixed-capacity FIFO ring of
// packages that tracks its item count and total weight.
//
// A Belt is not safe for concurrent use. The warehouse guards it with its
// mutex and meters slots with the EMPTY/FULL semaphores.
package belt

import (
	"errors"

	"github.com/vinayprograms/sortline/parcel"
)

var (
	ErrFull  = errors.New("belt full")
	ErrEmpty = errors.New("belt empty")
)

// Belt is a circular buffer. count disambiguates empty from full when
// head == tail.
type Belt struct {
	slots  []parcel.Package
	head   int
	tail   int
	count  int
	weight float64
}

// New creates an empty belt with room for capacity packages.
func New(capacity int) *Belt {
	return &Belt{slots: make([]parcel.Package, capacity)}
}

func (b *Belt) Capacity() int   { return len(b.slots) }
func (b *Belt) Count() int      { return b.count }
func (b *Belt) Weight() float64 { return b.weight }
func (b *Belt) Head() int       { return b.head }
func (b *Belt) Tail() int       { return b.tail }
func (b *Belt) Empty() bool     { return b.count == 0 }
func (b *Belt) Full() bool      { return b.count == len(b.slots) }

// Fits reports whether a package of weight w can be added without the belt
// weight exceeding limit.
func (b *Belt) Fits(w, limit float64) bool {
	return b.weight+w <= limit
}

// Push writes p at the tail.
func (b *Belt) Push(p parcel.Package) error {
	if b.Full() {
		return ErrFull
	}
	b.slots[b.tail] = p
	b.tail = (b.tail + 1) % len(b.slots)
	b.count++
	b.weight += p.Weight
	return nil
}

// Peek returns the head package without removing it.
func (b *Belt) Peek() (parcel.Package, error) {
	if b.Empty() {
		return parcel.Package{}, ErrEmpty
	}
	return b.slots[b.head], nil
}

// Pop removes and returns the head package.
func (b *Belt) Pop() (parcel.Package, error) {
	if b.Empty() {
		return parcel.Package{}, ErrEmpty
	}
	p := b.slots[b.head]
	b.slots[b.head] = parcel.Package{}
	b.head = (b.head + 1) % len(b.slots)
	b.count--
	b.weight -= p.Weight
	if b.count == 0 {
		// Clear float drift.
		b.weight = 0
	}
	return p, nil
}

// Contents returns the packages in FIFO order, head first.
func (b *Belt) Contents() []parcel.Package {
	out := make([]parcel.Package, 0, b.count)
	for i := 0; i < b.count; i++ {
		out = append(out, b.slots[(b.head+i)%len(b.slots)])
	}
	return out
}
