package belt

import (
	"testing"

	"github.com/vinayprograms/sortline/parcel"
)

func pkg(id string, weight float64) parcel.Package {
	return parcel.Package{ID: id, Category: parcel.CategoryA, Weight: weight, Volume: parcel.CategoryA.Volume()}
}

func TestPushPopFIFO(t *testing.T) {
	b := New(3)

	for _, p := range []parcel.Package{pkg("a", 10), pkg("b", 7), pkg("c", 100)} {
		if err := b.Push(p); err != nil {
			t.Fatalf("Push(%s) error: %v", p.ID, err)
		}
	}
	if b.Count() != 3 || b.Weight() != 117 {
		t.Fatalf("expected count=3 weight=117, got %d %v", b.Count(), b.Weight())
	}

	for _, want := range []string{"a", "b", "c"} {
		p, err := b.Pop()
		if err != nil {
			t.Fatalf("Pop error: %v", err)
		}
		if p.ID != want {
			t.Fatalf("expected %s, got %s", want, p.ID)
		}
	}
	if !b.Empty() || b.Weight() != 0 {
		t.Fatalf("expected empty belt, got count=%d weight=%v", b.Count(), b.Weight())
	}
}

func TestFullAndEmpty(t *testing.T) {
	b := New(1)

	if _, err := b.Pop(); err != ErrEmpty {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if _, err := b.Peek(); err != ErrEmpty {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if err := b.Push(pkg("a", 1)); err != nil {
		t.Fatalf("Push error: %v", err)
	}
	if err := b.Push(pkg("b", 1)); err != ErrFull {
		t.Fatalf("expected ErrFull, got %v", err)
	}
	// head == tail in both states; count tells them apart.
	if b.Head() != b.Tail() || !b.Full() {
		t.Fatalf("expected full belt with head == tail")
	}
}

func TestWrapAround(t *testing.T) {
	b := New(3)
	seq := 0
	next := func() parcel.Package {
		seq++
		return pkg(string(rune('a'+seq-1)), float64(seq))
	}

	// Cycle through the ring several times keeping two items in flight.
	b.Push(next())
	b.Push(next())
	for i := 0; i < 10; i++ {
		b.Push(next())
		p, _ := b.Pop()
		if want := string(rune('a' + i)); p.ID != want {
			t.Fatalf("iteration %d: expected %s, got %s", i, want, p.ID)
		}
		if b.Count() != 2 {
			t.Fatalf("expected count 2, got %d", b.Count())
		}
		if b.Tail() != (b.Head()+b.Count())%b.Capacity() {
			t.Fatalf("tail %d inconsistent with head %d count %d", b.Tail(), b.Head(), b.Count())
		}
	}

	contents := b.Contents()
	if len(contents) != 2 || contents[0].ID != "k" || contents[1].ID != "l" {
		t.Fatalf("unexpected contents %+v", contents)
	}
}

func TestPeekDoesNotRemove(t *testing.T) {
	b := New(2)
	b.Push(pkg("a", 4))

	p, err := b.Peek()
	if err != nil || p.ID != "a" {
		t.Fatalf("Peek = %+v, %v", p, err)
	}
	if b.Count() != 1 || b.Weight() != 4 {
		t.Fatalf("Peek changed the belt: count=%d weight=%v", b.Count(), b.Weight())
	}
}

func TestFits(t *testing.T) {
	b := New(4)
	b.Push(pkg("a", 6))

	tests := []struct {
		weight, limit float64
		want          bool
	}{
		{4, 10, true},
		{4.5, 10, false},
		{0, 6, true},
		{0.1, 0, false},
	}
	for _, tt := range tests {
		if got := b.Fits(tt.weight, tt.limit); got != tt.want {
			t.Errorf("Fits(%v, %v) = %v, want %v", tt.weight, tt.limit, got, tt.want)
		}
	}
}
