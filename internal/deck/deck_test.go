package deck

import (
	"errors"
	"math/rand/v2"
	"testing"
)

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func TestBuildPairing(t *testing.T) {
	for pairs := 1; pairs <= 18; pairs++ {
		cards, err := Build(pairs, 7, newRand(uint64(pairs)))
		if err != nil {
			t.Fatalf("build %d pairs: %v", pairs, err)
		}
		if len(cards) != pairs*2 {
			t.Fatalf("expected %d cards, got %d", pairs*2, len(cards))
		}
		for id, idx := range Pairs(cards) {
			if len(idx) != 2 {
				t.Fatalf("cardId %d appears %d times", id, len(idx))
			}
			if cards[idx[0]].FaceIndex != cards[idx[1]].FaceIndex {
				t.Fatalf("cardId %d has faces %d and %d", id, cards[idx[0]].FaceIndex, cards[idx[1]].FaceIndex)
			}
		}
	}
}

func TestBuildCyclesFaces(t *testing.T) {
	cards, err := Build(5, 2, newRand(1))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, c := range cards {
		if c.FaceIndex != c.CardID%2 {
			t.Fatalf("cardId %d: expected face %d, got %d", c.CardID, c.CardID%2, c.FaceIndex)
		}
	}
}

func TestBuildTwoFacesTwoPairs(t *testing.T) {
	cards, err := Build(2, 2, newRand(3))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	faces := map[int]int{}
	for _, c := range cards {
		faces[c.FaceIndex]++
	}
	if faces[0] != 2 || faces[1] != 2 {
		t.Fatalf("expected one pair of each face, got %v", faces)
	}
}

func TestBuildEmptyFacePool(t *testing.T) {
	_, err := Build(2, 0, nil)
	if !errors.Is(err, ErrInsufficientFaceData) {
		t.Fatalf("expected ErrInsufficientFaceData, got %v", err)
	}
}

func TestBuildInvalidPairCount(t *testing.T) {
	for _, pairs := range []int{0, -1} {
		_, err := Build(pairs, 4, nil)
		if !errors.Is(err, ErrInvalidGridSize) {
			t.Fatalf("pairs=%d: expected ErrInvalidGridSize, got %v", pairs, err)
		}
	}
}

func TestShuffleDeterministic(t *testing.T) {
	a, _ := Build(8, 8, newRand(42))
	b, _ := Build(8, 8, newRand(42))
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed produced different decks at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

// Every ordering of a 2-pair deck should show up with a uniform shuffle.
func TestShuffleCoversPermutations(t *testing.T) {
	rng := newRand(7)
	seen := map[[4]int]int{}
	for i := 0; i < 3000; i++ {
		cards := []Descriptor{{CardID: 0}, {CardID: 0}, {CardID: 1}, {CardID: 1}}
		Shuffle(cards, rng)
		var key [4]int
		for j, c := range cards {
			key[j] = c.CardID
		}
		seen[key]++
	}
	// 4!/(2!2!) = 6 distinct arrangements of the pair keys.
	if len(seen) != 6 {
		t.Fatalf("expected 6 arrangements, got %d: %v", len(seen), seen)
	}
	for k, n := range seen {
		if n < 300 {
			t.Fatalf("arrangement %v seen only %d times", k, n)
		}
	}
}
