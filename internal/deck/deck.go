package deck

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

var (
	// ErrInsufficientFaceData is returned when the face pool is empty.
	ErrInsufficientFaceData = errors.New("insufficient face data")
	// ErrInvalidGridSize is returned when the requested card count is not a positive even number.
	ErrInvalidGridSize = errors.New("invalid grid size")
)

// Descriptor is the immutable identity of one spawned card.
// Two descriptors share each CardID.
type Descriptor struct {
	CardID    int `json:"cardId"`
	FaceIndex int `json:"faceIndex"`
}

// Build deals pairCount pairs and shuffles them. Faces are cycled when the
// pool is smaller than the number of pairs: pair i shows face i mod faces.
func Build(pairCount, faces int, rng *rand.Rand) ([]Descriptor, error) {
	if faces <= 0 {
		return nil, ErrInsufficientFaceData
	}
	total := pairCount * 2
	if pairCount <= 0 || total%2 != 0 {
		return nil, fmt.Errorf("%w: %d pairs", ErrInvalidGridSize, pairCount)
	}

	cards := make([]Descriptor, 0, total)
	for i := 0; i < pairCount; i++ {
		d := Descriptor{CardID: i, FaceIndex: i % faces}
		cards = append(cards, d, d)
	}
	Shuffle(cards, rng)
	return cards, nil
}

// Shuffle permutes cards in place with a Fisher-Yates pass.
func Shuffle(cards []Descriptor, rng *rand.Rand) {
	intN := rand.IntN
	if rng != nil {
		intN = rng.IntN
	}
	for i := len(cards) - 1; i > 0; i-- {
		j := intN(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}

// Pairs groups descriptor indices by CardID.
func Pairs(cards []Descriptor) map[int][]int {
	out := make(map[int][]int, len(cards)/2)
	for i, c := range cards {
		out[c.CardID] = append(out[c.CardID], i)
	}
	return out
}
