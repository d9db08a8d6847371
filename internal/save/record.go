package save

import (
	"errors"
	"fmt"
	"time"
)

// SchemaVersion is written into every record. Records with any other
// version are rejected.
const SchemaVersion = 1

// ErrCorruptSaveRecord marks a record that decoded but cannot be resumed.
var ErrCorruptSaveRecord = errors.New("corrupt save record")

// Position is a card's layout coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Card is one persisted card.
type Card struct {
	CardID    int      `json:"cardId"`
	FaceIndex int      `json:"faceIndex"`
	Matched   bool     `json:"matched"`
	Revealed  bool     `json:"revealed"`
	Position  Position `json:"position"`
}

// Record is a complete snapshot of an in-progress session.
type Record struct {
	Version        int     `json:"version"`
	LevelIndex     int     `json:"levelIndex"`
	Score          int     `json:"score"`
	TotalScore     int     `json:"totalScore"`
	MovesUsed      int     `json:"movesUsed"`
	MovesLimit     int     `json:"movesLimit"`
	ComboStreak    int     `json:"comboStreak,omitempty"`
	Rows           int     `json:"rows"`
	Columns        int     `json:"columns"`
	PreviewTime    float64 `json:"previewTime"`
	MismatchDelay  float64 `json:"mismatchDelay"`
	PreviewPending bool    `json:"previewPending,omitempty"`
	Cards          []Card  `json:"cards"`
}

// Legacy is the coarse level/score-only record.
type Legacy struct {
	LevelIndex int `json:"levelIndex"`
	Score      int `json:"score"`
}

// Seconds converts a duration to the float seconds stored in records.
func Seconds(d time.Duration) float64 { return d.Seconds() }

// Duration converts stored float seconds back to a duration.
func Duration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Validate checks that r can be resumed exactly.
func (r Record) Validate() error {
	switch {
	case r.Version != SchemaVersion:
		return fmt.Errorf("%w: version %d", ErrCorruptSaveRecord, r.Version)
	case len(r.Cards) == 0:
		return fmt.Errorf("%w: no cards", ErrCorruptSaveRecord)
	case r.Rows < 1 || r.Columns < 1 || r.Rows*r.Columns%2 != 0:
		return fmt.Errorf("%w: grid %dx%d", ErrCorruptSaveRecord, r.Rows, r.Columns)
	case len(r.Cards) != r.Rows*r.Columns:
		return fmt.Errorf("%w: %d cards for %dx%d grid", ErrCorruptSaveRecord, len(r.Cards), r.Rows, r.Columns)
	case r.LevelIndex < 0 || r.Score < 0 || r.TotalScore < 0 || r.MovesUsed < 0 || r.MovesLimit < 1 || r.ComboStreak < 0:
		return fmt.Errorf("%w: negative counters", ErrCorruptSaveRecord)
	case r.PreviewTime < 0 || r.MismatchDelay < 0:
		return fmt.Errorf("%w: negative delays", ErrCorruptSaveRecord)
	}

	faces := make(map[int]int, len(r.Cards)/2)
	count := make(map[int]int, len(r.Cards)/2)
	matched := make(map[int]bool, len(r.Cards)/2)
	for i, c := range r.Cards {
		if c.Matched && !c.Revealed {
			return fmt.Errorf("%w: card %d matched but hidden", ErrCorruptSaveRecord, i)
		}
		if f, ok := faces[c.CardID]; ok && f != c.FaceIndex {
			return fmt.Errorf("%w: cardId %d has two faces", ErrCorruptSaveRecord, c.CardID)
		}
		if m, ok := matched[c.CardID]; ok && m != c.Matched {
			return fmt.Errorf("%w: cardId %d matched on one card only", ErrCorruptSaveRecord, c.CardID)
		}
		faces[c.CardID] = c.FaceIndex
		matched[c.CardID] = c.Matched
		count[c.CardID]++
	}
	for id, n := range count {
		if n != 2 {
			return fmt.Errorf("%w: cardId %d appears %d times", ErrCorruptSaveRecord, id, n)
		}
	}
	return nil
}
