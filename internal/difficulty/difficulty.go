package difficulty

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"memorymatch/internal/deck"
)

// ErrInvalidGridSize aliases the deck sentinel so callers can test either.
var ErrInvalidGridSize = deck.ErrInvalidGridSize

// Start is the level-zero baseline the curve grows from.
type Start struct {
	Rows     int           `yaml:"rows" json:"rows"`
	Columns  int           `yaml:"columns" json:"columns"`
	Preview  time.Duration `yaml:"preview" json:"preview"`
	Mismatch time.Duration `yaml:"mismatch" json:"mismatch"`
}

// Curve holds the progression parameters.
type Curve struct {
	StepRows                int `yaml:"step_rows" json:"stepRows"`
	StepColumns             int `yaml:"step_columns" json:"stepColumns"`
	SizeIncreaseEveryLevels int `yaml:"size_increase_every_levels" json:"sizeIncreaseEveryLevels"`
	MaxRows                 int `yaml:"max_rows" json:"maxRows"`
	MaxColumns              int `yaml:"max_columns" json:"maxColumns"`

	PreviewIncreasePerPair time.Duration `yaml:"preview_increase_per_pair" json:"previewIncreasePerPair"`
	MaxPreview             time.Duration `yaml:"max_preview" json:"maxPreview"`

	MismatchDecreasePerLevel time.Duration `yaml:"mismatch_decrease_per_level" json:"mismatchDecreasePerLevel"`
	MinMismatch              time.Duration `yaml:"min_mismatch" json:"minMismatch"`

	BaseMovesPerPair float64 `yaml:"base_moves_per_pair" json:"baseMovesPerPair"`
	BonusChance      float64 `yaml:"bonus_chance" json:"bonusChance"`
	BonusMin         int     `yaml:"bonus_min" json:"bonusMin"`
	BonusMax         int     `yaml:"bonus_max" json:"bonusMax"`
}

// Level is the concrete shape of one level.
type Level struct {
	Rows          int
	Columns       int
	PreviewTime   time.Duration
	MismatchDelay time.Duration
}

// Cards returns rows*columns.
func (l Level) Cards() int { return l.Rows * l.Columns }

// Pairs returns the number of pairs dealt for the level.
func (l Level) Pairs() int { return l.Cards() / 2 }

// Next computes the level at index level. The grid grows every
// SizeIncreaseEveryLevels levels, clamped to the bounds, then is nudged to
// an even card count.
func (c Curve) Next(level int, start Start) (Level, error) {
	if level < 0 {
		return Level{}, fmt.Errorf("%w: negative level %d", ErrInvalidGridSize, level)
	}
	if start.Rows < 1 || start.Columns < 1 || c.MaxRows < 1 || c.MaxColumns < 1 {
		return Level{}, fmt.Errorf("%w: start %dx%d, max %dx%d",
			ErrInvalidGridSize, start.Rows, start.Columns, c.MaxRows, c.MaxColumns)
	}

	every := c.SizeIncreaseEveryLevels
	if every < 1 {
		every = 1
	}
	steps := level / every
	rows := min(start.Rows+c.StepRows*steps, c.MaxRows)
	cols := min(start.Columns+c.StepColumns*steps, c.MaxColumns)
	if rows < 1 || cols < 1 {
		return Level{}, fmt.Errorf("%w: level %d shrinks grid to %dx%d", ErrInvalidGridSize, level, rows, cols)
	}

	rows, cols, ok := makeEven(rows, cols, c.MaxRows, c.MaxColumns)
	if !ok {
		return Level{}, fmt.Errorf("%w: cannot make %dx%d even within %dx%d",
			ErrInvalidGridSize, rows, cols, c.MaxRows, c.MaxColumns)
	}

	l := Level{Rows: rows, Columns: cols}

	l.PreviewTime = start.Preview + time.Duration(l.Pairs())*c.PreviewIncreasePerPair
	if c.MaxPreview > 0 && l.PreviewTime > c.MaxPreview {
		l.PreviewTime = c.MaxPreview
	}

	l.MismatchDelay = max(c.MinMismatch, start.Mismatch-time.Duration(level)*c.MismatchDecreasePerLevel)
	if l.MismatchDelay < 0 {
		l.MismatchDelay = 0
	}
	return l, nil
}

// makeEven grows columns, then rows, then shrinks columns, then rows until
// the product is even. Neither dimension drops to zero.
func makeEven(rows, cols, maxRows, maxCols int) (int, int, bool) {
	switch {
	case rows*cols%2 == 0:
		return rows, cols, true
	case cols+1 <= maxCols:
		return rows, cols + 1, true
	case rows+1 <= maxRows:
		return rows + 1, cols, true
	case cols-1 >= 2:
		return rows, cols - 1, true
	case rows-1 >= 2:
		return rows - 1, cols, true
	}
	return rows, cols, false
}

// MoveLimit rolls the move budget for one attempt at a level with the given
// number of pairs. It is re-rolled on every attempt.
func (c Curve) MoveLimit(pairs int, rng *rand.Rand) int {
	float := rand.Float64
	intN := rand.IntN
	if rng != nil {
		float = rng.Float64
		intN = rng.IntN
	}

	limit := int(math.Ceil(float64(pairs) * c.BaseMovesPerPair))
	if c.BonusChance > 0 && float() < c.BonusChance && c.BonusMax >= c.BonusMin {
		limit += c.BonusMin + intN(c.BonusMax-c.BonusMin+1)
	}
	return max(limit, 1)
}
