package game

import (
	"errors"
	"fmt"
	"time"

	"memorymatch/internal/difficulty"
)

// Tuning is everything that shapes play in one mode.
type Tuning struct {
	Start difficulty.Start `yaml:"start" json:"start"`
	Curve difficulty.Curve `yaml:"curve" json:"curve"`

	ScorePerMatch      int `yaml:"score_per_match" json:"scorePerMatch"`
	ComboBonusPerMatch int `yaml:"combo_bonus_per_match" json:"comboBonusPerMatch"`

	ComboDisplayTime   time.Duration `yaml:"combo_display_time" json:"comboDisplayTime"`
	LevelCompleteDelay time.Duration `yaml:"level_complete_delay" json:"levelCompleteDelay"`
	LevelFailedDelay   time.Duration `yaml:"level_failed_delay" json:"levelFailedDelay"`

	CardSpacing float64  `yaml:"card_spacing" json:"cardSpacing"`
	Faces       []string `yaml:"faces" json:"faces"`
}

// Validate rejects tunings that can never deal a grid.
func (t Tuning) Validate() error {
	var errs []error
	if len(t.Faces) == 0 {
		errs = append(errs, errors.New("faces must not be empty"))
	}
	if t.Start.Rows < 1 || t.Start.Columns < 1 {
		errs = append(errs, fmt.Errorf("start grid %dx%d must be positive", t.Start.Rows, t.Start.Columns))
	}
	if t.Curve.MaxRows < 1 || t.Curve.MaxColumns < 1 {
		errs = append(errs, fmt.Errorf("max grid %dx%d must be positive", t.Curve.MaxRows, t.Curve.MaxColumns))
	}
	if t.Curve.StepRows < 0 || t.Curve.StepColumns < 0 {
		errs = append(errs, fmt.Errorf("grid steps %d/%d must not be negative", t.Curve.StepRows, t.Curve.StepColumns))
	}
	if t.Curve.BonusMin > t.Curve.BonusMax {
		errs = append(errs, fmt.Errorf("bonus range [%d,%d] is reversed", t.Curve.BonusMin, t.Curve.BonusMax))
	}
	if t.Curve.BonusChance < 0 || t.Curve.BonusChance > 1 {
		errs = append(errs, fmt.Errorf("bonus chance %v outside [0,1]", t.Curve.BonusChance))
	}
	if t.ScorePerMatch < 0 || t.ComboBonusPerMatch < 0 {
		errs = append(errs, errors.New("scores must not be negative"))
	}
	return errors.Join(errs...)
}

// Mode is a named tuning preset players pick when creating a profile.
type Mode struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Tuning      Tuning `yaml:"tuning" json:"tuning"`
}

// ModeInfo describes a mode for the lobby.
type ModeInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	StartRows   int    `json:"startRows"`
	StartCols   int    `json:"startColumns"`
	MaxRows     int    `json:"maxRows"`
	MaxCols     int    `json:"maxColumns"`
}

// Info summarizes m.
func (m Mode) Info() ModeInfo {
	return ModeInfo{
		Name:        m.Name,
		Description: m.Description,
		StartRows:   m.Tuning.Start.Rows,
		StartCols:   m.Tuning.Start.Columns,
		MaxRows:     m.Tuning.Curve.MaxRows,
		MaxCols:     m.Tuning.Curve.MaxColumns,
	}
}

// Position is a card's layout coordinate in card-spacing units.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CardView is what a presenter needs to draw one card.
type CardView struct {
	Index     int      `json:"index"`
	FaceIndex int      `json:"faceIndex"`
	Face      string   `json:"face"`
	Revealed  bool     `json:"revealed"`
	Matched   bool     `json:"matched"`
	Position  Position `json:"position"`
}

// Presenter receives visual commands. Cards are addressed by their index in
// the dealt grid.
type Presenter interface {
	// Layout replaces the whole grid.
	Layout(level, rows, columns int, cards []CardView)
	Reveal(card CardView)
	Hide(card int)
	Match(card CardView)
	SetInteractable(card int, on bool)
	ShowCombo(streak int)
	HideCombo()
}

// Cue fires audio cues. Calls never fail and never block on playback.
type Cue interface {
	OnTap()
	OnMatch()
	OnLevelWin()
	OnLevelLose()
}

// NopPresenter ignores every command.
type NopPresenter struct{}

func (NopPresenter) Layout(int, int, int, []CardView) {}
func (NopPresenter) Reveal(CardView)                  {}
func (NopPresenter) Hide(int)                         {}
func (NopPresenter) Match(CardView)                   {}
func (NopPresenter) SetInteractable(int, bool)        {}
func (NopPresenter) ShowCombo(int)                    {}
func (NopPresenter) HideCombo()                       {}

// NopCue plays nothing.
type NopCue struct{}

func (NopCue) OnTap()       {}
func (NopCue) OnMatch()     {}
func (NopCue) OnLevelWin()  {}
func (NopCue) OnLevelLose() {}

// Cues fans one cue out to several players.
type Cues []Cue

func (c Cues) OnTap() {
	for _, cue := range c {
		cue.OnTap()
	}
}

func (c Cues) OnMatch() {
	for _, cue := range c {
		cue.OnMatch()
	}
}

func (c Cues) OnLevelWin() {
	for _, cue := range c {
		cue.OnLevelWin()
	}
}

func (c Cues) OnLevelLose() {
	for _, cue := range c {
		cue.OnLevelLose()
	}
}
