package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"memorymatch/internal/difficulty"
	"memorymatch/internal/game"
)

// ModesFile is the on-disk layout of a tuning preset file.
type ModesFile struct {
	Modes []game.Mode `yaml:"modes"`
}

// LoadModes reads mode presets from a YAML file. An empty path returns the
// built-in presets.
func LoadModes(path string) ([]game.Mode, error) {
	if path == "" {
		return DefaultModes(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tuning file: %w", err)
	}
	return ParseModes(data)
}

// ParseModes decodes and validates YAML mode presets.
func ParseModes(data []byte) ([]game.Mode, error) {
	var f ModesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse tuning file: %w", err)
	}
	if len(f.Modes) == 0 {
		return nil, errors.New("tuning file defines no modes")
	}
	seen := make(map[string]bool, len(f.Modes))
	for _, m := range f.Modes {
		if m.Name == "" {
			return nil, errors.New("mode without a name")
		}
		if seen[m.Name] {
			return nil, fmt.Errorf("mode %q defined twice", m.Name)
		}
		seen[m.Name] = true
		if err := m.Tuning.Validate(); err != nil {
			return nil, fmt.Errorf("mode %q: %w", m.Name, err)
		}
	}
	return f.Modes, nil
}

// MarshalModes encodes modes in the preset file layout.
func MarshalModes(modes []game.Mode) ([]byte, error) {
	return yaml.Marshal(ModesFile{Modes: modes})
}

var defaultFaces = []string{
	"apple", "anchor", "bell", "bolt", "cat", "crown",
	"diamond", "drum", "feather", "fish", "flower", "key",
	"leaf", "moon", "rocket", "shell", "star", "sun",
}

// ClassicTuning is the default tuning.
func ClassicTuning() game.Tuning {
	return game.Tuning{
		Start: difficulty.Start{
			Rows:     2,
			Columns:  2,
			Preview:  1500 * time.Millisecond,
			Mismatch: time.Second,
		},
		Curve: difficulty.Curve{
			StepRows:                 1,
			StepColumns:              1,
			SizeIncreaseEveryLevels:  2,
			MaxRows:                  6,
			MaxColumns:               6,
			PreviewIncreasePerPair:   250 * time.Millisecond,
			MaxPreview:               5 * time.Second,
			MismatchDecreasePerLevel: 50 * time.Millisecond,
			MinMismatch:              400 * time.Millisecond,
			BaseMovesPerPair:         2,
			BonusChance:              0.3,
			BonusMin:                 1,
			BonusMax:                 3,
		},
		ScorePerMatch:      5,
		ComboBonusPerMatch: 2,
		ComboDisplayTime:   time.Second,
		LevelCompleteDelay: 1500 * time.Millisecond,
		LevelFailedDelay:   1500 * time.Millisecond,
		CardSpacing:        1.2,
		Faces:              append([]string(nil), defaultFaces...),
	}
}

// DefaultModes returns the built-in presets. classic is first and so the
// default.
func DefaultModes() []game.Mode {
	relaxed := ClassicTuning()
	relaxed.Curve.SizeIncreaseEveryLevels = 3
	relaxed.Curve.BaseMovesPerPair = 3
	relaxed.Curve.BonusChance = 0.5
	relaxed.Start.Mismatch = 1500 * time.Millisecond
	relaxed.Curve.MinMismatch = 800 * time.Millisecond
	relaxed.Curve.MaxPreview = 8 * time.Second

	expert := ClassicTuning()
	expert.Start.Rows, expert.Start.Columns = 3, 4
	expert.Curve.SizeIncreaseEveryLevels = 1
	expert.Curve.BaseMovesPerPair = 1.5
	expert.Curve.BonusChance = 0.1
	expert.Start.Preview = time.Second
	expert.Curve.PreviewIncreasePerPair = 150 * time.Millisecond
	expert.Curve.MaxPreview = 3 * time.Second
	expert.Curve.MinMismatch = 250 * time.Millisecond
	expert.ComboBonusPerMatch = 3

	return []game.Mode{
		{Name: "classic", Description: "Grows every two levels with a comfortable move budget.", Tuning: ClassicTuning()},
		{Name: "relaxed", Description: "Slow growth, long looks and plenty of moves.", Tuning: relaxed},
		{Name: "expert", Description: "Starts at 3x4, grows every level, tight budget.", Tuning: expert},
	}
}
