package save

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Keys written per profile.
const (
	KeySession = "session"
	KeyLevel   = "level"
	KeyScore   = "score"
)

// ErrNoSave is returned when nothing has been saved yet.
var ErrNoSave = errors.New("no save")

// KV is durable per-profile key-value storage. Get returns an error
// wrapping sql.ErrNoRows when the key is absent. PutMany is atomic.
type KV interface {
	PutMany(values map[string]string) error
	Get(key string) (string, error)
	DeleteAll() error
}

// Gateway reads and writes session records.
type Gateway struct {
	kv KV
}

// NewGateway wraps kv.
func NewGateway(kv KV) *Gateway {
	return &Gateway{kv: kv}
}

// Save validates r and writes it together with the legacy level/score
// keys in one atomic write.
func (g *Gateway) Save(r Record) error {
	r.Version = SchemaVersion
	if err := r.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return g.kv.PutMany(map[string]string{
		KeySession: string(data),
		KeyLevel:   strconv.Itoa(r.LevelIndex),
		KeyScore:   strconv.Itoa(r.TotalScore + r.Score),
	})
}

// Load returns the saved record, ErrNoSave when there is none, or an error
// wrapping ErrCorruptSaveRecord when it cannot be resumed.
func (g *Gateway) Load() (Record, error) {
	data, err := g.kv.Get(KeySession)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNoSave
	}
	if err != nil {
		return Record{}, fmt.Errorf("read record: %w", err)
	}
	var r Record
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorruptSaveRecord, err)
	}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// LoadLegacy reads the coarse level/score keys.
func (g *Gateway) LoadLegacy() (Legacy, error) {
	level, err := g.readInt(KeyLevel)
	if err != nil {
		return Legacy{}, err
	}
	score, err := g.readInt(KeyScore)
	if errors.Is(err, ErrNoSave) {
		score = 0
	} else if err != nil {
		return Legacy{}, err
	}
	if level < 0 || score < 0 {
		return Legacy{}, fmt.Errorf("%w: legacy level %d score %d", ErrCorruptSaveRecord, level, score)
	}
	return Legacy{LevelIndex: level, Score: score}, nil
}

// Clear removes every persisted key.
func (g *Gateway) Clear() error {
	return g.kv.DeleteAll()
}

func (g *Gateway) readInt(key string) (int, error) {
	v, err := g.kv.Get(key)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoSave
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrCorruptSaveRecord, key, v)
	}
	return n, nil
}
