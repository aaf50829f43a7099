// Package config implements the read side of C1: a thin adapter over a
// single persisted record, backed by an embedded bbolt database (see
// DESIGN.md for why bbolt). Writes are performed by the surrounding
// HTTP layer (out of scope, spec.md §4.1); this package opens the
// database so that collaborator can share the handle, provides the Save
// method that layer writes through, and exposes an immutable Snapshot to
// every in-process reader.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketName = []byte("config")
	recordKey  = []byte("current")
)

// Timing holds the stabilization-wait tuning spec.md §4.1 lists.
type Timing struct {
	BaseStabilizationMS     int     `json:"base_stabilization_ms"`
	MovementMultiplier      float64 `json:"movement_multiplier"`
	InteractionMultiplier   float64 `json:"interaction_multiplier"`
	MenuMultiplier          float64 `json:"menu_multiplier"`
	MaxWaitMS               int     `json:"max_wait_ms"`
}

// Snapshot is the immutable value object get_snapshot() returns.
type Snapshot struct {
	LLMProvider       string  `json:"llm_provider"`
	APIKey            string  `json:"api_key"`
	ModelName         string  `json:"model_name"`
	DecisionCooldownS float64 `json:"decision_cooldown_s"`
	ROMPath           string  `json:"rom_path"`
	ROMName           string  `json:"rom_name"`
	GameOverride      string  `json:"game_override,omitempty"`
	Timing            Timing  `json:"timing"`
	NotepadPath       string  `json:"notepad_path"`
	PromptTemplatePath string `json:"prompt_template_path"`
}

// DefaultSnapshot is used the first time the store is opened, before
// any record has been written.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		LLMProvider:       "anthropic",
		ModelName:         "claude-opus-4-1",
		DecisionCooldownS: 1.0,
		Timing: Timing{
			BaseStabilizationMS:   500,
			MovementMultiplier:    1.0,
			InteractionMultiplier: 1.5,
			MenuMultiplier:        2.0,
			MaxWaitMS:             5000,
		},
	}
}

// Store wraps a bbolt handle holding the single config record.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the bbolt file at path and
// ensures the config bucket exists.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("config: init bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle so the out-of-scope HTTP write layer can
// share it in-process rather than opening a second handle on the same
// file (bbolt holds an exclusive file lock).
func (s *Store) DB() *bbolt.DB {
	return s.db
}

// Snapshot decodes and returns the current record, or DefaultSnapshot
// if nothing has been written yet.
func (s *Store) Snapshot() (Snapshot, error) {
	var snap = DefaultSnapshot()
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		raw := b.Get(recordKey)
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &snap)
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("config: read snapshot: %w", err)
	}
	return snap, nil
}

// Save persists snap as the current record. Writing is the
// surrounding HTTP layer's responsibility (spec.md §4.1); this method
// is the mechanism that layer calls into, not something the core
// itself invokes.
func (s *Store) Save(snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("config: marshal snapshot: %w", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(recordKey, raw)
	})
	if err != nil {
		return fmt.Errorf("config: save snapshot: %w", err)
	}
	return nil
}

// rawRecord returns the raw bytes currently stored at recordKey, used
// by Watch to detect that a write happened. bbolt has no pub/sub, and
// its bucket Sequence() only advances via NextSequence(), which a
// fixed-key record never calls — so a byte-for-byte comparison of the
// stored record is the simplest reliable change signal.
func (s *Store) rawRecord() ([]byte, error) {
	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get(recordKey)
		raw = append([]byte(nil), v...)
		return nil
	})
	return raw, err
}

// Watch emits a fresh Snapshot whenever the underlying record changes,
// detected by polling the stored bytes on a light ticker. The channel
// is closed when ctx is done.
func (s *Store) Watch(ctx context.Context) <-chan Snapshot {
	out := make(chan Snapshot, 1)
	go func() {
		defer close(out)
		last, _ := s.rawRecord()
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cur, err := s.rawRecord()
				if err != nil || string(cur) == string(last) {
					continue
				}
				last = cur
				snap, err := s.Snapshot()
				if err != nil {
					continue
				}
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
