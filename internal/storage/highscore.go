// Package storage handles high score persistence and JSON file operations
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"tetris-versus/pkg/logger"
)

// ErrNotFound is returned when a player has no stored score
var ErrNotFound = errors.New("high score not found")

// ScoreRecord is one player's best result
type ScoreRecord struct {
	Username  string    `json:"username"`
	Score     int       `json:"score"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScoreDatabase represents the scores file structure
type ScoreDatabase struct {
	Players []ScoreRecord `json:"players"`
}

// FileStore keeps high scores in a single JSON file
type FileStore struct {
	mu         sync.RWMutex
	dataDir    string
	scoresFile string
	db         *ScoreDatabase
}

// NewFileStore creates a store rooted at dataDir
func NewFileStore(dataDir string) *FileStore {
	return &FileStore{
		dataDir:    dataDir,
		scoresFile: filepath.Join(dataDir, "scores.json"),
	}
}

// Initialize creates the data directory and loads the scores file
func (fs *FileStore) Initialize() error {
	if err := os.MkdirAll(fs.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.loadLocked()
}

func (fs *FileStore) loadLocked() error {
	if _, err := os.Stat(fs.scoresFile); os.IsNotExist(err) {
		fs.db = &ScoreDatabase{Players: make([]ScoreRecord, 0)}
		return fs.saveLocked()
	}

	data, err := os.ReadFile(fs.scoresFile)
	if err != nil {
		return fmt.Errorf("failed to read scores file: %w", err)
	}

	db := &ScoreDatabase{}
	if err := json.Unmarshal(data, db); err != nil {
		return fmt.Errorf("failed to parse scores JSON: %w", err)
	}
	fs.db = db
	return nil
}

// saveLocked writes a temp file and renames it over the scores file
func (fs *FileStore) saveLocked() error {
	data, err := json.MarshalIndent(fs.db, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal scores: %w", err)
	}

	tmp := fs.scoresFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write scores file: %w", err)
	}
	if err := os.Rename(tmp, fs.scoresFile); err != nil {
		return fmt.Errorf("failed to replace scores file: %w", err)
	}
	return nil
}

// GetHighScore returns the stored score for username or ErrNotFound
func (fs *FileStore) GetHighScore(ctx context.Context, username string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if fs.db == nil {
		return 0, errors.New("store not initialized")
	}
	for _, rec := range fs.db.Players {
		if rec.Username == username {
			return rec.Score, nil
		}
	}
	return 0, ErrNotFound
}

// SetHighScore records score for username. A lower score never replaces a
// higher one.
func (fs *FileStore) SetHighScore(ctx context.Context, username string, score int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.db == nil {
		return errors.New("store not initialized")
	}

	for i := range fs.db.Players {
		rec := &fs.db.Players[i]
		if rec.Username != username {
			continue
		}
		if score <= rec.Score {
			return nil
		}
		logger.Storage.Info("New high score for %s: %d -> %d", username, rec.Score, score)
		rec.Score = score
		rec.UpdatedAt = time.Now()
		return fs.saveLocked()
	}

	fs.db.Players = append(fs.db.Players, ScoreRecord{
		Username:  username,
		Score:     score,
		UpdatedAt: time.Now(),
	})
	logger.Storage.Info("First high score for %s: %d", username, score)
	return fs.saveLocked()
}

// Top returns up to n records ordered by score
func (fs *FileStore) Top(n int) []ScoreRecord {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if fs.db == nil {
		return nil
	}

	out := make([]ScoreRecord, len(fs.db.Players))
	copy(out, fs.db.Players)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Username < out[j].Username
	})
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}
