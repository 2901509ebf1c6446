// Package jsonfile stores agent histories as JSON files, one per agent.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/AutonomosCdM/first-court-sub000/internal/core/history"
	"github.com/klauspost/compress/zstd"
)

// historyFile is the root JSON structure stored on disk.
type historyFile struct {
	AgentID string          `json:"agent_id"`
	Entries []history.Entry `json:"entries"`
}

// zstdEncoder and zstdDecoder are shared; both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("jsonfile: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("jsonfile: zstd decoder initialization failed: " + err.Error())
	}
}

// HistoryStore implements history.Store with one JSON file per agent
// under a directory. With compression enabled files are zstd-compressed
// and named <agent>.json.zst instead of <agent>.json.
type HistoryStore struct {
	dir      string
	compress bool
	mu       sync.RWMutex
}

// NewHistoryStore creates a history store rooted at dir. The directory
// is created on first save.
func NewHistoryStore(dir string, compress bool) *HistoryStore {
	return &HistoryStore{dir: dir, compress: compress}
}

func (s *HistoryStore) ext() string {
	if s.compress {
		return ".json.zst"
	}
	return ".json"
}

func (s *HistoryStore) path(agentID string) (string, error) {
	if agentID == "" || agentID == "." || agentID == ".." || strings.ContainsAny(agentID, `/\`) {
		return "", fmt.Errorf("invalid agent id %q", agentID)
	}
	return filepath.Join(s.dir, agentID+s.ext()), nil
}

// Save replaces the snapshot for agentID.
func (s *HistoryStore) Save(ctx context.Context, agentID string, entries []history.Entry) error {
	path, err := s.path(agentID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entries == nil {
		entries = []history.Entry{}
	}
	return s.save(path, historyFile{AgentID: agentID, Entries: entries})
}

// Load returns the snapshot for agentID. Returns history.ErrNotFound if
// none was saved.
func (s *HistoryStore) Load(ctx context.Context, agentID string) ([]history.Entry, error) {
	path, err := s.path(agentID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := s.load(path)
	if err != nil {
		return nil, err
	}
	return f.Entries, nil
}

// Agents returns the ids with a snapshot in the directory, sorted.
func (s *HistoryStore) Agents(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history directory: %w", err)
	}

	ext := s.ext()
	var ids []string
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ext))
	}
	slices.Sort(ids)
	return ids, nil
}

// Close is a no-op; files are not held open between calls.
func (s *HistoryStore) Close() error {
	return nil
}

// load reads one agent's file from disk.
func (s *HistoryStore) load(path string) (historyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return historyFile{}, history.ErrNotFound
		}
		return historyFile{}, fmt.Errorf("read history file: %w", err)
	}

	if s.compress {
		data, err = zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return historyFile{}, fmt.Errorf("zstd decompress %s: %w", filepath.Base(path), err)
		}
	}

	var f historyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return historyFile{}, fmt.Errorf("history file %s corrupted: %w", filepath.Base(path), err)
	}

	return f, nil
}

// save writes one agent's file to disk atomically.
func (s *HistoryStore) save(path string, f historyFile) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	if s.compress {
		data = zstdEncoder.EncodeAll(data, nil)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write history temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename history file: %w", err)
	}

	return nil
}
