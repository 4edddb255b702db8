package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/modgraph/pkg/modules"
	"github.com/platinummonkey/modgraph/pkg/versioning"
)

// FileSystemStore implements Backend using JSON files under a root directory:
//
//	graph.json                        revision and every module
//	versions/<module>/<version>.json  append-only version log
//	points/<id>.json                  rollback point metadata
//
// Writes go through a temp file and rename so a crash never leaves a torn
// graph.json. The store is safe for one process at a time.
type FileSystemStore struct {
	rootDir string
	mu      sync.RWMutex
	now     func() time.Time
}

type graphFile struct {
	Revision uint64           `json:"revision"`
	Modules  []modules.Module `json:"modules"`
}

// NewFileSystemStore creates a new filesystem-based store
func NewFileSystemStore(rootDir string) (*FileSystemStore, error) {
	for _, dir := range []string{rootDir, filepath.Join(rootDir, "versions"), filepath.Join(rootDir, "points")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return &FileSystemStore{rootDir: rootDir, now: time.Now}, nil
}

func (s *FileSystemStore) graphPath() string {
	return filepath.Join(s.rootDir, "graph.json")
}

func (s *FileSystemStore) readGraph() (*graphFile, error) {
	data, err := os.ReadFile(s.graphPath())
	if errors.Is(err, os.ErrNotExist) {
		return &graphFile{Modules: []modules.Module{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read graph file: %w", err)
	}

	var g graphFile
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph: %w", err)
	}
	return &g, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Snapshot implements modules.ModuleReader
func (s *FileSystemStore) Snapshot(ctx context.Context) (*modules.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, err := s.readGraph()
	if err != nil {
		return nil, err
	}
	return &modules.Snapshot{Revision: g.Revision, Modules: g.Modules}, nil
}

// Commit implements modules.ModuleWriter
func (s *FileSystemStore) Commit(ctx context.Context, expected uint64, mutations ...modules.Mutation) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.readGraph()
	if err != nil {
		return 0, err
	}
	if g.Revision != expected {
		return g.Revision, &modules.StaleSnapshotError{Expected: expected, Actual: g.Revision}
	}

	next, err := modules.ApplyMutations(g.Modules, s.now(), mutations...)
	if err != nil {
		return g.Revision, err
	}

	out := graphFile{Revision: g.Revision + 1, Modules: next}
	if err := writeJSON(s.graphPath(), out); err != nil {
		return g.Revision, err
	}
	return out.Revision, nil
}

// ListVersions implements modules.ModuleReader
func (s *FileSystemStore) ListVersions(ctx context.Context, moduleKey string) ([]modules.VersionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versionsDir := filepath.Join(s.rootDir, "versions", moduleKey)
	entries, err := os.ReadDir(versionsDir)
	if errors.Is(err, os.ErrNotExist) {
		return []modules.VersionRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read versions directory: %w", err)
	}

	records := make([]modules.VersionRecord, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(versionsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read version file %s: %w", entry.Name(), err)
		}
		var r modules.VersionRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal version %s: %w", entry.Name(), err)
		}
		records = append(records, r)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return versioning.MarkLatest(records), nil
}

// AppendVersion implements modules.ModuleWriter
func (s *FileSystemStore) AppendVersion(ctx context.Context, record modules.VersionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.rootDir, "versions", record.ModuleKey, record.Version+".json")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s@%s", modules.ErrVersionExists, record.ModuleKey, record.Version)
	}
	record.IsLatest = false
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	return writeJSON(path, record)
}

func (s *FileSystemStore) pointPath(id string) string {
	return filepath.Join(s.rootDir, "points", id+".json")
}

// SavePoint implements modules.PointStore
func (s *FileSystemStore) SavePoint(ctx context.Context, point *modules.RollbackPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(s.pointPath(point.ID), point)
}

func (s *FileSystemStore) readPoint(id string) (*modules.RollbackPoint, error) {
	data, err := os.ReadFile(s.pointPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", modules.ErrPointNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read point file: %w", err)
	}
	var p modules.RollbackPoint
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal point: %w", err)
	}
	return &p, nil
}

// GetPoint implements modules.PointStore
func (s *FileSystemStore) GetPoint(ctx context.Context, id string) (*modules.RollbackPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readPoint(id)
}

func (s *FileSystemStore) listPoints(keep func(*modules.RollbackPoint) bool) ([]*modules.RollbackPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(s.rootDir, "points"))
	if err != nil {
		return nil, fmt.Errorf("failed to read points directory: %w", err)
	}

	out := make([]*modules.RollbackPoint, 0)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		p, err := s.readPoint(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ListPoints implements modules.PointStore, newest first
func (s *FileSystemStore) ListPoints(ctx context.Context, moduleKey string) ([]*modules.RollbackPoint, error) {
	return s.listPoints(func(p *modules.RollbackPoint) bool { return p.ModuleKey == moduleKey })
}

// ListPointsBefore implements modules.PointStore
func (s *FileSystemStore) ListPointsBefore(ctx context.Context, cutoff time.Time, status modules.PointStatus) ([]*modules.RollbackPoint, error) {
	return s.listPoints(func(p *modules.RollbackPoint) bool {
		return p.Status == status && p.CreatedAt.Before(cutoff)
	})
}

// UpdatePointStatus implements modules.PointStore
func (s *FileSystemStore) UpdatePointStatus(ctx context.Context, id string, status modules.PointStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.readPoint(id)
	if err != nil {
		return err
	}
	p.Status = status
	return writeJSON(s.pointPath(id), p)
}

// HealthCheck implements Backend
func (s *FileSystemStore) HealthCheck(ctx context.Context) error {
	if _, err := os.Stat(s.rootDir); err != nil {
		return fmt.Errorf("storage root unavailable: %w", err)
	}
	return nil
}

// Close implements Backend
func (s *FileSystemStore) Close() error { return nil }
