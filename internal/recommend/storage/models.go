// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

// Package storage persists trained models as versioned snapshot files.
//
// Each model is gob-encoded, checksummed with SHA-256 and gzip-compressed
// into {algorithm}_v{version}.gob.gz. Files are written to a temporary name
// in the same directory and renamed into place, so a crash mid-save never
// leaves a truncated snapshot under a model name.
package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

// ErrNoModel is returned by Load when no snapshot exists.
var ErrNoModel = errors.New("no stored model")

const modelExt = ".gob.gz"

// ModelMetadata contains information about a stored model.
type ModelMetadata struct {
	// Name is the algorithm name (e.g., "nmf").
	Name string `json:"name"`

	// Version is the engine model version.
	Version int64 `json:"version"`

	TrainedAt time.Time `json:"trained_at"`
	SavedAt   time.Time `json:"saved_at"`

	RatingCount int `json:"rating_count"`
	ItemCount   int `json:"item_count"`
	UserCount   int `json:"user_count"`

	// Checksum is the SHA-256 checksum of the uncompressed model data.
	Checksum string `json:"checksum"`

	// SizeBytes is the compressed model size in bytes.
	SizeBytes int64 `json:"size_bytes"`

	TrainRMSE float64 `json:"train_rmse"`
}

// Store manages model persistence.
type Store struct {
	baseDir string
	mu      sync.RWMutex

	// versions holds every stored version per algorithm, ascending.
	versions map[string][]int64
}

// NewStore creates a new model store at the given directory.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	s := &Store{
		baseDir:  baseDir,
		versions: make(map[string][]int64),
	}
	if err := s.scanModels(); err != nil {
		return nil, fmt.Errorf("scan existing models: %w", err)
	}
	return s, nil
}

// scanModels rebuilds the version index from the directory listing.
func (s *Store) scanModels() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return err
	}

	s.versions = make(map[string][]int64)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), modelExt) {
			continue
		}
		algName, version := parseModelFilename(strings.TrimSuffix(entry.Name(), modelExt))
		if algName == "" {
			continue
		}
		s.versions[algName] = append(s.versions[algName], version)
	}
	for name := range s.versions {
		v := s.versions[name]
		sort.Slice(v, func(i, j int) bool { return v[i] < v[j] })
	}
	return nil
}

// parseModelFilename extracts algorithm name and version from "nmf_v12".
func parseModelFilename(name string) (algName string, version int64) {
	idx := strings.LastIndex(name, "_v")
	if idx <= 0 {
		return "", 0
	}
	v, err := strconv.ParseInt(name[idx+2:], 10, 64)
	if err != nil || v <= 0 {
		return "", 0
	}
	return name[:idx], v
}

// storedFile is the on-disk format for model files.
type storedFile struct {
	Metadata       ModelMetadata
	CompressedData []byte
}

// Save writes a snapshot of model under its algorithm name and version.
func (s *Store) Save(ctx context.Context, model *recommend.TrainedModel) (*ModelMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(model.Snapshot()); err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}
	rawData := buf.Bytes()
	hash := sha256.Sum256(rawData)

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(rawData); err != nil {
		return nil, fmt.Errorf("compress model: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("finalize compression: %w", err)
	}

	meta := ModelMetadata{
		Name:        model.Algorithm,
		Version:     model.Version,
		TrainedAt:   model.TrainedAt,
		SavedAt:     time.Now().UTC(),
		RatingCount: model.NumRatings,
		ItemCount:   model.Index.NumItems(),
		UserCount:   model.Index.NumUsers(),
		Checksum:    hex.EncodeToString(hash[:]),
		SizeBytes:   int64(compressed.Len()),
		TrainRMSE:   model.TrainRMSE,
	}

	if err := s.writeAtomic(s.modelPath(meta.Name, meta.Version), storedFile{
		Metadata:       meta,
		CompressedData: compressed.Bytes(),
	}); err != nil {
		return nil, err
	}

	s.addVersion(meta.Name, meta.Version)
	return &meta, nil
}

func (s *Store) writeAtomic(path string, sf storedFile) error {
	tmp, err := os.CreateTemp(s.baseDir, ".model-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp model file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }() //nolint:errcheck // no-op after a successful rename

	if err := gob.NewEncoder(tmp).Encode(sf); err != nil {
		_ = tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("write model file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("sync model file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close model file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename model file: %w", err)
	}
	return nil
}

func (s *Store) addVersion(name string, version int64) {
	v := s.versions[name]
	for _, existing := range v {
		if existing == version {
			return
		}
	}
	v = append(v, version)
	sort.Slice(v, func(i, j int) bool { return v[i] < v[j] })
	s.versions[name] = v
}

// Load reads a model by algorithm name and version. Version 0 loads the
// latest stored version. The checksum is verified before decoding.
func (s *Store) Load(ctx context.Context, name string, version int64) (*recommend.TrainedModel, *ModelMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if version == 0 {
		v := s.versions[name]
		if len(v) == 0 {
			return nil, nil, fmt.Errorf("%w for %s", ErrNoModel, name)
		}
		version = v[len(v)-1]
	}

	sf, err := readStoredFile(s.modelPath(name, version))
	if err != nil {
		return nil, nil, err
	}

	gzr, err := gzip.NewReader(bytes.NewReader(sf.CompressedData))
	if err != nil {
		return nil, nil, fmt.Errorf("decompress model: %w", err)
	}
	defer func() { _ = gzr.Close() }() //nolint:errcheck // error on gzip close after read is not actionable

	rawData, err := io.ReadAll(gzr)
	if err != nil {
		return nil, nil, fmt.Errorf("read decompressed data: %w", err)
	}

	hash := sha256.Sum256(rawData)
	if checksum := hex.EncodeToString(hash[:]); checksum != sf.Metadata.Checksum {
		return nil, nil, fmt.Errorf("checksum mismatch: expected %s, got %s", sf.Metadata.Checksum, checksum)
	}

	var snap recommend.ModelSnapshot
	if err := gob.NewDecoder(bytes.NewReader(rawData)).Decode(&snap); err != nil {
		return nil, nil, fmt.Errorf("decode model: %w", err)
	}
	model, err := snap.Model()
	if err != nil {
		return nil, nil, fmt.Errorf("rebuild model: %w", err)
	}
	return model, &sf.Metadata, nil
}

func readStoredFile(path string) (*storedFile, error) {
	f, err := os.Open(path) //nolint:gosec // path is built from the store directory
	if err != nil {
		return nil, fmt.Errorf("open model file: %w", err)
	}
	defer func() { _ = f.Close() }() //nolint:errcheck // error on close after read is not actionable

	var sf storedFile
	if err := gob.NewDecoder(f).Decode(&sf); err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	return &sf, nil
}

// LatestVersion returns the latest version number for a model.
func (s *Store) LatestVersion(name string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := s.versions[name]
	if len(v) == 0 {
		return 0, false
	}
	return v[len(v)-1], true
}

// ListModels returns metadata for every stored model, newest first.
func (s *Store) ListModels(ctx context.Context) ([]ModelMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var models []ModelMetadata
	for name, versions := range s.versions {
		for _, v := range versions {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			sf, err := readStoredFile(s.modelPath(name, v))
			if err != nil {
				continue
			}
			models = append(models, sf.Metadata)
		}
	}
	sort.Slice(models, func(i, j int) bool {
		if models[i].Version != models[j].Version {
			return models[i].Version > models[j].Version
		}
		return models[i].Name < models[j].Name
	})
	return models, nil
}

// Prune removes old versions of name, keeping the newest keepVersions.
func (s *Store) Prune(ctx context.Context, name string, keepVersions int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if keepVersions < 1 {
		keepVersions = 1
	}
	versions := s.versions[name]
	if len(versions) <= keepVersions {
		return 0, nil
	}

	cut := len(versions) - keepVersions
	removed := 0
	for _, v := range versions[:cut] {
		if err := os.Remove(s.modelPath(name, v)); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("delete model: %w", err)
		}
		removed++
	}
	s.versions[name] = append([]int64(nil), versions[cut:]...)
	return removed, nil
}

// modelPath returns the file path for a model.
func (s *Store) modelPath(name string, version int64) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s_v%d%s", name, version, modelExt))
}
