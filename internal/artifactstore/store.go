// Package artifactstore implements the ArtifactStore on-disk cache (spec §4.5):
// datasets under <cache_root>/datasets/<dataset>.bin plus two JSON indexes,
// node_signatures.json and datasets_index.json.
//
// Write ordering combines two grounding sources: original_source's
// pipeline/engines/kedro_engine.py#_persist_node_state (write dataset files
// before rewriting the indexes — preserved here as a hard invariant per spec
// §4.5) and the teacher's internal/registry/cache.go atomic-write technique
// (temp file + os.Rename per index file), which is strictly more crash-safe
// than the original's direct, non-atomic index write. Filesystem access goes
// through spf13/afero so the store is testable against an in-memory fs.
package artifactstore

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	pipelineerrors "github.com/flowkit/pipelinectl/pkg/errors"
)

// DatasetEntry is one entry of datasets_index.json.
type DatasetEntry struct {
	Fingerprint string `json:"fingerprint"`
	Type        string `json:"type"`
	File        string `json:"file"`
}

// Store is the ArtifactStore. All in-memory state is guarded by mu; the
// Scheduler calls Record concurrently from its workers within a layer, and
// mu serializes those calls (spec §5 "cache-index writes are serialized per
// step").
type Store struct {
	mu sync.Mutex
	fs afero.Fs

	root string

	signatures map[string]string
	datasets   map[string]DatasetEntry
	catalog    map[string][]byte // dataset -> decoded artifact bytes, in-memory
}

// New constructs a Store rooted at root, using fs for all I/O (pass
// afero.NewOsFs() for real disk, afero.NewMemMapFs() for tests).
func New(fs afero.Fs, root string) *Store {
	return &Store{
		fs:         fs,
		root:       root,
		signatures: make(map[string]string),
		datasets:   make(map[string]DatasetEntry),
		catalog:    make(map[string][]byte),
	}
}

func (s *Store) signaturesPath() string { return filepath.Join(s.root, "node_signatures.json") }
func (s *Store) indexPath() string      { return filepath.Join(s.root, "datasets_index.json") }
func (s *Store) datasetsDir() string    { return filepath.Join(s.root, "datasets") }

// LoadAll reads both indexes and every referenced dataset file into the
// in-memory catalog at startup. Failures are logged via the returned
// non-fatal error list and skipped per-dataset; LoadAll itself never returns
// an error (spec §4.5 "failures are logged and skipped, never fatal").
func (s *Store) LoadAll() []error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var warnings []error

	if data, err := afero.ReadFile(s.fs, s.signaturesPath()); err == nil {
		var sig map[string]string
		if err := json.Unmarshal(data, &sig); err == nil {
			s.signatures = sig
		} else {
			warnings = append(warnings, pipelineerrors.NewCacheIOError(s.signaturesPath(), err))
		}
	}

	if data, err := afero.ReadFile(s.fs, s.indexPath()); err == nil {
		var idx map[string]DatasetEntry
		if err := json.Unmarshal(data, &idx); err == nil {
			s.datasets = idx
		} else {
			warnings = append(warnings, pipelineerrors.NewCacheIOError(s.indexPath(), err))
		}
	}

	for dataset, entry := range s.datasets {
		blob, err := afero.ReadFile(s.fs, entry.File)
		if err != nil {
			warnings = append(warnings, pipelineerrors.NewCacheIOError(entry.File, err))
			continue
		}
		s.catalog[dataset] = blob
	}

	return warnings
}

// Signature returns the last recorded signature for step, if any.
func (s *Store) Signature(step string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.signatures[step]
	return sig, ok
}

// HasDataset reports whether dataset is present in the in-memory catalog.
func (s *Store) HasDataset(dataset string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.catalog[dataset]
	return ok
}

// Fingerprint returns the recorded fingerprint for dataset, if any.
func (s *Store) Fingerprint(dataset string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.datasets[dataset]
	return entry.Fingerprint, ok
}

// Get returns the raw bytes for dataset from the in-memory catalog.
func (s *Store) Get(dataset string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.catalog[dataset]
	return b, ok
}

// GetDecoded returns the decoded payload for dataset, reversing encodeGob's
// boxing. ok is false when dataset isn't in the in-memory catalog; err is set
// when the stored bytes fail to decode.
func (s *Store) GetDecoded(dataset string) (any, bool, error) {
	raw, ok := s.Get(dataset)
	if !ok {
		return nil, false, nil
	}
	v, err := decodeGob(raw)
	return v, true, err
}

// DatasetNames returns every dataset name currently indexed, in no
// particular order.
func (s *Store) DatasetNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.datasets))
	for name := range s.datasets {
		names = append(names, name)
	}
	return names
}

// ProducedDataset is one artifact produced by a step's execution, ready to
// persist.
type ProducedDataset struct {
	Name        string
	Fingerprint string
	Type        string
	Payload     any // gob-encoded on persist
}

// Record persists produced datasets then rewrites both index files, in that
// order (spec §4.5: "write datasets first, then rewrite indexes", so a crash
// mid-write cannot orphan a signature without its datasets).
func (s *Store) Record(step, signature string, produced []ProducedDataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.MkdirAll(s.datasetsDir(), 0o755); err != nil {
		return pipelineerrors.NewCacheIOError(s.datasetsDir(), err)
	}

	for _, p := range produced {
		path := filepath.Join(s.datasetsDir(), p.Name+".bin")
		blob, err := encodeGob(p.Payload)
		if err != nil {
			return pipelineerrors.NewCacheIOError(path, err)
		}
		if err := afero.WriteFile(s.fs, path, blob, 0o644); err != nil {
			return pipelineerrors.NewCacheIOError(path, err)
		}
		s.catalog[p.Name] = blob
		s.datasets[p.Name] = DatasetEntry{Fingerprint: p.Fingerprint, Type: p.Type, File: path}
	}

	s.signatures[step] = signature

	if err := s.writeJSONAtomic(s.signaturesPath(), s.signatures); err != nil {
		return err
	}
	return s.writeJSONAtomic(s.indexPath(), s.datasets)
}

// writeJSONAtomic serializes v and writes it via a temp-file-then-rename,
// grounded on the teacher's internal/registry/cache.go#Save.
func (s *Store) writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return pipelineerrors.NewCacheIOError(path, err)
	}
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return pipelineerrors.NewCacheIOError(path, err)
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return pipelineerrors.NewCacheIOError(path, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		return pipelineerrors.NewCacheIOError(path, err)
	}
	return nil
}

// Clear deletes the entire cache root (spec §4.5).
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fs.RemoveAll(s.root); err != nil {
		return pipelineerrors.NewCacheIOError(s.root, err)
	}
	s.signatures = make(map[string]string)
	s.datasets = make(map[string]DatasetEntry)
	s.catalog = make(map[string][]byte)
	return nil
}

// WriteFailureSnapshot records a post-mortem failure file at
// <failuresDir>/<step>.json (spec §4.6 "Failure semantics"). failuresDir is
// supplied by the caller and is not derived from the cache root.
func (s *Store) WriteFailureSnapshot(failuresDir, step string, snapshot any) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return pipelineerrors.NewCacheIOError(step, err)
	}
	if err := s.fs.MkdirAll(failuresDir, 0o755); err != nil {
		return pipelineerrors.NewCacheIOError(failuresDir, err)
	}
	path := filepath.Join(failuresDir, step+".json")
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return pipelineerrors.NewCacheIOError(path, err)
	}
	return nil
}

func encodeGob(v any) ([]byte, error) {
	buf := &gobBuffer{}
	enc := gob.NewEncoder(buf)
	wrapped := gobValue{V: v}
	if err := enc.Encode(wrapped); err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte) (any, error) {
	dec := gob.NewDecoder(bytes.NewReader(data))
	var wrapped gobValue
	if err := dec.Decode(&wrapped); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return wrapped.V, nil
}

// gobValue boxes an arbitrary payload so gob has a concrete registered type to
// encode through an interface{} field; callers that need custom artifact
// types should gob.Register them.
type gobValue struct {
	V any
}

// value.ToAny lowers lists and maps to these types, so every list- or
// map-shaped step output reaches encodeGob as one of them.
func init() {
	gob.Register([]any(nil))
	gob.Register(map[string]any(nil))
}

type gobBuffer struct {
	data []byte
}

func (b *gobBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *gobBuffer) Bytes() []byte { return b.data }
