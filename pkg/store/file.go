package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cmmc-tools/integrations-hub/pkg/evidence"
)

// fileState is the on-disk layout. The assessment and POA&M sections mirror
// the host application's records; the hub only merges specific fields.
type fileState struct {
	SyncRecords map[string]*evidence.SyncRecord `json:"syncRecords"`
	Assessment  map[string]ControlAssessment    `json:"assessment"`
	POAM        map[string]POAMItem             `json:"poam"`
}

// FileStore keeps durable state in a single JSON file, written atomically via
// a temp file and rename. Suitable for single-user local deployments.
type FileStore struct {
	path  string
	mu    sync.Mutex
	state fileState
}

// OpenFileStore loads or initializes the state file.
func OpenFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path}
	fs.state = fileState{
		SyncRecords: make(map[string]*evidence.SyncRecord),
		Assessment:  make(map[string]ControlAssessment),
		POAM:        make(map[string]POAMItem),
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	if err := json.Unmarshal(data, &fs.state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	if fs.state.SyncRecords == nil {
		fs.state.SyncRecords = make(map[string]*evidence.SyncRecord)
	}
	if fs.state.Assessment == nil {
		fs.state.Assessment = make(map[string]ControlAssessment)
	}
	if fs.state.POAM == nil {
		fs.state.POAM = make(map[string]POAMItem)
	}
	return fs, nil
}

// persist writes the state atomically. Caller holds the mutex.
func (fs *FileStore) persist() error {
	data, err := json.MarshalIndent(fs.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	tmp := fs.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(fs.path), 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// SyncRecord returns the provider's last sync record, or (nil, nil).
func (fs *FileStore) SyncRecord(_ context.Context, providerID string) (*evidence.SyncRecord, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	rec, ok := fs.state.SyncRecords[providerID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// PutSyncRecord replaces the provider's record wholesale.
func (fs *FileStore) PutSyncRecord(_ context.Context, rec *evidence.SyncRecord) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	cp := *rec
	fs.state.SyncRecords[rec.ProviderID] = &cp
	return fs.persist()
}

// Assessment returns a copy of the assessment record.
func (fs *FileStore) Assessment(_ context.Context) (map[string]ControlAssessment, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make(map[string]ControlAssessment, len(fs.state.Assessment))
	for k, v := range fs.state.Assessment {
		out[k] = v
	}
	return out, nil
}

// MergeAssessment merges per-control updates, preserving other fields of
// existing entries and leaving untouched controls alone.
func (fs *FileStore) MergeAssessment(_ context.Context, updates map[string]ControlAssessment) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for controlID, update := range updates {
		fs.state.Assessment[controlID] = mergeControl(fs.state.Assessment[controlID], update)
	}
	return fs.persist()
}

// POAM returns a copy of the POA&M record.
func (fs *FileStore) POAM(_ context.Context) (map[string]POAMItem, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make(map[string]POAMItem, len(fs.state.POAM))
	for k, v := range fs.state.POAM {
		out[k] = v
	}
	return out, nil
}

// PutPOAMItem writes one POA&M entry. The broader POA&M schema belongs to the
// host; this exists so local deployments can seed items through the hub.
func (fs *FileStore) PutPOAMItem(_ context.Context, controlID string, item POAMItem) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.state.POAM[controlID] = item
	return fs.persist()
}
