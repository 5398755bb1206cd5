package persist

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
)

// FSStore keeps records under an experiment directory:
//
//	<dir>/models/<step>
//	<dir>/outputs/<step>
//
// One file per slot, overwritten on Put. The layout is deliberately
// human-manageable: deleting a file by hand clears the record.
type FSStore struct {
	dir    string
	logger *slog.Logger
}

// NewFSStore creates a store rooted at dir, creating the models and
// outputs subdirectories if needed.
func NewFSStore(dir string, logger *slog.Logger) (*FSStore, error) {
	for _, sub := range []string{"models", "outputs"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, &StoreError{Op: "init", Err: err}
		}
	}
	return &FSStore{
		dir:    dir,
		logger: logger.With("component", "fs-store"),
	}, nil
}

// Dir returns the experiment directory this store is rooted at.
func (s *FSStore) Dir() string {
	return s.dir
}

func (s *FSStore) path(step string, kind Kind) string {
	return filepath.Join(s.dir, string(kind)+"s", step)
}

func (s *FSStore) Put(ctx context.Context, step string, kind Kind, data []byte) error {
	s.logger.Debug("put", "step", step, "kind", kind, "bytes", len(data))

	path := s.path(step, kind)
	// Write-then-rename so a crash mid-write never leaves a torn record.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return &StoreError{Op: "put", Step: step, Kind: kind, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &StoreError{Op: "put", Step: step, Kind: kind, Err: err}
	}
	return nil
}

func (s *FSStore) Get(ctx context.Context, step string, kind Kind) ([]byte, error) {
	s.logger.Debug("get", "step", step, "kind", kind)

	data, err := os.ReadFile(s.path(step, kind))
	if os.IsNotExist(err) {
		return nil, &StoreError{Op: "get", Step: step, Kind: kind, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &StoreError{Op: "get", Step: step, Kind: kind, Err: err}
	}
	return data, nil
}

func (s *FSStore) Exists(ctx context.Context, step string, kind Kind) (bool, error) {
	_, err := os.Stat(s.path(step, kind))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, &StoreError{Op: "exists", Step: step, Kind: kind, Err: err}
	}
	return true, nil
}

// Clear removes the record. Clearing an absent record is not an error.
func (s *FSStore) Clear(ctx context.Context, step string, kind Kind) error {
	s.logger.Debug("clear", "step", step, "kind", kind)

	err := os.Remove(s.path(step, kind))
	if err != nil && !os.IsNotExist(err) {
		return &StoreError{Op: "clear", Step: step, Kind: kind, Err: err}
	}
	return nil
}

func (s *FSStore) List(ctx context.Context) ([]Record, error) {
	var records []Record
	for _, kind := range []Kind{KindModel, KindOutput} {
		entries, err := os.ReadDir(filepath.Join(s.dir, string(kind)+"s"))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, &StoreError{Op: "list", Kind: kind, Err: err}
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				return nil, &StoreError{Op: "list", Step: e.Name(), Kind: kind, Err: err}
			}
			records = append(records, Record{
				Step:    e.Name(),
				Kind:    kind,
				Size:    info.Size(),
				ModTime: info.ModTime(),
			})
		}
	}
	return records, nil
}
