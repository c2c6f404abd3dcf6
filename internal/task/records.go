package task

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	fileutil "scorebatch/internal/file"
)

// RecordStore abstracts on-disk persistence of queue records and payload
// spooling. The default implementation is file-based under dataDir.
type RecordStore interface {
	Save(t *Task) error
	Load() ([]*Task, error)
	Delete(id string) error
	// SpoolPayload writes raw submission bytes to disk and returns the path.
	SpoolPayload(id, ext string, data io.Reader) (string, error)
	DiscardPayload(path string)
}

type fileRecordStore struct {
	dataDir string
}

func NewFileRecordStore(dataDir string) RecordStore { //nolint:ireturn
	if dataDir == "" {
		dataDir = "data"
	}
	return &fileRecordStore{dataDir: dataDir}
}

func (s *fileRecordStore) recordPath(id string) string {
	return filepath.Join(s.dataDir, "queue", id+".json")
}

func (s *fileRecordStore) Save(t *Task) error {
	return fileutil.WriteJSONAtomic(s.recordPath(t.ID), t) //nolint:wrapcheck
}

// Load reads all persisted queue records, oldest first.
func (s *fileRecordStore) Load() ([]*Task, error) {
	root := filepath.Join(s.dataDir, "queue")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	tasks := make([]*Task, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		b, err := os.ReadFile(filepath.Join(root, e.Name())) //nolint:gosec // path is controlled by application
		if err != nil {
			continue
		}
		var t Task
		if err := json.Unmarshal(b, &t); err != nil || t.ID == "" {
			continue
		}
		tt := t
		tasks = append(tasks, &tt)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	return tasks, nil
}

func (s *fileRecordStore) Delete(id string) error {
	if err := os.Remove(s.recordPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove record: %w", err)
	}
	// payloads share the record's ID prefix
	matches, _ := filepath.Glob(filepath.Join(s.dataDir, "payloads", id+".*"))
	for _, m := range matches {
		_ = os.Remove(m)
	}
	return nil
}

func (s *fileRecordStore) SpoolPayload(id, ext string, data io.Reader) (string, error) {
	if ext == "" {
		ext = ".bin"
	}
	path := filepath.Join(s.dataDir, "payloads", id+ext)
	if err := fileutil.CopyAtomic(path, data); err != nil {
		return "", fmt.Errorf("spool payload: %w", err)
	}
	return path, nil
}

func (s *fileRecordStore) DiscardPayload(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
