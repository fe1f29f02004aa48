package checksumstore

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/wtsi-hgi/thrifty-builder-go/pkg/thrifterr"
)

// File is a JSON-file-backed Store. Each Set reads, mutates, and
// rewrites the whole file; concurrent access across processes is not
// safe, a limitation the type deliberately does not try to hide.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a File store persisting to path. The file need not
// exist yet; it is created on first Set.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Get(id string) (string, bool, error) {
	all, err := f.GetAll()
	if err != nil {
		return "", false, err
	}
	v, ok := all[id]
	return v, ok, nil
}

func (f *File) GetAll() (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readLocked()
}

func (f *File) readLocked() (map[string]string, error) {
	content, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, thrifterr.UnreadableChecksumStorage(err)
	}
	if len(content) == 0 {
		return map[string]string{}, nil
	}
	var data map[string]string
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, thrifterr.UnreadableChecksumStorage(err)
	}
	return data, nil
}

func (f *File) writeLocked(data map[string]string) error {
	content, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, content, 0o644)
}

func (f *File) Set(id, fingerprint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.readLocked()
	if err != nil {
		return err
	}
	data[id] = fingerprint
	return f.writeLocked(data)
}

func (f *File) SetAll(mapping map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.readLocked()
	if err != nil {
		return err
	}
	for k, v := range mapping {
		data[k] = v
	}
	return f.writeLocked(data)
}
