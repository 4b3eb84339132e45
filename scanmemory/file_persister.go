package scanmemory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

const filePerms = 0o600

type fileContent struct {
	Key         string   `json:"key"`
	PurchaseIDs []string `json:"purchase_ids"`
}

// FilePersister keeps the set in a JSON file named after the key. Every save
// replaces the file atomically, so a crash leaves either the old or the new
// set on disk.
type FilePersister struct {
	key  string
	path string
}

func NewFilePersister(dir, key string) FilePersister {
	if key == "" {
		key = DefaultKey
	}

	return FilePersister{
		key:  key,
		path: filepath.Join(dir, key+".json"),
	}
}

func (p FilePersister) Path() string {
	return p.path
}

func (p FilePersister) Load(ctx context.Context) ([]string, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var content fileContent
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("could not decode %s: %w", p.path, err)
	}
	if content.Key != p.key {
		return nil, fmt.Errorf("%s holds key %q, expected %q", p.path, content.Key, p.key)
	}

	return content.PurchaseIDs, nil
}

func (p FilePersister) Save(ctx context.Context, added string, all []string) error {
	data, err := json.Marshal(fileContent{Key: p.key, PurchaseIDs: all})
	if err != nil {
		return err
	}

	if err := atomic.WriteFile(p.path, bytes.NewReader(data)); err != nil {
		return err
	}

	return os.Chmod(p.path, filePerms)
}

func (p FilePersister) Clear(ctx context.Context) error {
	err := os.Remove(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
