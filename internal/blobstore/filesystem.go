package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/stratumhq/stratum/internal/record/domain"
)

const metadataSuffix = ".meta.json"

// FilesystemStore keeps blobs under root/{container}/{path}. Writes go
// through a temp file, fsync and rename so a crashed write never leaves a
// partial object under the final name. Metadata is a JSON sidecar.
type FilesystemStore struct {
	root string
}

func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if root == "" {
		return nil, errors.New("filesystem blob root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create blob root: %v", domain.ErrStoreUnavailable, err)
	}
	return &FilesystemStore{root: root}, nil
}

func (s *FilesystemStore) objectPath(container, path string) string {
	return filepath.Join(s.root, container, filepath.FromSlash(path))
}

func (s *FilesystemStore) Put(ctx context.Context, container, path string, data []byte, metadata map[string]string) (int64, error) {
	target := s.objectPath(container, path)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("%w: mkdir for %s: %v", domain.ErrStoreUnavailable, path, err)
	}

	if err := writeAtomic(target, data); err != nil {
		return 0, fmt.Errorf("%w: write %s: %v", domain.ErrStoreUnavailable, path, err)
	}

	if len(metadata) > 0 {
		encoded, err := json.Marshal(metadata)
		if err != nil {
			return 0, fmt.Errorf("%w: encode metadata for %s: %v", domain.ErrMalformedPayload, path, err)
		}
		if err := writeAtomic(target+metadataSuffix, encoded); err != nil {
			return 0, fmt.Errorf("%w: write metadata for %s: %v", domain.ErrStoreUnavailable, path, err)
		}
	}
	return int64(len(data)), nil
}

func (s *FilesystemStore) Get(ctx context.Context, container, path string) ([]byte, error) {
	data, err := os.ReadFile(s.objectPath(container, path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrStoreUnavailable, path, err)
	}
	return data, nil
}

func (s *FilesystemStore) Delete(ctx context.Context, container, path string) error {
	target := s.objectPath(container, path)
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: delete %s: %v", domain.ErrStoreUnavailable, path, err)
	}
	if err := os.Remove(target + metadataSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: delete metadata %s: %v", domain.ErrStoreUnavailable, path, err)
	}
	return nil
}

func writeAtomic(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, target)
}
