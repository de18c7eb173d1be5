package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Filesystem stores each blob as a file under root with a `.meta` JSON
// sidecar holding its content type.
type Filesystem struct {
	root string
}

// NewFilesystem creates root if needed.
func NewFilesystem(root string) (*Filesystem, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blob: creating root %s: %w", root, err)
	}
	return &Filesystem{root: root}, nil
}

func (f *Filesystem) Driver() Driver { return DriverFilesystem }

type metaFile struct {
	ContentType string `json:"content_type,omitempty"`
}

func (f *Filesystem) paths(key string) (data, meta string, err error) {
	if err := checkKey(key); err != nil {
		return "", "", err
	}
	data = filepath.Join(f.root, filepath.FromSlash(key))
	return data, data + ".meta", nil
}

// Put writes to a temp file and renames it into place so readers never
// see a partial blob.
func (f *Filesystem) Put(_ context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	dataPath, metaPath, err := f.paths(key)
	if err != nil {
		return Info{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return Info{}, fmt.Errorf("blob: creating dir for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".upload-*")
	if err != nil {
		return Info{}, fmt.Errorf("blob: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return Info{}, fmt.Errorf("blob: writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return Info{}, fmt.Errorf("blob: closing %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return Info{}, fmt.Errorf("blob: moving %s into place: %w", key, err)
	}

	meta, _ := json.Marshal(metaFile{ContentType: opts.ContentType})
	if err := os.WriteFile(metaPath, meta, 0o644); err != nil {
		return Info{}, fmt.Errorf("blob: writing meta for %s: %w", key, err)
	}

	return f.info(key, dataPath, metaPath)
}

func (f *Filesystem) Get(_ context.Context, key string) (Info, io.ReadCloser, error) {
	dataPath, metaPath, err := f.paths(key)
	if err != nil {
		return Info{}, nil, err
	}
	info, err := f.info(key, dataPath, metaPath)
	if err != nil {
		return Info{}, nil, err
	}
	file, err := os.Open(dataPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, nil, ErrNotFound
		}
		return Info{}, nil, fmt.Errorf("blob: opening %s: %w", key, err)
	}
	return info, file, nil
}

func (f *Filesystem) Delete(_ context.Context, key string) (bool, error) {
	dataPath, metaPath, err := f.paths(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(dataPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("blob: deleting %s: %w", key, err)
	}
	_ = os.Remove(metaPath)
	return true, nil
}

func (f *Filesystem) info(key, dataPath, metaPath string) (Info, error) {
	st, err := os.Stat(dataPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, ErrNotFound
		}
		return Info{}, fmt.Errorf("blob: stat %s: %w", key, err)
	}

	info := Info{Key: key, Size: st.Size(), LastModified: st.ModTime().UTC()}
	if b, err := os.ReadFile(metaPath); err == nil {
		var m metaFile
		if json.Unmarshal(b, &m) == nil {
			info.ContentType = m.ContentType
		}
	}
	return info, nil
}
