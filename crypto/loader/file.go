package loader

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"
)

// fileLoader stores the key hex-encoded in a file that only the current user
// can read and write.
//
// - implements loader.Loader
type fileLoader struct {
	path string

	readFn  func(path string) ([]byte, error)
	writeFn func(path string, data []byte, perm os.FileMode) error
	statFn  func(path string) (os.FileInfo, error)
}

// NewFileLoader creates a new loader that is using the file given in parameter.
func NewFileLoader(path string) Loader {
	return fileLoader{
		path:    path,
		readFn:  os.ReadFile,
		writeFn: os.WriteFile,
		statFn:  os.Stat,
	}
}

// LoadOrCreate implements loader.Loader. It either loads the key from the file
// if it exists, or it generates a new one and stores it in the file. The
// folder of the file is created if necessary.
func (l fileLoader) LoadOrCreate(g Generator) ([]byte, error) {
	_, err := l.statFn(l.path)
	if !os.IsNotExist(err) {
		data, err := l.Load()
		if err != nil {
			return nil, xerrors.Errorf("failed to load file: %v", err)
		}

		return data, nil
	}

	data, err := g.Generate()
	if err != nil {
		return nil, xerrors.Errorf("generator failed: %v", err)
	}

	err = os.MkdirAll(filepath.Dir(l.path), 0700)
	if err != nil {
		return nil, xerrors.Errorf("while creating folder: %v", err)
	}

	err = l.writeFn(l.path, []byte(hex.EncodeToString(data)), 0600)
	if err != nil {
		return nil, xerrors.Errorf("while writing: %v", err)
	}

	return data, nil
}

// Load implements loader.Loader. It loads the key from the file if it exists,
// otherwise it returns an error.
func (l fileLoader) Load() ([]byte, error) {
	raw, err := l.readFn(l.path)
	if err != nil {
		return nil, xerrors.Errorf("while reading file: %v", err)
	}

	data, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, xerrors.Errorf("malformed key: %v", err)
	}

	return data, nil
}
