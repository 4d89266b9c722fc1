package engine

import (
	"io/fs"
	"os"
)

// FileSystem is the set of writes the engine performs. It exists so tests
// can inject failures; OSFileSystem is used otherwise.
type FileSystem interface {
	Lstat(path string) (fs.FileInfo, error)
	Mkdir(path string, perm fs.FileMode) error
	// CreateFile writes a new file and fails if path already exists.
	CreateFile(path string, data []byte, perm fs.FileMode) error
	Remove(path string) error
}

// OSFileSystem writes to the real filesystem.
type OSFileSystem struct{}

var _ FileSystem = OSFileSystem{}

func (OSFileSystem) Lstat(path string) (fs.FileInfo, error) {
	return os.Lstat(path)
}

func (OSFileSystem) Mkdir(path string, perm fs.FileMode) error {
	return os.Mkdir(path, perm)
}

func (OSFileSystem) CreateFile(path string, data []byte, perm fs.FileMode) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	// The umask may have stripped bits; make the mode explicit.
	return os.Chmod(path, perm)
}

func (OSFileSystem) Remove(path string) error {
	return os.Remove(path)
}
