package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Local stores blobs as files of a root directory.
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Local{root: root}, nil
}

// Put stores data under id.
func (l *Local) Put(id string, data []byte) error {
	if !validID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return os.WriteFile(filepath.Join(l.root, id), data, 0o644)
}

func (l *Local) Exists(id string) bool {
	if !validID(id) {
		return false
	}
	_, err := os.Stat(filepath.Join(l.root, id))
	return err == nil
}

func (l *Local) WriteToFileSystem(ctx context.Context, ids []string, destPath string, alias map[string]string) error {
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if !validID(id) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidID, id))
			continue
		}
		dest := filepath.Join(destPath, targetName(id, alias))
		if err := copyFile(filepath.Join(l.root, id), dest); err != nil {
			errs = append(errs, fmt.Errorf("copy %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (l *Local) RemoveFile(ctx context.Context, id string) error {
	if !validID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	err := os.Remove(filepath.Join(l.root, id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
