// Package blob is the gateway to binary file storage.
package blob

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// ErrInvalidID is returned for ids that cannot name a stored object.
var ErrInvalidID = errors.New("blob: invalid id")

// Storage copies and removes stored blobs.
type Storage interface {
	// WriteToFileSystem copies every blob of ids into destPath, naming each
	// file alias[id] or id when no alias is given. The returned error joins
	// the failure of every id that could not be written.
	WriteToFileSystem(ctx context.Context, ids []string, destPath string, alias map[string]string) error
	// RemoveFile deletes one blob. A missing blob is not an error.
	RemoveFile(ctx context.Context, id string) error
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

// targetName is the base file name written for id. Aliases that do not
// name a file inside the destination fall back to the id.
func targetName(id string, alias map[string]string) string {
	name := filepath.Base(alias[id])
	switch name {
	case ".", "..", string(filepath.Separator):
		return id
	}
	return name
}
