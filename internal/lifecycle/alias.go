package lifecycle

import (
	"strconv"
	"strings"
)

// AliasEntry is one exported blob and its display name.
type AliasEntry struct {
	BlobID string
	Name   string
}

// BuildAliases maps every blob id to a file name unique within the export.
// Slashes in names become dashes. The first holder of a name keeps it; later
// ones are prefixed with their blob id. Entries without a usable name ("",
// "." or "..") use the blob id.
func BuildAliases(entries []AliasEntry) map[string]string {
	alias := make(map[string]string, len(entries))
	used := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.BlobID == "" {
			continue
		}
		if _, ok := alias[e.BlobID]; ok {
			continue
		}
		name := strings.ReplaceAll(e.Name, "/", "-")
		switch name {
		case "", ".", "..":
			name = e.BlobID
		}
		candidate := name
		if used[candidate] {
			candidate = e.BlobID + "_" + name
		}
		for i := 1; used[candidate]; i++ {
			candidate = e.BlobID + "_" + strconv.Itoa(i) + "_" + name
		}
		used[candidate] = true
		alias[e.BlobID] = candidate
	}
	return alias
}
