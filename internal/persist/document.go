// Package persist reads and durably replaces the files fdtune edits.
package persist

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Document is a file as read from disk. A missing file is a Document with
// Exists set to false.
type Document struct {
	Path    string
	Content string
	Exists  bool
	Mode    os.FileMode
}

// Read loads path. Only a missing file is tolerated.
func Read(path string) (Document, error) {
	doc := Document{Path: path}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return doc, fmt.Errorf("%s is not a regular file", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	doc.Content = string(data)
	doc.Exists = true
	doc.Mode = info.Mode().Perm()
	return doc, nil
}
