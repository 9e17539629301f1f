package download

import (
	"archive/zip"
	"fmt"
	"sort"
)

type ArchiveEntry struct {
	Name string `json:"name"`
	Size uint64 `json:"size"`
}

// ArchiveEntries lists the files inside a downloaded job archive.
func ArchiveEntries(path string) ([]ArchiveEntry, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer zr.Close()

	entries := make([]ArchiveEntry, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		entries = append(entries, ArchiveEntry{Name: f.Name, Size: f.UncompressedSize64})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
