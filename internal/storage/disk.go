package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// sidecarSuffixes are the files SQLite may keep next to a corpus database.
var sidecarSuffixes = []string{"", "-journal", "-wal", "-shm"}

// CorpusDiskUsage returns the bytes used by the corpus file at path and its SQLite sidecar
// files. Absent files count as zero; an empty path is zero.
func CorpusDiskUsage(path string) (int64, error) {
	if path == "" {
		return 0, nil
	}
	var total int64
	for _, suffix := range sidecarSuffixes {
		info, err := os.Stat(path + suffix)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

// CodebaseDiskUsage returns the total size of the regular files under dir, such as a fetched
// global codebase. A missing dir is zero.
func CodebaseDiskUsage(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	return total, err
}
