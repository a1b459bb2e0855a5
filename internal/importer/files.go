package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var audioExtensions = map[string]bool{
	".m4b":  true,
	".m4a":  true,
	".mp3":  true,
	".aac":  true,
	".ogg":  true,
	".opus": true,
	".flac": true,
	".aax":  true,
	".wma":  true,
}

// IsAudioFile reports whether the path has a known audiobook extension.
func IsAudioFile(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// FindLargestAudio finds the largest audio file in a directory tree.
// Sample files are skipped. Returns ErrNoAudioFile when the tree holds
// nothing usable.
func FindLargestAudio(dir string) (string, int64, error) {
	var largestPath string
	var largestSize int64

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if info.IsDir() || !IsAudioFile(path) {
			return nil
		}
		if strings.Contains(strings.ToLower(info.Name()), "sample") {
			return nil
		}
		if info.Size() > largestSize {
			largestSize = info.Size()
			largestPath = path
		}
		return nil
	})
	if err != nil {
		return "", 0, fmt.Errorf("walk directory: %w", err)
	}

	if largestPath == "" {
		return "", 0, ErrNoAudioFile
	}
	return largestPath, largestSize, nil
}
