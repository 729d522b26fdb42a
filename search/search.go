// Package search trawls a local directory tree for candidate input
// images.
package search

import (
	"os"
	"path/filepath"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".heic": true, ".heif": true,
}

// FindImages recursively searches uri for image files by extension.
func FindImages(uri string) ([]string, error) {
	var items []string
	err := filepath.WalkDir(uri, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if imageExtensions[filepath.Ext(path)] {
			items = append(items, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}
