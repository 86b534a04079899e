package entity

import "time"

// StoredFile describes an image file held in the upload directory.
type StoredFile struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}
