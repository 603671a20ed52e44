package models

import "time"

// UploadedFile describes an inbound file before it is staged.
type UploadedFile struct {
	OriginalName string `json:"originalName"`
	Extension    string `json:"extension"` // lower-cased, no leading dot
	Size         int64  `json:"size"`
}

// StagedFile represents a file written to the queue or processed directory.
type StagedFile struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"originalName"`
	StoredName   string    `json:"storedName"`
	Path         string    `json:"-"`
	Size         int64     `json:"size"`
	StagedAt     time.Time `json:"stagedAt"`
	Status       string    `json:"status"` // "queued", "processed"
}
