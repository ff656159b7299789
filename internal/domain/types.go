package domain

import "time"

// Record links a saved tongue photo to the analysis text produced for it.
// Several records may share a StorageKey because uploads with the same
// filename overwrite the same file.
type Record struct {
	ID               string
	OriginalFilename string
	StorageKey       string
	MimeType         string
	Backend          string
	Analysis         string
	CreatedAt        time.Time
}
