package model

// MediaPurge is the queue payload asking the purge worker to remove the
// blob files left behind by a cascade delete. The database rows are already
// gone by the time this is published.
type MediaPurge struct {
	UserID    uint     `json:"user_id"`
	Username  string   `json:"username"`
	BlobPaths []string `json:"blob_paths"`
}
