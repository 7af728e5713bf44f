// Package models defines server-side data models persisted in the database.
package models

import "time"

// File is the metadata of one uploaded object. The bytes live in the blob
// store under StoredName.
type File struct {
	ID int64
	// OwnerID never changes after insert.
	OwnerID      int64
	StoredName   string
	OriginalName string
	Size         int64
	ContentType  string
	UploadedAt   time.Time
	IsPublic     bool
}

// SharedFile is a file reached through an active share addressed to the
// listing user.
type SharedFile struct {
	File
	ShareToken     string
	SharedBy       int64
	SharedByName   string
	ShareExpiresAt *time.Time
	ShareCreatedAt time.Time
}
