package models

import "time"

// Share grants access to a file to whoever presents Token. When RecipientID
// is set only that user may use the token. A nil ExpiresAt never expires.
type Share struct {
	ID          int64
	FileID      int64
	GranterID   int64
	RecipientID *int64
	Token       string
	ExpiresAt   *time.Time
	CreatedAt   time.Time
}

// ActiveAt reports whether the share is still usable at now.
func (s *Share) ActiveAt(now time.Time) bool {
	return s.ExpiresAt == nil || now.Before(*s.ExpiresAt)
}

// AllowsRecipient reports whether requester satisfies the recipient
// restriction. Unrestricted shares allow everyone, anonymous included.
func (s *Share) AllowsRecipient(requester Requester) bool {
	if s.RecipientID == nil {
		return true
	}
	id, ok := requester.UserID()
	return ok && id == *s.RecipientID
}
