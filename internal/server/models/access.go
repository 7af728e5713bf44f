package models

import "strconv"

// Requester identifies who is asking for a file. The zero value is the
// anonymous requester; user ids are never used as sentinels.
type Requester struct {
	id    int64
	authn bool
}

// Anonymous returns the unauthenticated requester.
func Anonymous() Requester { return Requester{} }

// AuthenticatedUser returns a requester for the given user id.
func AuthenticatedUser(id int64) Requester { return Requester{id: id, authn: true} }

// UserID returns the user id and true for authenticated requesters.
func (r Requester) UserID() (int64, bool) { return r.id, r.authn }

func (r Requester) IsAnonymous() bool { return !r.authn }

// Is reports whether the requester is the authenticated user id.
func (r Requester) Is(id int64) bool { return r.authn && r.id == id }

func (r Requester) String() string {
	if !r.authn {
		return "anonymous"
	}
	return "user:" + strconv.FormatInt(r.id, 10)
}

// AccessReason tells why an access decision was made.
type AccessReason int

const (
	AccessDenied AccessReason = iota
	AccessOwner
	AccessPublic
	AccessValidToken
	AccessRecipientShare
)

func (r AccessReason) String() string {
	switch r {
	case AccessOwner:
		return "owner"
	case AccessPublic:
		return "public"
	case AccessValidToken:
		return "valid_token"
	case AccessRecipientShare:
		return "recipient_share"
	default:
		return "denied"
	}
}

// AccessContext is the outcome of an access check. A context with
// AccessValidToken is only built by share resolution and names the file the
// token was issued for.
type AccessContext struct {
	Reason AccessReason
	FileID int64
}

// Granted reports whether the context allows access.
func (c AccessContext) Granted() bool { return c.Reason != AccessDenied }

// Denied is the context of a refused access.
func Denied() AccessContext { return AccessContext{Reason: AccessDenied} }

// TokenGrant is the context produced by resolving a share token for fileID.
func TokenGrant(fileID int64) AccessContext {
	return AccessContext{Reason: AccessValidToken, FileID: fileID}
}
