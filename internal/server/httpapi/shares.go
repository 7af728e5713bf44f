package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/fileshare/internal/common"
)

// maxExpiryHours keeps the hour count convertible to a time.Duration.
const maxExpiryHours = 1 << 20

// hours accepts both 24 and "24"; older clients send the lifetime as a string.
type hours int64

func (h *hours) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	raw := strings.Trim(string(b), `"`)
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("expiry_hours must be an integer: %w", common.ErrValidation)
	}
	*h = hours(n)
	return nil
}

type shareRequest struct {
	FileID      int64  `json:"file_id"`
	ExpiryHours hours  `json:"expiry_hours"`
	SharedWith  *int64 `json:"shared_with_user_id"`
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) error {
	// An omitted expiry_hours stays zero so the share manager applies the
	// configured default lifetime.
	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return fmt.Errorf("invalid JSON body: %w", common.ErrValidation)
	}
	if req.FileID <= 0 {
		return fmt.Errorf("file_id is required: %w", common.ErrValidation)
	}
	if req.ExpiryHours < 0 || req.ExpiryHours > maxExpiryHours {
		return fmt.Errorf("expiry_hours out of range: %w", common.ErrValidation)
	}

	share, err := s.shares.Create(r.Context(), req.FileID, currentUserID(r), req.SharedWith, time.Duration(req.ExpiryHours)*time.Hour)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, envelope{
		"share_token": share.Token,
		"share_url":   s.shareURL(share.Token),
		"expires_at":  share.ExpiresAt,
	})
	return nil
}

func (s *Server) shareURL(token string) string {
	return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/shared/" + token
}
