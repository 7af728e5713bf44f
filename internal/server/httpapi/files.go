package httpapi

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/fileshare/internal/common"
	"github.com/dmitrijs2005/fileshare/internal/server/models"
	"github.com/go-chi/chi/v5"
)

type fileJSON struct {
	FileID      int64     `json:"file_id"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	UploadDate  time.Time `json:"upload_date"`
	IsPublic    bool      `json:"is_public"`
	OwnerID     int64     `json:"owner_id"`
}

func toFileJSON(f *models.File) fileJSON {
	return fileJSON{
		FileID:      f.ID,
		Filename:    f.OriginalName,
		Size:        f.Size,
		ContentType: f.ContentType,
		UploadDate:  f.UploadedAt,
		IsPublic:    f.IsPublic,
		OwnerID:     f.OwnerID,
	}
}

type sharedFileJSON struct {
	fileJSON
	ShareToken string     `json:"share_token"`
	SharedBy   string     `json:"shared_by"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

func fileID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid file id: %w", common.ErrValidation)
	}
	return id, nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) error {
	name := r.Header.Get("X-Filename")
	if name == "" {
		return fmt.Errorf("X-Filename header is required: %w", common.ErrValidation)
	}
	if s.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	}

	f, err := s.files.Upload(r.Context(), currentUserID(r), name, r.Header.Get("Content-Type"), r.Body)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, envelope{"file_id": f.ID, "message": "File uploaded successfully"})
	return nil
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) error {
	id, err := fileID(r)
	if err != nil {
		return err
	}
	f, rc, err := s.files.Download(r.Context(), id, requesterFrom(r.Context()))
	if err != nil {
		return err
	}
	s.stream(w, r, f, rc)
	return nil
}

func (s *Server) handleDownloadShared(w http.ResponseWriter, r *http.Request) error {
	f, rc, err := s.files.DownloadShared(r.Context(), chi.URLParam(r, "token"), requesterFrom(r.Context()))
	if err != nil {
		return err
	}
	s.stream(w, r, f, rc)
	return nil
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, f *models.File, rc io.ReadCloser) {
	defer rc.Close()
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.OriginalName}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn(r.Context(), "download interrupted", "file_id", f.ID, "error", err)
	}
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) error {
	id, err := fileID(r)
	if err != nil {
		return err
	}
	f, err := s.files.Info(r.Context(), id, requesterFrom(r.Context()))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, envelope{"file": toFileJSON(f)})
	return nil
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) error {
	files, err := s.files.ListOwn(r.Context(), currentUserID(r))
	if err != nil {
		return err
	}
	out := make([]fileJSON, 0, len(files))
	for _, f := range files {
		out = append(out, toFileJSON(f))
	}
	writeJSON(w, http.StatusOK, envelope{"files": out})
	return nil
}

func (s *Server) handleSharedWithMe(w http.ResponseWriter, r *http.Request) error {
	files, err := s.files.ListSharedWithMe(r.Context(), currentUserID(r))
	if err != nil {
		return err
	}
	out := make([]sharedFileJSON, 0, len(files))
	for _, f := range files {
		out = append(out, sharedFileJSON{
			fileJSON:   toFileJSON(&f.File),
			ShareToken: f.ShareToken,
			SharedBy:   f.SharedByName,
			ExpiresAt:  f.ShareExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, envelope{"shared_files": out})
	return nil
}

func (s *Server) handleSetPublic(w http.ResponseWriter, r *http.Request) error {
	id, err := fileID(r)
	if err != nil {
		return err
	}
	var req struct {
		IsPublic *bool `json:"is_public"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.IsPublic == nil {
		return fmt.Errorf("is_public is required: %w", common.ErrValidation)
	}
	if err := s.files.SetPublic(r.Context(), id, currentUserID(r), *req.IsPublic); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, envelope{"file_id": id, "is_public": *req.IsPublic})
	return nil
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) error {
	id, err := fileID(r)
	if err != nil {
		return err
	}
	if err := s.files.Delete(r.Context(), id, currentUserID(r)); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, envelope{"message": "File deleted"})
	return nil
}
