package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/dmitrijs2005/fileshare/internal/common"
	"github.com/dmitrijs2005/fileshare/internal/logging"
	"github.com/dmitrijs2005/fileshare/internal/server/blobstore"
	"github.com/dmitrijs2005/fileshare/internal/server/models"
	"github.com/dmitrijs2005/fileshare/internal/server/repositories/repomanager"
)

const defaultContentType = "application/octet-stream"

// FileService stores uploads and serves them back. Every read goes through
// the AccessEvaluator; a denied read looks exactly like a missing file.
type FileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       blobstore.Store
	access      *AccessEvaluator
	shares      *ShareManager
	logger      logging.Logger
	now         func() time.Time
}

func NewFileService(db *sql.DB, m repomanager.RepositoryManager, blobs blobstore.Store,
	access *AccessEvaluator, shares *ShareManager, logger logging.Logger) *FileService {
	return &FileService{
		db:          db,
		repomanager: m,
		blobs:       blobs,
		access:      access,
		shares:      shares,
		logger:      logger.With("module", "files"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// cleanName keeps only the last path element of a client supplied name.
func cleanName(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	base := path.Base(name)
	if name == "" || base == "." || base == "/" || base == ".." {
		return "", fmt.Errorf("file name is required: %w", common.ErrValidation)
	}
	if len(base) > 255 {
		return "", fmt.Errorf("file name too long: %w", common.ErrValidation)
	}
	return base, nil
}

// Upload stores body as a new private file of ownerID. The blob is written
// first; if the row cannot be inserted the blob is removed again.
func (s *FileService) Upload(ctx context.Context, ownerID int64, originalName, contentType string, body io.Reader) (*models.File, error) {
	name, err := cleanName(originalName)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = defaultContentType
	}

	now := s.now()
	key := blobstore.NewKey(now)

	size, err := s.blobs.Save(ctx, key, body, contentType)
	if err != nil {
		return nil, fmt.Errorf("save blob: %w", err)
	}

	file, err := s.repomanager.Files(s.db).Insert(ctx, &models.File{
		OwnerID:      ownerID,
		StoredName:   key,
		OriginalName: name,
		Size:         size,
		ContentType:  contentType,
		UploadedAt:   now,
	})
	if err != nil {
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), key); derr != nil {
			s.logger.Warn(ctx, "orphan blob left behind", "key", key, "error", derr)
		}
		return nil, fmt.Errorf("insert file: %w", err)
	}

	uploadedBytesTotal.Add(float64(size))
	s.logger.Info(ctx, "file uploaded", "file_id", file.ID, "owner_id", ownerID, "size", size)
	return file, nil
}

// authorize returns the file when requester may read it.
func (s *FileService) authorize(ctx context.Context, fileID int64, requester models.Requester, grant models.AccessContext) (*models.File, error) {
	file, ac, err := s.access.EvaluateAccess(ctx, fileID, requester, grant)
	if err != nil {
		return nil, err
	}
	if !ac.Granted() {
		return nil, common.ErrorNotFound
	}
	return file, nil
}

func (s *FileService) open(ctx context.Context, file *models.File) (*models.File, io.ReadCloser, error) {
	rc, err := s.blobs.Open(ctx, file.StoredName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Error(ctx, "blob missing for file", "file_id", file.ID, "key", file.StoredName)
		}
		return nil, nil, fmt.Errorf("open blob: %w", err)
	}
	return file, rc, nil
}

// Download returns the file and its content. The caller closes the reader.
func (s *FileService) Download(ctx context.Context, fileID int64, requester models.Requester) (*models.File, io.ReadCloser, error) {
	file, err := s.authorize(ctx, fileID, requester, models.AccessContext{})
	if err != nil {
		return nil, nil, err
	}
	return s.open(ctx, file)
}

// DownloadShared resolves token and then reads the file through the same
// path as Download, with the token grant as context.
func (s *FileService) DownloadShared(ctx context.Context, token string, requester models.Requester) (*models.File, io.ReadCloser, error) {
	fileID, grant, err := s.shares.Resolve(ctx, token, requester)
	if err != nil {
		return nil, nil, err
	}
	file, err := s.authorize(ctx, fileID, requester, grant)
	if err != nil {
		return nil, nil, err
	}
	return s.open(ctx, file)
}

// Info returns file metadata when requester may read the file.
func (s *FileService) Info(ctx context.Context, fileID int64, requester models.Requester) (*models.File, error) {
	return s.authorize(ctx, fileID, requester, models.AccessContext{})
}

func (s *FileService) ListOwn(ctx context.Context, ownerID int64) ([]*models.File, error) {
	files, err := s.repomanager.Files(s.db).ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

func (s *FileService) ListSharedWithMe(ctx context.Context, userID int64) ([]*models.SharedFile, error) {
	files, err := s.repomanager.Shares(s.db).ListSharedWith(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("list shared files: %w", err)
	}
	return files, nil
}

// SetPublic toggles the public flag. Files not owned by ownerID are
// reported as common.ErrorNotFound.
func (s *FileService) SetPublic(ctx context.Context, fileID, ownerID int64, public bool) error {
	if err := s.repomanager.Files(s.db).SetPublic(ctx, fileID, ownerID, public); err != nil {
		return err
	}
	s.logger.Info(ctx, "file visibility changed", "file_id", fileID, "public", public)
	return nil
}

// Delete removes the row, its shares and the blob.
func (s *FileService) Delete(ctx context.Context, fileID, ownerID int64) error {
	file, err := s.repomanager.Files(s.db).Delete(ctx, fileID, ownerID)
	if err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, file.StoredName); err != nil {
		s.logger.Warn(ctx, "blob not removed", "file_id", fileID, "key", file.StoredName, "error", err)
	}
	s.logger.Info(ctx, "file deleted", "file_id", fileID)
	return nil
}
