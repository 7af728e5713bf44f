package services

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/fileshare/internal/common"
	"github.com/dmitrijs2005/fileshare/internal/dbx"
	"github.com/dmitrijs2005/fileshare/internal/logging"
	"github.com/dmitrijs2005/fileshare/internal/server/config"
	"github.com/dmitrijs2005/fileshare/internal/server/models"
	"github.com/dmitrijs2005/fileshare/internal/server/repositories/files"
	"github.com/dmitrijs2005/fileshare/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/fileshare/internal/server/repositories/shares"
	"github.com/dmitrijs2005/fileshare/internal/server/repositories/users"
)

// --- helpers ---

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func testConfig() *config.Config {
	return &config.Config{
		SecretKey:                    "k",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 2 * time.Hour,
		DefaultShareTTL:              24 * time.Hour,
		MaxShareTTL:                  30 * 24 * time.Hour,
	}
}

// memStore is an in-memory relational store with the same expiry and
// recipient semantics as the SQL repositories.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	users   map[int64]*models.User
	files   map[int64]*models.File
	shares  []*models.Share
	refresh map[string]*models.RefreshToken

	fileGetErr      error
	fileInsertErr   error
	userGetErr      error
	shareFindErr    error
	shareByTokenErr error
	shareHasErr     error
	shareListErr    error
	refreshFindErr  error
	refreshDelErr   error
	refreshNewErr   error

	// insertHook runs before a share is stored; a non-nil error aborts it.
	insertHook func(*models.Share) error
	// refreshFoundHook runs with the lock held after Find returns a token.
	refreshFoundHook func(token string)
}

func newMemStore() *memStore {
	return &memStore{
		users:   map[int64]*models.User{},
		files:   map[int64]*models.File{},
		refresh: map[string]*models.RefreshToken{},
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) addUser(id int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = &models.User{ID: id, UserName: name}
}

func (s *memStore) addFile(f models.File) *models.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := f
	s.files[f.ID] = &cp
	return &cp
}

func (s *memStore) addShare(sh models.Share) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := sh
	if cp.ID == 0 {
		cp.ID = s.id()
	}
	s.shares = append(s.shares, &cp)
}

func (s *memStore) sharesFor(fileID int64, recipient *int64) []*models.Share {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Share
	for _, sh := range s.shares {
		if sh.FileID == fileID && sameRecipient(sh.RecipientID, recipient) {
			out = append(out, sh)
		}
	}
	return out
}

func sameRecipient(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

type memUsers struct{ s *memStore }

func (r memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.UserName == u.UserName {
			return nil, common.ErrAlreadyExists
		}
	}
	cp := *u
	cp.ID = r.s.id()
	cp.CreatedAt = time.Now()
	r.s.users[cp.ID] = &cp
	return &cp, nil
}

func (r memUsers) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.userGetErr != nil {
		return nil, r.s.userGetErr
	}
	for _, u := range r.s.users {
		if u.UserName == login {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memUsers) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.userGetErr != nil {
		return nil, r.s.userGetErr
	}
	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

type memFiles struct{ s *memStore }

func (r memFiles) Insert(_ context.Context, f *models.File) (*models.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.fileInsertErr != nil {
		return nil, r.s.fileInsertErr
	}
	f.ID = r.s.id()
	cp := *f
	r.s.files[f.ID] = &cp
	return f, nil
}

func (r memFiles) Get(_ context.Context, id int64) (*models.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.fileGetErr != nil {
		return nil, r.s.fileGetErr
	}
	f, ok := r.s.files[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *f
	return &cp, nil
}

func (r memFiles) ListByOwner(_ context.Context, ownerID int64) ([]*models.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.File
	for _, f := range r.s.files {
		if f.OwnerID == ownerID {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r memFiles) SetPublic(_ context.Context, id, ownerID int64, public bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.files[id]
	if !ok || f.OwnerID != ownerID {
		return common.ErrorNotFound
	}
	f.IsPublic = public
	return nil
}

func (r memFiles) Delete(_ context.Context, id, ownerID int64) (*models.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.files[id]
	if !ok || f.OwnerID != ownerID {
		return nil, common.ErrorNotFound
	}
	delete(r.s.files, id)
	kept := r.s.shares[:0]
	for _, sh := range r.s.shares {
		if sh.FileID != id {
			kept = append(kept, sh)
		}
	}
	r.s.shares = kept
	return f, nil
}

type memShares struct{ s *memStore }

func (r memShares) FindActive(_ context.Context, fileID int64, recipientID *int64, now time.Time) (*models.Share, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.shareFindErr != nil {
		return nil, r.s.shareFindErr
	}
	for i := len(r.s.shares) - 1; i >= 0; i-- {
		sh := r.s.shares[i]
		if sh.FileID == fileID && sameRecipient(sh.RecipientID, recipientID) && sh.ActiveAt(now) {
			cp := *sh
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memShares) Insert(_ context.Context, sh *models.Share) (*models.Share, error) {
	if r.s.insertHook != nil {
		if err := r.s.insertHook(sh); err != nil {
			return nil, err
		}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.shares {
		if existing.Token == sh.Token {
			return nil, errBoom{}
		}
	}
	sh.ID = r.s.id()
	cp := *sh
	r.s.shares = append(r.s.shares, &cp)
	return sh, nil
}

func (r memShares) FindActiveByToken(_ context.Context, token string, now time.Time) (*models.Share, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.shareByTokenErr != nil {
		return nil, r.s.shareByTokenErr
	}
	for _, sh := range r.s.shares {
		if sh.Token == token && sh.ActiveAt(now) {
			cp := *sh
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memShares) HasActiveForRecipient(_ context.Context, fileID, userID int64, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.shareHasErr != nil {
		return false, r.s.shareHasErr
	}
	for _, sh := range r.s.shares {
		if sh.FileID == fileID && sh.RecipientID != nil && *sh.RecipientID == userID && sh.ActiveAt(now) {
			return true, nil
		}
	}
	return false, nil
}

func (r memShares) ListSharedWith(_ context.Context, userID int64, now time.Time) ([]*models.SharedFile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.shareListErr != nil {
		return nil, r.s.shareListErr
	}
	var out []*models.SharedFile
	for _, sh := range r.s.shares {
		if sh.RecipientID == nil || *sh.RecipientID != userID || !sh.ActiveAt(now) {
			continue
		}
		f, ok := r.s.files[sh.FileID]
		if !ok {
			continue
		}
		item := &models.SharedFile{File: *f, ShareToken: sh.Token, SharedBy: sh.GranterID, ShareExpiresAt: sh.ExpiresAt, ShareCreatedAt: sh.CreatedAt}
		if u, ok := r.s.users[sh.GranterID]; ok {
			item.SharedByName = u.UserName
		}
		out = append(out, item)
	}
	return out, nil
}

type memRefresh struct{ s *memStore }

func (r memRefresh) Create(_ context.Context, userID int64, token string, expiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.refreshNewErr != nil {
		return r.s.refreshNewErr
	}
	r.s.refresh[token] = &models.RefreshToken{UserID: userID, Token: token, Expires: expiresAt}
	return nil
}

func (r memRefresh) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.refreshFindErr != nil {
		return nil, r.s.refreshFindErr
	}
	rt, ok := r.s.refresh[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *rt
	if r.s.refreshFoundHook != nil {
		r.s.refreshFoundHook(token)
	}
	return &cp, nil
}

func (r memRefresh) Delete(_ context.Context, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.refreshDelErr != nil {
		return r.s.refreshDelErr
	}
	if _, ok := r.s.refresh[token]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.refresh, token)
	return nil
}

func (r memRefresh) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for k, rt := range r.s.refresh {
		if !rt.Expires.After(now) {
			delete(r.s.refresh, k)
			n++
		}
	}
	return n, nil
}

// fakeRepoManager hands out memStore repositories regardless of the handle.
type fakeRepoManager struct{ s *memStore }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository                 { return memUsers{m.s} }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return memRefresh{m.s} }
func (m *fakeRepoManager) Files(dbx.DBTX) files.Repository                 { return memFiles{m.s} }
func (m *fakeRepoManager) Shares(dbx.DBTX) shares.Repository               { return memShares{m.s} }

// memBlobs is an in-memory blobstore.Store.
type memBlobs struct {
	mu      sync.Mutex
	data    map[string][]byte
	saveErr error
	openErr error
	delErr  error
	deleted []string
}

func newMemBlobs() *memBlobs { return &memBlobs{data: map[string][]byte{}} }

func (b *memBlobs) Save(_ context.Context, key string, r io.Reader, _ string) (int64, error) {
	if b.saveErr != nil {
		return 0, b.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = data
	return int64(len(data)), nil
}

func (b *memBlobs) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, key)
	if b.delErr != nil {
		return b.delErr
	}
	delete(b.data, key)
	return nil
}

// fixedClock returns a clock func that reads *now, so tests can move time.
func fixedClock(now *time.Time) func() time.Time {
	return func() time.Time { return *now }
}

func nopLogger() logging.Logger { return logging.Nop() }
