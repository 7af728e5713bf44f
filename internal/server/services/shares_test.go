package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/fileshare/internal/common"
	"github.com/dmitrijs2005/fileshare/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestShareManager(t *testing.T, st *memStore, now *time.Time) (*ShareManager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newSQLMockDB(t)
	m := NewShareManager(db, &fakeRepoManager{st}, testConfig(), nopLogger())
	m.now = fixedClock(now)
	n := 0
	m.newToken = func() string {
		n++
		return fmt.Sprintf("tok-%d", n)
	}
	return m, mock
}

func seedOwnerFile(st *memStore) {
	st.addUser(1, "owner")
	st.addUser(5, "five")
	st.addUser(7, "seven")
	st.addFile(models.File{ID: 42, OwnerID: 1, StoredName: "k42", OriginalName: "f.txt"})
}

func TestCreate_NewShare(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	st := newMemStore()
	seedOwnerFile(st)
	m, mock := newTestShareManager(t, st, &now)
	mock.ExpectBegin()
	mock.ExpectCommit()

	s, err := m.Create(context.Background(), 42, 1, ptr(int64(5)), 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", s.Token)
	assert.Equal(t, int64(42), s.FileID)
	assert.Equal(t, int64(1), s.GranterID)
	require.NotNil(t, s.RecipientID)
	assert.Equal(t, int64(5), *s.RecipientID)
	require.NotNil(t, s.ExpiresAt)
	assert.Equal(t, now.Add(2*time.Hour), *s.ExpiresAt)
	assert.Equal(t, now, s.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DefaultTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	st := newMemStore()
	seedOwnerFile(st)
	m, mock := newTestShareManager(t, st, &now)
	mock.ExpectBegin()
	mock.ExpectCommit()

	s, err := m.Create(context.Background(), 42, 1, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, now.Add(24*time.Hour), *s.ExpiresAt)
	assert.Nil(t, s.RecipientID)
}

func TestCreate_TTLAboveMaxRejected(t *testing.T) {
	now := time.Now().UTC()
	st := newMemStore()
	seedOwnerFile(st)
	m, _ := newTestShareManager(t, st, &now)

	_, err := m.Create(context.Background(), 42, 1, nil, 31*24*time.Hour)
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Empty(t, st.sharesFor(42, nil))
}

func TestCreate_DedupIsIdempotent(t *testing.T) {
	now := time.Now().UTC()
	st := newMemStore()
	seedOwnerFile(st)
	m, mock := newTestShareManager(t, st, &now)
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	first, err := m.Create(context.Background(), 42, 1, ptr(int64(5)), 24*time.Hour)
	require.NoError(t, err)

	now = now.Add(time.Minute)
	second, err := m.Create(context.Background(), 42, 1, ptr(int64(5)), 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, first.Token, second.Token)
	assert.Equal(t, *first.ExpiresAt, *second.ExpiresAt, "dedup must not extend the expiry")
	assert.Len(t, st.sharesFor(42, ptr(int64(5))), 1)
}

func TestCreate_DedupAppliesToUnrestrictedPair(t *testing.T) {
	now := time.Now().UTC()
	st := newMemStore()
	seedOwnerFile(st)
	m, mock := newTestShareManager(t, st, &now)
	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}

	a, err := m.Create(context.Background(), 42, 1, nil, time.Hour)
	require.NoError(t, err)
	b, err := m.Create(context.Background(), 42, 1, nil, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, a.Token, b.Token)

	// A different recipient is a different pair.
	c, err := m.Create(context.Background(), 42, 1, ptr(int64(5)), time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, a.Token, c.Token)

	assert.Len(t, st.sharesFor(42, nil), 1)
	assert.Len(t, st.sharesFor(42, ptr(int64(5))), 1)
}

func TestCreate_AfterExpiryCreatesFreshRow(t *testing.T) {
	now := time.Now().UTC()
	st := newMemStore()
	seedOwnerFile(st)
	m, mock := newTestShareManager(t, st, &now)
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	old, err := m.Create(context.Background(), 42, 1, ptr(int64(5)), time.Hour)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	fresh, err := m.Create(context.Background(), 42, 1, ptr(int64(5)), time.Hour)
	require.NoError(t, err)

	assert.NotEqual(t, old.Token, fresh.Token)
	assert.Len(t, st.sharesFor(42, ptr(int64(5))), 2, "the expired row stays, a new one is added")

	_, _, err = m.Resolve(context.Background(), old.Token, models.AuthenticatedUser(5))
	assert.ErrorIs(t, err, common.ErrorNotFound, "no resurrection of the old token")
}

func TestCreate_NotOwner(t *testing.T) {
	now := time.Now().UTC()
	st := newMemStore()
	seedOwnerFile(st)
	m, mock := newTestShareManager(t, st, &now)
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := m.Create(context.Background(), 42, 7, nil, time.Hour)
	assert.ErrorIs(t, err, common.ErrNotOwner)

	_, err = m.Create(context.Background(), 999, 7, nil, time.Hour)
	assert.ErrorIs(t, err, common.ErrNotOwner, "a missing file looks the same as someone else's")

	assert.Empty(t, st.sharesFor(42, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_UnknownRecipient(t *testing.T) {
	now := time.Now().UTC()
	st := newMemStore()
	seedOwnerFile(st)
	m, mock := newTestShareManager(t, st, &now)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := m.Create(context.Background(), 42, 1, ptr(int64(404)), time.Hour)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestCreate_StorageErrors(t *testing.T) {
	now := time.Now().UTC()

	cases := []struct {
		name   string
		inject func(*memStore)
	}{
		{"file lookup", func(s *memStore) { s.fileGetErr = errBoom{} }},
		{"dedup lookup", func(s *memStore) { s.shareFindErr = errBoom{} }},
		{"insert", func(s *memStore) { s.insertHook = func(*models.Share) error { return errBoom{} } }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := newMemStore()
			seedOwnerFile(st)
			tc.inject(st)
			m, mock := newTestShareManager(t, st, &now)
			mock.ExpectBegin()
			mock.ExpectRollback()

			_, err := m.Create(context.Background(), 42, 1, nil, time.Hour)
			require.Error(t, err)
			assert.ErrorIs(t, err, errBoom{})
			assert.False(t, errors.Is(err, common.ErrNotOwner))
			st.insertHook = nil
			assert.Empty(t, st.sharesFor(42, nil), "a failed create leaves nothing resolvable")
		})
	}
}

func TestCreate_TokenCollisionIsNotRetried(t *testing.T) {
	now := time.Now().UTC()
	st := newMemStore()
	seedOwnerFile(st)
	m, mock := newTestShareManager(t, st, &now)
	st.insertHook = func(*models.Share) error { return &pgconn.PgError{Code: "23505"} }
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := m.Create(context.Background(), 42, 1, nil, time.Hour)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet(), "exactly one attempt")
}

// Two creators race for the same (file, recipient) pair. The database
// aborts the loser with a serialization failure after the winner commits;
// the retried transaction then finds the winner's share.
func TestCreate_ConcurrentCreateConvergesOnOneShare(t *testing.T) {
	now := time.Now().UTC()
	st := newMemStore()
	seedOwnerFile(st)
	m, mock := newTestShareManager(t, st, &now)

	winner := models.Share{FileID: 42, GranterID: 1, RecipientID: ptr(int64(5)), Token: "winner", ExpiresAt: ptr(now.Add(time.Hour)), CreatedAt: now}
	attempts := 0
	st.insertHook = func(*models.Share) error {
		attempts++
		if attempts == 1 {
			st.addShare(winner)
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	}

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	s, err := m.Create(context.Background(), 42, 1, ptr(int64(5)), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "winner", s.Token)
	assert.Equal(t, 1, attempts, "the retry dedups instead of inserting")
	assert.Len(t, st.sharesFor(42, ptr(int64(5))), 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_RecipientScoping(t *testing.T) {
	now := time.Now().UTC()
	st := newMemStore()
	seedOwnerFile(st)
	m, mock := newTestShareManager(t, st, &now)
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	scoped, err := m.Create(context.Background(), 42, 1, ptr(int64(5)), time.Hour)
	require.NoError(t, err)
	open, err := m.Create(context.Background(), 42, 1, nil, time.Hour)
	require.NoError(t, err)

	fileID, ac, err := m.Resolve(context.Background(), scoped.Token, models.AuthenticatedUser(5))
	require.NoError(t, err)
	assert.Equal(t, int64(42), fileID)
	assert.Equal(t, models.TokenGrant(42), ac)

	_, ac, err = m.Resolve(context.Background(), scoped.Token, models.AuthenticatedUser(7))
	assert.ErrorIs(t, err, common.ErrForbidden)
	assert.False(t, errors.Is(err, common.ErrAuthRequired))
	assert.False(t, ac.Granted())

	_, _, err = m.Resolve(context.Background(), scoped.Token, models.Anonymous())
	assert.ErrorIs(t, err, common.ErrAuthRequired)
	assert.ErrorIs(t, err, common.ErrForbidden)

	for _, r := range []models.Requester{models.Anonymous(), models.AuthenticatedUser(5), models.AuthenticatedUser(7)} {
		fileID, ac, err := m.Resolve(context.Background(), open.Token, r)
		require.NoError(t, err, r.String())
		assert.Equal(t, int64(42), fileID)
		assert.Equal(t, models.AccessValidToken, ac.Reason)
	}
}

func TestResolve_ExpiredAndUnknownLookAlike(t *testing.T) {
	now := time.Now().UTC()
	st := newMemStore()
	seedOwnerFile(st)
	st.addShare(models.Share{FileID: 42, GranterID: 1, Token: "old", ExpiresAt: ptr(now.Add(-time.Second))})
	m, _ := newTestShareManager(t, st, &now)

	_, _, errExpired := m.Resolve(context.Background(), "old", models.Anonymous())
	_, _, errUnknown := m.Resolve(context.Background(), "never-issued", models.Anonymous())
	_, _, errEmpty := m.Resolve(context.Background(), "", models.Anonymous())

	assert.Equal(t, common.ErrorNotFound, errExpired)
	assert.Equal(t, errExpired, errUnknown)
	assert.Equal(t, errExpired, errEmpty)
}

func TestResolve_ExpiresExactlyAtDeadline(t *testing.T) {
	now := time.Now().UTC()
	st := newMemStore()
	seedOwnerFile(st)
	deadline := now.Add(time.Hour)
	st.addShare(models.Share{FileID: 42, GranterID: 1, Token: "t", ExpiresAt: &deadline})
	m, _ := newTestShareManager(t, st, &now)

	_, _, err := m.Resolve(context.Background(), "t", models.Anonymous())
	require.NoError(t, err)

	now = deadline
	_, _, err = m.Resolve(context.Background(), "t", models.Anonymous())
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestResolve_NeverExpiringShare(t *testing.T) {
	now := time.Now().UTC()
	st := newMemStore()
	seedOwnerFile(st)
	st.addShare(models.Share{FileID: 42, GranterID: 1, Token: "forever"})
	m, _ := newTestShareManager(t, st, &now)

	now = now.Add(100 * 365 * 24 * time.Hour)
	fileID, _, err := m.Resolve(context.Background(), "forever", models.Anonymous())
	require.NoError(t, err)
	assert.Equal(t, int64(42), fileID)
}

func TestResolve_StorageError(t *testing.T) {
	now := time.Now().UTC()
	st := newMemStore()
	st.shareByTokenErr = errBoom{}
	m, _ := newTestShareManager(t, st, &now)

	_, ac, err := m.Resolve(context.Background(), "t", models.AuthenticatedUser(5))
	require.Error(t, err)
	assert.False(t, errors.Is(err, common.ErrorNotFound))
	assert.False(t, ac.Granted())
}

func TestRoundTrip_TokenResolvesUntilExpiry(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	now := start
	st := newMemStore()
	seedOwnerFile(st)
	m, mock := newTestShareManager(t, st, &now)
	mock.ExpectBegin()
	mock.ExpectCommit()

	s, err := m.Create(context.Background(), 42, 1, nil, 3*time.Hour)
	require.NoError(t, err)

	for _, step := range []time.Duration{0, time.Hour, 2*time.Hour + 59*time.Minute} {
		now = start.Add(step)
		fileID, _, err := m.Resolve(context.Background(), s.Token, models.Anonymous())
		require.NoError(t, err, step)
		assert.Equal(t, int64(42), fileID)
	}
	for _, step := range []time.Duration{3 * time.Hour, 4 * time.Hour} {
		now = start.Add(step)
		_, _, err := m.Resolve(context.Background(), s.Token, models.Anonymous())
		assert.ErrorIs(t, err, common.ErrorNotFound, step)
	}
}
