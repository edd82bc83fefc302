package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meeting-digest/backend/internal/apperror"
	"github.com/meeting-digest/backend/internal/storage/models"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := &models.User{Email: " Rep@Acme.com ", CalendarToken: ptr("tok"), Timezone: "Europe/Belgrade"}
	require.NoError(t, repo.Create(ctx, user))
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "rep@acme.com", user.Email)

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "rep@acme.com", got.Email)
	assert.Equal(t, "Europe/Belgrade", got.Timezone)
	require.NotNil(t, got.CalendarToken)
	assert.Equal(t, "tok", *got.CalendarToken)
	assert.True(t, got.NeverSynced())

	byEmail, err := repo.GetByEmail(ctx, "REP@acme.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, user.ID, byEmail.ID)
}

func TestUserRepository_GetMissing(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))

	got, err := repo.GetByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	createUser(t, db, "rep@acme.com")

	err := NewUserRepository(db).Create(context.Background(), &models.User{Email: "REP@acme.com"})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestUserRepository_UpdateLastSyncAt(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	user := createUser(t, db, "rep@acme.com")

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	at := time.Date(2026, 3, 1, 7, 30, 0, 0, loc)

	require.NoError(t, repo.UpdateLastSyncAt(ctx, user.ID, at))

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSyncAt)
	assert.True(t, at.Equal(*got.LastSyncAt))

	err = repo.UpdateLastSyncAt(ctx, "missing", at)
	assert.True(t, apperror.IsNotFound(err))
}

func TestUserRepository_ListAndCalendarToken(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	createUser(t, db, "b@acme.com")
	require.NoError(t, repo.Create(ctx, &models.User{Email: "a@acme.com", CalendarToken: ptr("secret")}))

	users, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "a@acme.com", users[0].Email)
	assert.Equal(t, "b@acme.com", users[1].Email)

	tok, err := repo.CalendarToken(ctx, "A@acme.com")
	require.NoError(t, err)
	assert.Equal(t, "secret", tok)

	tok, err = repo.CalendarToken(ctx, "b@acme.com")
	require.NoError(t, err)
	assert.Empty(t, tok)

	tok, err = repo.CalendarToken(ctx, "nobody@acme.com")
	require.NoError(t, err)
	assert.Empty(t, tok)
}
