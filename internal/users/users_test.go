package users

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/digitaltwin/internal/store"
	v1 "github.com/fyrsmithlabs/digitaltwin/pkg/api/v1"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, "file:"+filepath.Join(t.TempDir(), "users.db"), store.Options{})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { _ = s.Close() })
	return NewService(s), s
}

func strp(s string) *string { return &s }

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterRequest{Email: " Ana@Example.com ", Password: "secret1", Name: strp("Ana")})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.NotEqual(t, "secret1", u.PasswordHash)

	got, err := svc.Login(ctx, LoginRequest{Email: "ANA@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "Ana", got.DisplayName())
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := map[string]RegisterRequest{
		"bad email":      {Email: "not-an-email", Password: "secret1"},
		"display name":   {Email: "Ana <ana@example.com>", Password: "secret1"},
		"short password": {Email: "ana@example.com", Password: "12345"},
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Register(ctx, req)
			assert.ErrorIs(t, err, v1.ErrInvalidRequest)
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterRequest{Email: "ANA@example.com", Password: "secret2"})
	assert.ErrorIs(t, err, v1.ErrConflict)
}

func TestLogin_BadCredentials(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginRequest{Email: "ana@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrBadCredentials)
	assert.ErrorIs(t, err, v1.ErrUnauthorized)

	_, err = svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterRequest{Email: "ana@example.com", Password: "secret1", Name: strp("Ana")})
	require.NoError(t, err)

	updated, err := svc.UpdateProfile(ctx, u.ID, ProfileUpdate{
		Occupation: strp("student"),
		Goals:      map[string]string{"career": "ship v2"},
		LifeAreas:  []string{"Career"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana", updated.DisplayName(), "name kept when not provided")
	assert.Equal(t, "student", *updated.Occupation)

	// goals are replaced wholesale
	_, err = svc.UpdateProfile(ctx, u.ID, ProfileUpdate{Goals: map[string]string{"health": "run"}})
	require.NoError(t, err)

	got, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"health": "run"}, got.Goals)
	assert.Empty(t, got.LifeAreas)
	assert.Empty(t, got.Personality)
	assert.Equal(t, "student", *got.Occupation)
}

func TestUpdateProfile_Concurrent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterRequest{Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)

	const updates = 40
	errs := make(chan error, updates)
	var wg sync.WaitGroup
	for i := 0; i < updates; i++ {
		wg.Add(1)
		go func(occupation string) {
			defer wg.Done()
			_, err := svc.UpdateProfile(ctx, u.ID, ProfileUpdate{Occupation: &occupation})
			errs <- err
		}(fmt.Sprintf("job %d", i))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestExistsAndDelete(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterRequest{Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)
	require.NoError(t, s.CreateItem(ctx, &store.Item{UserID: u.ID, Title: "t", Category: "task"}))

	assert.NoError(t, svc.Exists(ctx, u.ID))
	require.NoError(t, svc.Delete(ctx, u.ID))
	assert.ErrorIs(t, svc.Exists(ctx, u.ID), v1.ErrNotFound)

	items, err := s.ListItems(ctx, u.ID, store.ItemFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.ErrorIs(t, svc.Delete(ctx, u.ID), v1.ErrNotFound)
}
