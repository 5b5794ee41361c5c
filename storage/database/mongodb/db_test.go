package mongodb_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/cases"
	"github.com/trezcool/clinic/core/live"
	"github.com/trezcool/clinic/core/user"
	"github.com/trezcool/clinic/storage/database/mongodb"
	"github.com/trezcool/clinic/testutil"
)

// openDB connects to the server at MONGO_TEST_URI, in a throwaway database.
func openDB(t *testing.T) (*mongodb.DB, *live.Hub) {
	t.Helper()

	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	hub := live.NewHub()
	db, err := mongodb.Open(context.Background(), uri, "clinic_test_"+uuid.NewString()[:8], hub)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Database.Drop(context.Background())
		_ = db.Close()
	})
	return db, hub
}

func TestUserRepository(t *testing.T) {
	db, _ := openDB(t)
	repo := mongodb.NewUserRepository(db)

	now := time.Now().UTC()
	testutil.CreateUser(t, repo, "Admin", "admin", "", "Adm1nPass", user.RoleAdmin, now.Add(-time.Hour))
	alice := testutil.CreateUser(t, repo, "Alice", "alice", "", "Al1cePass", user.RoleStudent, now)

	_, err := repo.CreateUser(context.Background(), user.User{ID: "other", Username: "alice", CreatedAt: now, UpdatedAt: now})
	assert.Equal(t, user.ErrUsernameExists, err)

	got, err := repo.GetUser(context.Background(), user.GetFilter{Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
	assert.NoError(t, got.CheckPassword("Al1cePass"))

	_, err = repo.GetUser(context.Background(), user.GetFilter{ID: "nobody"})
	assert.Equal(t, user.ErrNotFound, err)

	all, err := repo.QueryUsers(context.Background(), user.QueryFilter{})
	require.NoError(t, err)
	if assert.Len(t, all, 2) {
		assert.Equal(t, alice.ID, all[0].ID)
	}
	assert.Equal(t, user.ErrNotFound, repo.SetPassword(context.Background(), "nobody", nil, now))
}

func TestCaseRepository(t *testing.T) {
	db, hub := openDB(t)
	repo := mongodb.NewCaseRepository(db)
	sub := hub.Subscribe(core.CollectionProgress)
	defer sub.Close()

	alice := user.User{ID: "alice-id"}
	c := testutil.CreateCase(t, repo, "case-1", "Contract Review", alice)

	pct := 45
	got, err := repo.UpdateCase(context.Background(), c.ID, cases.Update{ProgressPercentage: &pct})
	require.NoError(t, err)
	assert.Equal(t, 45, got.ProgressPercentage)
	assert.Nil(t, got.DocumentURL)

	_, err = repo.UpdateCase(context.Background(), "nope", cases.Update{ProgressPercentage: &pct})
	assert.Equal(t, cases.ErrNotFound, err)

	_, err = repo.CreateProgress(context.Background(), cases.Progress{ID: "p1", CaseID: c.ID, UserID: alice.ID, ProgressPercentage: 45})
	require.NoError(t, err)
	select {
	case <-sub.C:
	default:
		t.Fatal("no progress notification")
	}

	history, err := repo.QueryProgress(context.Background(), cases.ProgressFilter{UserID: alice.ID})
	require.NoError(t, err)
	if assert.Len(t, history, 1) {
		assert.Nil(t, history[0].Notes)
	}

	// back-to-back saves, usually within the same millisecond
	for i, pct := range []int{50, 55, 60, 65} {
		_, err = repo.CreateProgress(context.Background(), cases.Progress{ID: uuid.NewString(), CaseID: c.ID, UserID: alice.ID, ProgressPercentage: pct})
		require.NoError(t, err, "save #%d", i)
	}
	history, err = repo.QueryProgress(context.Background(), cases.ProgressFilter{CaseID: c.ID})
	require.NoError(t, err)
	require.Len(t, history, 5)
	for i, want := range []int{65, 60, 55, 50, 45} {
		assert.Equal(t, want, history[i].ProgressPercentage, "history[%d]", i)
	}
}
