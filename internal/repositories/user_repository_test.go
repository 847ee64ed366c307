package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receipt-overseer/internal/models"
)

func TestUserRepoCreateAndGet(t *testing.T) {
	repo := NewUserRepo(newTestDB(t))
	ctx := context.Background()

	created, err := repo.CreateUser(ctx, "alice", "h1")
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	byID, err := repo.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)
	assert.Equal(t, "h1", byID.PasswordHash)
	assert.Equal(t, created.CreatedAt, byID.CreatedAt)

	byName, err := repo.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)

	_, err = repo.GetUserByID(ctx, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepoDuplicateUsername(t *testing.T) {
	repo := NewUserRepo(newTestDB(t))
	seedUsers(t, repo, "alice")

	_, err := repo.CreateUser(context.Background(), "alice", "other")
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestUserRepoListAndMissing(t *testing.T) {
	repo := NewUserRepo(newTestDB(t))
	ctx := context.Background()
	users := seedUsers(t, repo, "alice", "bob", "carol")

	page, err := repo.ListUsers(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "bob", page[0].Username)

	missing, err := repo.MissingUserIDs(ctx, []int{users[0].ID, 404, users[2].ID, 405})
	require.NoError(t, err)
	assert.Equal(t, []int{404, 405}, missing)

	missing, err = repo.MissingUserIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestUserRepoUpdatePassword(t *testing.T) {
	repo := NewUserRepo(newTestDB(t))
	ctx := context.Background()
	users := seedUsers(t, repo, "alice")

	require.NoError(t, repo.UpdatePassword(ctx, users[0].ID, "new-hash"))
	got, err := repo.GetUserByID(ctx, users[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)

	assert.ErrorIs(t, repo.UpdatePassword(ctx, 999, "x"), ErrUserNotFound)
}

func TestUserRepoDeleteUser(t *testing.T) {
	conn := newTestDB(t)
	users := NewUserRepo(conn)
	expenses := NewExpenseRepo(conn)
	messages := NewMessageRepo(conn)
	ctx := context.Background()
	u := seedUsers(t, users, "alice", "bob", "carol")

	_, err := expenses.CreateExpense(ctx, u[0].ID, dec("20"), "taxi", []models.Share{{DebtorID: u[1].ID, AmountOwed: dec("10")}})
	require.NoError(t, err)
	_, err = messages.CreateMessage(ctx, u[2].ID, "bye")
	require.NoError(t, err)

	assert.ErrorIs(t, users.DeleteUser(ctx, u[0].ID), ErrUserHasLedger)
	assert.ErrorIs(t, users.DeleteUser(ctx, u[1].ID), ErrUserHasLedger)

	require.NoError(t, users.DeleteUser(ctx, u[2].ID))
	_, err = users.GetUserByID(ctx, u[2].ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
	history, err := messages.ListRecentMessages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	assert.ErrorIs(t, users.DeleteUser(ctx, 999), ErrUserNotFound)
}
