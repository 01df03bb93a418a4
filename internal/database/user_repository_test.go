package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUserByID(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		userID := uuid.New()
		now := time.Now()

		mock.ExpectQuery(`SELECT id, email, full_name, roles, created_at FROM users WHERE id = \$1`).
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "full_name", "roles", "created_at"}).
				AddRow(userID.String(), "amina@example.com", "Amina Idrissi", []byte(`{"explorer","organizer"}`), now))

		user, err := repo.GetUserByID(ctx, userID)
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, userID, user.ID)
		assert.Equal(t, "amina@example.com", *user.Email)
		assert.True(t, user.HasRole(models.RoleOrganizer))
		assert.False(t, user.HasRole(models.RoleAdmin))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		userID := uuid.New()

		mock.ExpectQuery(`SELECT id, email, full_name, roles, created_at FROM users`).
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "full_name", "roles", "created_at"}))

		user, err := repo.GetUserByID(ctx, userID)
		require.NoError(t, err)
		assert.Nil(t, user)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database Error", func(t *testing.T) {
		userID := uuid.New()

		mock.ExpectQuery(`SELECT id, email, full_name, roles, created_at FROM users`).
			WithArgs(userID).
			WillReturnError(fmt.Errorf("database error"))

		user, err := repo.GetUserByID(ctx, userID)
		assert.Error(t, err)
		assert.Nil(t, user)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
