package members

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldbeesion/beecareful-backend/internal/storage/postgres"
)

func TestRepo(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(postgres.ArgConverter{}))
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepo(db)
	ctx := context.Background()

	t.Run("ensure member", func(t *testing.T) {
		mock.ExpectQuery(`insert into members`).
			WithArgs("uid-1", "a@b.c", "").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
		id, err := repo.EnsureMember(ctx, UpsertMember{FirebaseUID: "uid-1", Email: "a@b.c"})
		require.NoError(t, err)
		assert.Equal(t, int64(7), id)

		_, err = repo.EnsureMember(ctx, UpsertMember{})
		assert.Error(t, err)
	})

	t.Run("register device", func(t *testing.T) {
		mock.ExpectExec(`insert into member_devices`).
			WithArgs(int64(7), "tok").
			WillReturnResult(sqlmock.NewResult(1, 1))
		require.NoError(t, repo.RegisterDevice(ctx, 7, "tok"))
		assert.Error(t, repo.RegisterDevice(ctx, 7, ""))
	})

	t.Run("device tokens", func(t *testing.T) {
		mock.ExpectQuery(`select fcm_token from member_devices`).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"fcm_token"}).AddRow("t1").AddRow("t2"))
		tokens, err := repo.DeviceTokens(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, []string{"t1", "t2"}, tokens)
	})

	t.Run("remove tokens", func(t *testing.T) {
		mock.ExpectExec(`delete from member_devices`).
			WithArgs([]string{"t1"}).
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.RemoveDeviceTokens(ctx, []string{"t1"}))
		require.NoError(t, repo.RemoveDeviceTokens(ctx, nil))
	})

	require.NoError(t, mock.ExpectationsWereMet())
}
