package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactor_WithinTx(t *testing.T) {
	t.Run("commits when fn succeeds", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE beehives`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err = NewTransactor(db).WithinTx(context.Background(), func(ctx context.Context) error {
			_, err := Conn(ctx, db).ExecContext(ctx, `UPDATE beehives SET is_infected = true`)
			return err
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when fn fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err = NewTransactor(db).WithinTx(context.Background(), func(ctx context.Context) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nested call joins outer transaction", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectCommit()

		tr := NewTransactor(db)
		err = tr.WithinTx(context.Background(), func(ctx context.Context) error {
			return tr.WithinTx(ctx, func(inner context.Context) error {
				assert.Equal(t, Conn(ctx, db), Conn(inner, db))
				return nil
			})
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("conn without transaction is the db", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		assert.Equal(t, DBTX(db), Conn(context.Background(), db))
	})
}
