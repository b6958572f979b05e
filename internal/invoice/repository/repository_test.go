package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/monstrox/monstro/internal/invoice/domain"
	"github.com/monstrox/monstro/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionStatusIsConditional(t *testing.T) {
	db, mock := dbtest.NewMock(t)
	paidAt := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "invoices" SET "paid_at"=$1,"status"=$2 WHERE id = $3 AND status = $4`)).
		WithArgs(paidAt, domain.StatusPaid, int64(42), domain.StatusOpen).
		WillReturnResult(sqlmock.NewResult(0, 1))

	changed, err := Provide().TransitionStatus(context.Background(), db, 42, domain.StatusOpen, domain.StatusPaid, map[string]any{"paid_at": paidAt})
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestTransitionStatusLostRace(t *testing.T) {
	db, mock := dbtest.NewMock(t)

	mock.ExpectExec(`UPDATE "invoices" SET .* WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := Provide().TransitionStatus(context.Background(), db, 42, domain.StatusOpen, domain.StatusVoid, nil)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestListOverdueQuery(t *testing.T) {
	db, mock := dbtest.NewMock(t)
	now := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "invoices" WHERE status = $1 AND due_at < $2 AND id > $3 ORDER BY id ASC LIMIT $4`)).
		WithArgs(domain.StatusOpen, now, 5, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(7, domain.StatusOpen))

	invoices, err := Provide().ListOverdue(context.Background(), db, now, 5, 50)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.EqualValues(t, 7, invoices[0].ID)
}

func TestClaimOverdueReminderOnlyOnce(t *testing.T) {
	db, mock := dbtest.NewMock(t)
	at := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

	query := regexp.QuoteMeta(`UPDATE "invoices" SET "overdue_reminded_at"=$1 WHERE id = $2 AND status = $3 AND overdue_reminded_at IS NULL`)
	mock.ExpectExec(query).WithArgs(at, int64(42), domain.StatusOpen).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs(at, int64(42), domain.StatusOpen).WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := Provide().ClaimOverdueReminder(context.Background(), db, 42, at)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = Provide().ClaimOverdueReminder(context.Background(), db, 42, at)
	require.NoError(t, err)
	assert.False(t, claimed)
}
