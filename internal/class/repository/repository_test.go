package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/class/domain"
	"github.com/monstrox/monstro/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTakeSpotIsConditional(t *testing.T) {
	db, mock := dbtest.NewMock(t)

	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE class_sessions SET reserved = reserved + 1 WHERE id = $1 AND status = $2 AND reserved < capacity`,
	)).WithArgs(snowflake.ID(3), domain.SessionScheduled).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := Provide().TakeSpot(context.Background(), db, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}
