package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/monstrox/monstro/internal/social/domain"
	"github.com/monstrox/monstro/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountReactionsGroupsByEmoji(t *testing.T) {
	db, mock := dbtest.NewMock(t)

	mock.ExpectQuery(`SELECT emoji, COUNT\(\*\) AS count FROM "reactions" WHERE target_type = \$1 AND target_id = \$2 GROUP BY .*emoji`).
		WithArgs(domain.TargetMoment, 12).
		WillReturnRows(sqlmock.NewRows([]string{"emoji", "count"}).AddRow("🔥", 3).AddRow("👍", 1))

	counts, err := Provide().CountReactions(context.Background(), db, domain.TargetMoment, 12)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, domain.ReactionCount{Emoji: "🔥", Count: 3}, counts[0])
}

func TestFindGroupMemberMissing(t *testing.T) {
	db, mock := dbtest.NewMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT * FROM "group_members" WHERE group_id = $1 AND user_id = $2 LIMIT $3`,
	)).WithArgs(4, 9, 1).
		WillReturnRows(sqlmock.NewRows([]string{"group_id", "user_id"}))

	member, err := Provide().FindGroupMember(context.Background(), db, 4, 9)
	require.NoError(t, err)
	assert.Nil(t, member)
}
