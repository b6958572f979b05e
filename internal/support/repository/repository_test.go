package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/monstrox/monstro/internal/support/domain"
	"github.com/monstrox/monstro/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionConversationSetsClosedAt(t *testing.T) {
	db, mock := dbtest.NewMock(t)
	at := time.Date(2026, 10, 2, 8, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE "support_conversations" SET "closed_at"=$1,"status"=$2,"updated_at"=$3 WHERE id = $4 AND status IN ($5,$6)`,
	)).WithArgs(at, domain.ConversationClosed, at, 7, domain.ConversationOpen, domain.ConversationEscalated).
		WillReturnResult(sqlmock.NewResult(0, 1))

	changed, err := Provide().TransitionConversation(context.Background(), db, 7,
		[]string{domain.ConversationOpen, domain.ConversationEscalated}, domain.ConversationClosed, at)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestRecentMessagesReturnsOldestFirst(t *testing.T) {
	db, mock := dbtest.NewMock(t)
	t1 := time.Date(2026, 10, 2, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT * FROM "support_messages" WHERE conversation_id = $1 AND role IN ($2,$3) ORDER BY created_at DESC,id DESC LIMIT $4`,
	)).WithArgs(3, domain.RoleUser, domain.RoleAssistant, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "conversation_id", "role", "content", "created_at"}).
			AddRow(12, 3, domain.RoleAssistant, "second", t1.Add(time.Minute)).
			AddRow(11, 3, domain.RoleUser, "first", t1))

	msgs, err := Provide().RecentMessages(context.Background(), db, 3, []string{domain.RoleUser, domain.RoleAssistant}, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
}
