package db

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringArrayRoundTripsPostgresLiteral(t *testing.T) {
	value, err := StringArray{"cancel my membership", "talk to a human"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `{"cancel my membership","talk to a human"}`, value)

	var out StringArray
	require.NoError(t, out.Scan([]byte(value.(string))))
	assert.Equal(t, StringArray{"cancel my membership", "talk to a human"}, out)
}

func TestStringArrayScansJSONAndNil(t *testing.T) {
	var out StringArray
	require.NoError(t, out.Scan(`["a","b"]`))
	assert.Equal(t, StringArray{"a", "b"}, out)

	require.NoError(t, out.Scan(nil))
	assert.Empty(t, out)

	assert.Error(t, out.Scan(42))
}

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.True(t, IsDuplicateKeyErr(errString("UNIQUE constraint failed: members.email")))
	assert.True(t, IsDuplicateKeyErr(errString("Error 1062: Duplicate entry")))
	assert.False(t, IsDuplicateKeyErr(errString("connection refused")))

	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.True(t, IsDuplicateKeyErr(&pq.Error{Code: "23505"}))
	assert.False(t, IsDuplicateKeyErr(&pq.Error{Code: "23503", Message: "violates foreign key constraint"}))
}

type errString string

func (e errString) Error() string { return string(e) }
