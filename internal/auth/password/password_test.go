package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	encoded, err := Hash("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=65536,t=1,p=4$"))

	assert.True(t, Verify("correct horse", encoded))
	assert.False(t, Verify("correct horsE", encoded))
	assert.False(t, NeedsRehash(encoded))

	again, err := Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, encoded, again, "salt must differ")
}

func TestVerifyRejectsMalformed(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$a2V5",
		"$argon2id$v=18$m=65536,t=1,p=4$c2FsdA$a2V5",
		"$argon2id$v=19$m=0,t=1,p=4$c2FsdA$a2V5",
		"$argon2id$v=19$m=65536,t=1,p=4$!!$a2V5",
	} {
		assert.False(t, Verify("anything", encoded), encoded)
		assert.True(t, NeedsRehash(encoded), encoded)
	}
}

func TestOlderParamsStillVerify(t *testing.T) {
	weak := Params{Memory: 8 * 1024, Time: 1, Threads: 1, KeyLen: 16, SaltLen: 8}
	encoded, err := weak.hash("old-password")
	require.NoError(t, err)

	assert.True(t, Verify("old-password", encoded))
	assert.True(t, NeedsRehash(encoded))
}

func TestCheck(t *testing.T) {
	assert.ErrorIs(t, Check("short"), ErrTooShort)
	assert.ErrorIs(t, Check(strings.Repeat("a", MaxLength+1)), ErrTooLong)
	assert.NoError(t, Check("ünïcødé!"))
}

func TestFingerprintTracksHash(t *testing.T) {
	a, _ := Hash("password-one")
	b, _ := Hash("password-two")
	assert.Len(t, Fingerprint(a), 16)
	assert.Equal(t, Fingerprint(a), Fingerprint(a))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}
