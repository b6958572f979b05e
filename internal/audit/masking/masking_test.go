package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadataMasksByKey(t *testing.T) {
	out := Metadata(map[string]any{
		"reason":          "duplicate",
		"webhook_secret":  "whsec_abcdef123456",
		"email":           "mia.lopez@example.com",
		"phone":           "+1 (415) 555-0199",
		"amount":          4200,
		"   ":             "dropped",
		"reset_token":     "abc",
		"recipient":       map[string]any{"email": "sam@gym.io", "name": "Sam"},
		"previous_emails": []any{"a@b.co", "zed@b.co"},
	})

	assert.Equal(t, "duplicate", out["reason"])
	assert.Equal(t, "whsec_****3456", out["webhook_secret"])
	assert.Equal(t, "m****@example.com", out["email"])
	assert.Equal(t, "****0199", out["phone"])
	assert.Equal(t, 4200, out["amount"])
	assert.Equal(t, "****", out["reset_token"])
	assert.NotContains(t, out, "")
	assert.Equal(t, map[string]any{"email": "s****@gym.io", "name": "Sam"}, out["recipient"])
	assert.Equal(t, []any{"a****@b.co", "z****@b.co"}, out["previous_emails"])
}

func TestSecretWithoutPrefix(t *testing.T) {
	assert.Equal(t, "****wxyz", Secret("abcdefwxyz"))
	assert.Equal(t, "", Secret("  "))
	assert.Equal(t, "pi_****", Secret("pi_12"))
}

func TestEmailFallsBackToSecret(t *testing.T) {
	assert.Equal(t, "****-box", Email("not-an-inbox-box"))
}
