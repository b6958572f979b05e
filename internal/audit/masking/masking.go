// Package masking redacts credentials and member contact details before they
// land in the audit trail.
package masking

import "strings"

const redacted = "****"

type kind int

const (
	kindPlain kind = iota
	kindSecret
	kindEmail
	kindPhone
)

func classify(key string) kind {
	lower := strings.ToLower(key)
	switch {
	case containsAny(lower, "secret", "token", "password", "api_key", "signature"):
		return kindSecret
	case strings.Contains(lower, "email"):
		return kindEmail
	case containsAny(lower, "phone", "mobile"):
		return kindPhone
	default:
		return kindPlain
	}
}

// Metadata returns a copy of in with sensitive values masked according to
// their key. Nested maps and slices inherit the enclosing key's rule when
// their own keys say nothing.
func Metadata(in map[string]any) map[string]any {
	return walk(in, kindPlain)
}

func walk(in map[string]any, inherited kind) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		k := classify(key)
		if k == kindPlain {
			k = inherited
		}
		out[key] = maskValue(value, k)
	}
	return out
}

func maskValue(value any, k kind) any {
	switch v := value.(type) {
	case string:
		return maskString(v, k)
	case map[string]any:
		return walk(v, k)
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			out = append(out, maskValue(item, k))
		}
		return out
	case []string:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, maskString(item, k))
		}
		return out
	default:
		return value
	}
}

func maskString(value string, k kind) string {
	switch k {
	case kindSecret:
		return Secret(value)
	case kindEmail:
		return Email(value)
	case kindPhone:
		return Phone(value)
	default:
		return value
	}
}

// Secret keeps a vendor prefix such as "whsec_" or "pi_" and the last four
// characters.
func Secret(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	prefix, rest := value, ""
	if i := strings.LastIndex(value, "_"); i >= 0 && i < len(value)-1 {
		prefix, rest = value[:i+1], value[i+1:]
	} else {
		prefix, rest = "", value
	}
	if len(rest) <= 4 {
		return prefix + redacted
	}
	return prefix + redacted + rest[len(rest)-4:]
}

// Email keeps the first letter of the mailbox and the whole domain.
func Email(value string) string {
	value = strings.TrimSpace(value)
	at := strings.LastIndex(value, "@")
	if at <= 0 {
		return Secret(value)
	}
	return value[:1] + redacted + value[at:]
}

// Phone keeps the last four digits.
func Phone(value string) string {
	digits := make([]rune, 0, len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) <= 4 {
		return redacted
	}
	return redacted + string(digits[len(digits)-4:])
}

func containsAny(s string, markers ...string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
