package email

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"html/template"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	TemplateWelcome              = "welcome"
	TemplatePasswordReset        = "password_reset"
	TemplateInvoice              = "invoice"
	TemplatePaymentReceipt       = "payment_receipt"
	TemplatePaymentFailed        = "payment_failed"
	TemplateClassReminder        = "class_reminder"
	TemplateSubscriptionCanceled = "subscription_canceled"
)

var (
	ErrUnknownTemplate = errors.New("unknown_email_template")
	ErrMissingField    = errors.New("missing_template_field")
)

type templateSpec struct {
	name     string
	required []string
	sample   map[string]any
}

var specs = []templateSpec{
	{
		name:     TemplateWelcome,
		required: []string{"first_name"},
		sample:   map[string]any{"first_name": "Alex", "location_name": "Iron Temple", "app_url": "https://app.monstro-x.com"},
	},
	{
		name:     TemplatePasswordReset,
		required: []string{"first_name", "reset_url", "expires_in"},
		sample:   map[string]any{"first_name": "Alex", "reset_url": "https://app.monstro-x.com/reset?token=sample", "expires_in": "1 hour"},
	},
	{
		name:     TemplateInvoice,
		required: []string{"first_name", "invoice_number", "total", "currency", "due_at"},
		sample: map[string]any{
			"first_name":     "Alex",
			"location_name":  "Iron Temple",
			"invoice_number": "INV-IRON-01J9Z6Y0N1",
			"currency":       "usd",
			"total":          8900,
			"due_at":         "2026-11-01T00:00:00Z",
			"items":          []any{map[string]any{"description": "Unlimited monthly", "amount": 8900}},
		},
	},
	{
		name:     TemplatePaymentReceipt,
		required: []string{"first_name", "invoice_number", "amount", "currency", "paid_at"},
		sample:   map[string]any{"first_name": "Alex", "invoice_number": "INV-IRON-01J9Z6Y0N1", "amount": 8900, "currency": "usd", "paid_at": "2026-10-15T09:30:00Z"},
	},
	{
		name:     TemplatePaymentFailed,
		required: []string{"first_name", "invoice_number", "amount", "currency"},
		sample:   map[string]any{"first_name": "Alex", "invoice_number": "INV-IRON-01J9Z6Y0N1", "amount": 8900, "currency": "usd", "reason": "card declined"},
	},
	{
		name:     TemplateClassReminder,
		required: []string{"first_name", "class_name", "starts_at"},
		sample:   map[string]any{"first_name": "Alex", "class_name": "Sunrise HIIT", "instructor": "Sam", "starts_at": "2026-10-16T06:30:00-05:00"},
	},
	{
		name:     TemplateSubscriptionCanceled,
		required: []string{"first_name", "plan_name"},
		sample:   map[string]any{"first_name": "Alex", "plan_name": "Unlimited monthly", "ends_at": "2026-11-01T00:00:00Z"},
	},
}

// Rendered is a template executed against data.
type Rendered struct {
	Template string `json:"template"`
	Subject  string `json:"subject"`
	HTML     string `json:"html"`
}

// Renderer executes the embedded templates. Safe for concurrent use.
type Renderer struct {
	templates map[string]*template.Template
	specs     map[string]templateSpec
}

func NewRenderer() (*Renderer, error) {
	funcs := template.FuncMap{
		"money": formatMoney,
		"date":  formatDate,
		"time":  formatClock,
	}

	r := &Renderer{
		templates: make(map[string]*template.Template, len(specs)),
		specs:     make(map[string]templateSpec, len(specs)),
	}
	for _, spec := range specs {
		tpl, err := template.New(spec.name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+spec.name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse email template %s: %w", spec.name, err)
		}
		r.templates[spec.name] = tpl
		r.specs[spec.name] = spec
	}
	return r, nil
}

// Names lists the templates in stable order.
func (r *Renderer) Names() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Renderer) Has(name string) bool {
	_, ok := r.templates[name]
	return ok
}

// Sample returns a copy of the preview data for a template.
func (r *Renderer) Sample(name string) (map[string]any, error) {
	spec, ok := r.specs[name]
	if !ok {
		return nil, ErrUnknownTemplate
	}
	out := make(map[string]any, len(spec.sample))
	for k, v := range spec.sample {
		out[k] = v
	}
	return out, nil
}

func (r *Renderer) Render(name string, data map[string]any) (Rendered, error) {
	tpl, ok := r.templates[name]
	if !ok {
		return Rendered{}, ErrUnknownTemplate
	}
	if data == nil {
		data = map[string]any{}
	}
	for _, key := range r.specs[name].required {
		if v, ok := data[key]; !ok || v == nil || v == "" {
			return Rendered{}, fmt.Errorf("%w: %s", ErrMissingField, key)
		}
	}

	var subject bytes.Buffer
	if err := tpl.ExecuteTemplate(&subject, "subject", data); err != nil {
		return Rendered{}, fmt.Errorf("render %s subject: %w", name, err)
	}
	var body bytes.Buffer
	if err := tpl.ExecuteTemplate(&body, "layout", data); err != nil {
		return Rendered{}, fmt.Errorf("render %s body: %w", name, err)
	}

	return Rendered{
		Template: name,
		Subject:  strings.TrimSpace(html.UnescapeString(subject.String())),
		HTML:     body.String(),
	}, nil
}

// Amounts are minor units. Payload data arrives from JSON so numbers may be float64.
// FormatMoney renders minor units the same way the templates do.
func FormatMoney(cents int64, currency string) string {
	return formatMoney(cents, currency)
}

func formatMoney(amount any, currency any) string {
	cents := toInt64(amount)
	code := strings.ToUpper(strings.TrimSpace(fmt.Sprint(currency)))
	if code == "" || code == "<NIL>" {
		code = "USD"
	}
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	if code == "USD" {
		return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
	}
	return fmt.Sprintf("%s%s %d.%02d", sign, code, cents/100, cents%100)
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(math.Round(n))
	case json.Number:
		i, _ := n.Int64()
		return i
	case string:
		i, _ := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i
	default:
		return 0
	}
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case string:
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(t))
		return parsed, err == nil
	default:
		return time.Time{}, false
	}
}

func formatDate(v any) string {
	t, ok := toTime(v)
	if !ok {
		return "-"
	}
	return t.Format("Mon, Jan 2 2006")
}

func formatClock(v any) string {
	t, ok := toTime(v)
	if !ok {
		return "-"
	}
	return t.Format("3:04 PM")
}
