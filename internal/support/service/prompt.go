package service

import (
	"context"
	"fmt"
	"strings"

	memberdomain "github.com/monstrox/monstro/internal/member/domain"
	"github.com/monstrox/monstro/internal/support/domain"
	"go.uber.org/zap"
)

const basePrompt = `You are the support assistant for a gym. Answer member questions briefly and accurately using the context below and the tools you are given. Never invent prices, dates or balances. If you cannot help, or the member asks for a person, call escalate_to_staff.`

const handoffReply = "Thanks for reaching out. I've passed this conversation to our team and a staff member will reply here shortly."

// normalizePhrase lowercases and collapses whitespace.
func normalizePhrase(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), " ")
}

func normalizePhrases(values []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, v := range values {
		p := normalizePhrase(v)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// matchTrigger returns the first phrase contained in content.
func matchTrigger(phrases []string, content string) (string, bool) {
	text := normalizePhrase(content)
	for _, p := range phrases {
		p = normalizePhrase(p)
		if p != "" && strings.Contains(text, p) {
			return p, true
		}
	}
	return "", false
}

// systemPrompt assembles the assistant instructions with what we know about
// the location and the member. Context lookups that fail are left out.
func (s *Service) systemPrompt(ctx context.Context, assistant *domain.Assistant, member *memberdomain.Member, locationID string) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	if assistant.Instructions != "" {
		b.WriteString("\n\n")
		b.WriteString(assistant.Instructions)
	}

	if loc, err := s.locations.Get(ctx, locationID); err == nil {
		b.WriteString("\n\n## Gym\n")
		fmt.Fprintf(&b, "Name: %s\n", loc.Name)
		if loc.Email != "" {
			fmt.Fprintf(&b, "Email: %s\n", loc.Email)
		}
		if loc.Phone != "" {
			fmt.Fprintf(&b, "Phone: %s\n", loc.Phone)
		}
		if loc.Address != "" {
			fmt.Fprintf(&b, "Address: %s\n", loc.Address)
		}
		fmt.Fprintf(&b, "Timezone: %s\n", loc.Timezone)
		fmt.Fprintf(&b, "Current time: %s\n", s.clock.Now().In(loc.Loc()).Format("Mon 2 Jan 2006 15:04"))
	} else {
		s.log.Debug("prompt: location lookup failed", zap.Error(err))
	}

	if plans, err := s.plans.List(ctx, locationID, ""); err == nil && len(plans) > 0 {
		b.WriteString("\n## Plans\n")
		for _, p := range plans {
			fmt.Fprintf(&b, "- %s: %s %s every %d %s\n", p.Name, formatAmount(p.Price), strings.ToUpper(p.Currency), p.IntervalCount, p.Interval)
		}
	}

	b.WriteString("\n## Member\n")
	fmt.Fprintf(&b, "Name: %s\n", strings.TrimSpace(member.FirstName+" "+member.LastName))
	if subs, err := s.memberSubscriptions(ctx, member.ID, locationID); err == nil {
		if len(subs) == 0 {
			b.WriteString("Subscriptions: none\n")
		}
		for _, sub := range subs {
			fmt.Fprintf(&b, "Subscription: %s (%s) until %s\n", sub.Plan, sub.Status, sub.CurrentPeriodEnd.Format("2 Jan 2006"))
		}
	}
	if invoices, err := s.openInvoices(ctx, member.ID, locationID); err == nil {
		fmt.Fprintf(&b, "Open invoices: %d\n", len(invoices))
	}
	if points, err := s.memberPoints(ctx, member.ID, locationID); err == nil {
		fmt.Fprintf(&b, "Points: %d\n", points.Points)
	}
	return b.String()
}

// formatAmount renders minor units as a decimal amount.
func formatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
