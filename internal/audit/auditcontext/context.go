// Package auditcontext carries request facts the audit trail records.
package auditcontext

import (
	"context"
	"strings"
)

type clientKey struct{}

type client struct {
	ip        string
	userAgent string
}

func WithClient(ctx context.Context, ipAddress, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey{}, client{
		ip:        strings.TrimSpace(ipAddress),
		userAgent: strings.TrimSpace(userAgent),
	})
}

func IPAddressFromContext(ctx context.Context) string {
	if c, ok := ctx.Value(clientKey{}).(client); ok {
		return c.ip
	}
	return ""
}

func UserAgentFromContext(ctx context.Context) string {
	if c, ok := ctx.Value(clientKey{}).(client); ok {
		return c.userAgent
	}
	return ""
}
