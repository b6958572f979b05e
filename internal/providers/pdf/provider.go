package pdf

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)

// Renderer produces PDF documents for billing records.
type Renderer interface {
	RenderInvoice(ctx context.Context, doc InvoiceDocument) ([]byte, error)
}
