package providers

import (
	"github.com/monstrox/monstro/internal/providers/email"
	"github.com/monstrox/monstro/internal/providers/expo"
	"github.com/monstrox/monstro/internal/providers/novu"
	"github.com/monstrox/monstro/internal/providers/openai"
	"github.com/monstrox/monstro/internal/providers/pdf"
	"github.com/monstrox/monstro/internal/providers/stripe"
	"go.uber.org/fx"
)

// Module bundles the outbound vendor clients.
var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
	novu.Module,
	expo.Module,
	openai.Module,
	stripe.Module,
)
