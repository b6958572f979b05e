package email

import (
	"strings"

	"github.com/monstrox/monstro/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	from := cfg.Email.FromAddress
	switch strings.ToLower(strings.TrimSpace(cfg.Email.Provider)) {
	case "sendgrid":
		return NewSendGrid(SendGridConfig{
			APIKey:    cfg.Email.SendGridAPIKey,
			BaseURL:   cfg.Email.SendGridURL,
			FromEmail: from,
			FromName:  cfg.Email.FromName,
		}, nil)
	case "smtp":
		if cfg.Email.FromName != "" {
			from = cfg.Email.FromName + " <" + cfg.Email.FromAddress + ">"
		}
		return NewSMTP(SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
			From:     from,
		})
	default:
		return NewNoOp(log)
	}
}
