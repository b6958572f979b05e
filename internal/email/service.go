package email

import (
	"context"
	"strings"

	emailprovider "github.com/monstrox/monstro/internal/providers/email"
	"github.com/monstrox/monstro/internal/queue"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// TemplateInfo describes a template for the admin listing.
type TemplateInfo struct {
	Name   string         `json:"name"`
	Sample map[string]any `json:"sample_data"`
}

// Service backs the admin template endpoints.
type Service interface {
	ListTemplates() []TemplateInfo
	Preview(name string, data map[string]any) (Rendered, error)
	SendTest(ctx context.Context, name, to string, data map[string]any) error
}

type ServiceParams struct {
	fx.In

	Renderer *Renderer
	Provider emailprovider.Provider
	Log      *zap.Logger
}

type service struct {
	renderer *Renderer
	provider emailprovider.Provider
	log      *zap.Logger
}

func NewService(p ServiceParams) Service {
	return &service{
		renderer: p.Renderer,
		provider: p.Provider,
		log:      p.Log.Named("email.service"),
	}
}

func (s *service) ListTemplates() []TemplateInfo {
	names := s.renderer.Names()
	out := make([]TemplateInfo, 0, len(names))
	for _, name := range names {
		sample, _ := s.renderer.Sample(name)
		out = append(out, TemplateInfo{Name: name, Sample: sample})
	}
	return out
}

// Preview renders with the sample data, overridden key by key by data.
func (s *service) Preview(name string, data map[string]any) (Rendered, error) {
	merged, err := s.renderer.Sample(name)
	if err != nil {
		return Rendered{}, err
	}
	for k, v := range data {
		merged[k] = v
	}
	return s.renderer.Render(name, merged)
}

// SendTest delivers synchronously so the admin sees provider errors directly.
func (s *service) SendTest(ctx context.Context, name, to string, data map[string]any) error {
	to = strings.ToLower(strings.TrimSpace(to))
	if to == "" || !strings.Contains(to, "@") {
		return ErrInvalidRecipient
	}
	merged, err := s.renderer.Sample(name)
	if err != nil {
		return err
	}
	for k, v := range data {
		merged[k] = v
	}
	if err := deliver(ctx, s.renderer, s.provider, queue.EmailPayload{To: to, Template: name, Data: merged}); err != nil {
		return err
	}
	s.log.Info("test email sent", zap.String("template", name), zap.String("provider", s.provider.Name()))
	return nil
}
