package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/monstrox/monstro/internal/audit/domain"
	"github.com/monstrox/monstro/internal/clock"
	"github.com/monstrox/monstro/internal/config"
	"github.com/monstrox/monstro/internal/email"
	"github.com/monstrox/monstro/internal/invoice/domain"
	"github.com/monstrox/monstro/internal/invoice/format"
	locationdomain "github.com/monstrox/monstro/internal/location/domain"
	memberdomain "github.com/monstrox/monstro/internal/member/domain"
	"github.com/monstrox/monstro/internal/providers/pdf"
	"github.com/monstrox/monstro/internal/queue"
	"github.com/monstrox/monstro/pkg/db/pagination"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    config.Config
	Repo      domain.Repository
	Locations locationdomain.Service
	Members   memberdomain.Service
	PDF       pdf.Renderer
	Queue     queue.Client
	AuditSvc  auditdomain.Service `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	dueDays   int
	repo      domain.Repository
	locations locationdomain.Service
	members   memberdomain.Service
	pdf       pdf.Renderer
	queue     queue.Client
	auditSvc  auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("invoice.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		dueDays:   p.Config.Subscription.InvoiceDueDays,
		repo:      p.Repo,
		locations: p.Locations,
		members:   p.Members,
		pdf:       p.PDF,
		queue:     p.Queue,
		auditSvc:  p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateInvoiceRequest) (*domain.Invoice, error) {
	var invoice *domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, err = s.CreateWithTx(ctx, tx, req)
		return err
	})
	return invoice, err
}

func (s *Service) CreateWithTx(ctx context.Context, tx *gorm.DB, req domain.CreateInvoiceRequest) (*domain.Invoice, error) {
	if req.LocationID == 0 || req.MemberID == 0 {
		return nil, domain.ErrInvalidID
	}
	if len(req.Items) == 0 {
		return nil, domain.ErrInvalidItems
	}
	if req.Tax < 0 {
		return nil, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return nil, domain.ErrInvalidCurrency
	}

	now := s.clock.Now().UTC()
	invoiceID := s.genID.Generate()

	items := make([]domain.InvoiceItem, 0, len(req.Items))
	var subtotal int64
	for _, item := range req.Items {
		description := strings.TrimSpace(item.Description)
		if description == "" {
			return nil, domain.ErrInvalidItems
		}
		if item.Quantity <= 0 {
			return nil, domain.ErrInvalidQuantity
		}
		if item.UnitPrice < 0 {
			return nil, domain.ErrInvalidAmount
		}
		amount := item.Quantity * item.UnitPrice
		subtotal += amount
		items = append(items, domain.InvoiceItem{
			ID:          s.genID.Generate(),
			InvoiceID:   invoiceID,
			Description: description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Amount:      amount,
			CreatedAt:   now,
		})
	}

	slug, err := s.repo.LocationSlug(ctx, tx, req.LocationID)
	if err != nil {
		return nil, err
	}

	dueAt := now.AddDate(0, 0, s.dueDays)
	if req.DueAt != nil {
		dueAt = req.DueAt.UTC()
	}

	invoice := &domain.Invoice{
		ID:             invoiceID,
		LocationID:     req.LocationID,
		MemberID:       req.MemberID,
		SubscriptionID: req.SubscriptionID,
		Number:         format.InvoiceNumber(slug, ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy())),
		Status:         domain.StatusOpen,
		Currency:       currency,
		Subtotal:       subtotal,
		Tax:            req.Tax,
		Total:          subtotal + req.Tax,
		Description:    strings.TrimSpace(req.Description),
		PeriodStart:    utcPtr(req.PeriodStart),
		PeriodEnd:      utcPtr(req.PeriodEnd),
		DueAt:          dueAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, tx, invoice); err != nil {
		return nil, err
	}
	if err := s.repo.InsertItems(ctx, tx, items); err != nil {
		return nil, err
	}
	invoice.Items = items

	s.log.Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("number", invoice.Number),
		zap.Int64("total", invoice.Total),
	)
	return invoice, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	invoice, err := s.repo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.ErrNotFound
	}
	items, err := s.repo.ListItems(ctx, s.db, invoice.ID)
	if err != nil {
		return nil, err
	}
	invoice.Items = items
	return invoice, nil
}

func (s *Service) FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*domain.Invoice, error) {
	paymentIntentID = strings.TrimSpace(paymentIntentID)
	if paymentIntentID == "" {
		return nil, domain.ErrNotFound
	}
	invoice, err := s.repo.FindByPaymentIntent(ctx, s.db, paymentIntentID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.ErrNotFound
	}
	return invoice, nil
}

func (s *Service) ListByMember(ctx context.Context, memberID string, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	mid, err := parseID(memberID)
	if err != nil {
		return domain.ListInvoiceResponse{}, err
	}
	return s.list(ctx, domain.ListFilter{MemberID: mid}, req)
}

func (s *Service) ListByLocation(ctx context.Context, locationID string, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	lid, err := parseID(locationID)
	if err != nil {
		return domain.ListInvoiceResponse{}, err
	}
	filter := domain.ListFilter{LocationID: lid}
	if strings.TrimSpace(req.MemberID) != "" {
		mid, err := parseID(req.MemberID)
		if err != nil {
			return domain.ListInvoiceResponse{}, err
		}
		filter.MemberID = mid
	}
	return s.list(ctx, filter, req)
}

func (s *Service) list(ctx context.Context, filter domain.ListFilter, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status != "" && !validStatus(status) {
		return domain.ListInvoiceResponse{}, domain.ErrInvalidStatus
	}
	filter.Status = status

	items, err := s.repo.List(ctx, s.db, filter, req.Pagination)
	if err != nil {
		return domain.ListInvoiceResponse{}, err
	}
	items, pageInfo := pagination.BuildCursorPageInfo(items, req.Limit(), func(inv *domain.Invoice) pagination.Cursor {
		return pagination.Cursor{ID: int64(inv.ID), CreatedAt: inv.CreatedAt}
	})
	invoices := make([]domain.Invoice, 0, len(items))
	for _, item := range items {
		invoices = append(invoices, *item)
	}
	return domain.ListInvoiceResponse{PageInfo: pageInfo, Invoices: invoices}, nil
}

func (s *Service) ListOverdue(ctx context.Context, now time.Time, afterID snowflake.ID, limit int) ([]domain.Invoice, error) {
	if limit <= 0 {
		limit = pagination.DefaultPageSize
	}
	return s.repo.ListOverdue(ctx, s.db, now.UTC(), afterID, limit)
}

func (s *Service) ClaimOverdueReminder(ctx context.Context, id snowflake.ID, at time.Time) (bool, error) {
	return s.repo.ClaimOverdueReminder(ctx, s.db, id, at.UTC())
}

func (s *Service) ReleaseOverdueReminder(ctx context.Context, id snowflake.ID) error {
	return s.repo.ReleaseOverdueReminder(ctx, s.db, id)
}

func (s *Service) MarkPaid(ctx context.Context, id string, req domain.MarkPaidRequest) (*domain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	paidAt := s.clock.Now().UTC()
	if req.PaidAt != nil {
		paidAt = req.PaidAt.UTC()
	}
	fields := map[string]any{"paid_at": paidAt, "updated_at": s.clock.Now().UTC()}
	if pi := strings.TrimSpace(req.PaymentIntentID); pi != "" {
		fields["payment_intent_id"] = pi
	}

	invoice, err := s.transition(ctx, invoiceID, domain.StatusPaid, fields)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, invoice, "invoice.paid", map[string]any{"total": invoice.Total})
	return invoice, nil
}

func (s *Service) MarkUncollectible(ctx context.Context, id string) (*domain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	invoice, err := s.transition(ctx, invoiceID, domain.StatusUncollectible, map[string]any{"updated_at": s.clock.Now().UTC()})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, invoice, "invoice.uncollectible", nil)
	return invoice, nil
}

func (s *Service) Void(ctx context.Context, id string) (*domain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	invoice, err := s.transition(ctx, invoiceID, domain.StatusVoid, map[string]any{"updated_at": s.clock.Now().UTC()})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, invoice, "invoice.voided", nil)
	return invoice, nil
}

// transition moves an open invoice to status. The WHERE status = 'open'
// guard makes concurrent webhook deliveries and admin actions race safely.
func (s *Service) transition(ctx context.Context, id snowflake.ID, to string, fields map[string]any) (*domain.Invoice, error) {
	changed, err := s.repo.TransitionStatus(ctx, s.db, id, domain.StatusOpen, to, fields)
	if err != nil {
		return nil, err
	}
	invoice, err := s.Get(ctx, id.String())
	if err != nil {
		return nil, err
	}
	if changed {
		return invoice, nil
	}
	if invoice.Status == domain.StatusPaid {
		return invoice, domain.ErrAlreadyPaid
	}
	return invoice, domain.ErrNotOpen
}

func (s *Service) SetPaymentIntent(ctx context.Context, id string, paymentIntentID string) error {
	invoiceID, err := parseID(id)
	if err != nil {
		return err
	}
	return s.repo.UpdateFields(ctx, s.db, invoiceID, map[string]any{
		"payment_intent_id": strings.TrimSpace(paymentIntentID),
		"updated_at":        s.clock.Now().UTC(),
	})
}

func (s *Service) RenderPDF(ctx context.Context, id string) ([]byte, error) {
	invoice, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	location, err := s.locations.Get(ctx, invoice.LocationID.String())
	if err != nil {
		return nil, err
	}
	member, err := s.members.Get(ctx, invoice.MemberID.String())
	if err != nil {
		return nil, err
	}
	return s.pdf.RenderInvoice(ctx, buildDocument(*invoice, *location, *member))
}

func (s *Service) Send(ctx context.Context, id string) error {
	invoice, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if invoice.Status == domain.StatusVoid {
		return domain.ErrNotOpen
	}
	if _, err := s.queue.Enqueue(ctx, queue.TypeInvoiceSend, queue.InvoicePayload{InvoiceID: invoice.ID.String()}); err != nil {
		return err
	}
	s.audit(ctx, invoice, "invoice.sent", nil)
	return nil
}

func (s *Service) audit(ctx context.Context, invoice *domain.Invoice, action string, metadata map[string]any) {
	if s.auditSvc == nil || invoice == nil {
		return
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["number"] = invoice.Number
	if err := s.auditSvc.Record(ctx, auditdomain.Entry{
		LocationID: invoice.LocationID,
		Action:     action,
		TargetType: "invoice",
		TargetID:   invoice.ID.String(),
		Metadata:   metadata,
	}); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func buildDocument(invoice domain.Invoice, location locationdomain.Location, member memberdomain.Member) pdf.InvoiceDocument {
	tz := location.Loc()
	day := func(t time.Time) string { return t.In(tz).Format("Jan 2, 2006") }
	money := func(cents int64) string { return email.FormatMoney(cents, invoice.Currency) }

	doc := pdf.InvoiceDocument{
		LocationName:    location.Name,
		LocationAddress: location.Address,
		LocationEmail:   location.Email,
		Number:          invoice.Number,
		Status:          strings.ToUpper(invoice.Status),
		IssueDate:       day(invoice.CreatedAt),
		DueDate:         day(invoice.DueAt),
		MemberName:      member.FullName(),
		MemberEmail:     member.Email,
		Subtotal:        money(invoice.Subtotal),
		Tax:             money(invoice.Tax),
		Total:           money(invoice.Total),
		AmountDue:       money(invoice.Total),
	}
	if invoice.PaidAt != nil {
		doc.PaidDate = day(*invoice.PaidAt)
	}
	if invoice.Status == domain.StatusPaid || invoice.Status == domain.StatusVoid {
		doc.AmountDue = money(0)
	}
	if invoice.PeriodStart != nil && invoice.PeriodEnd != nil {
		doc.ServicePeriod = day(*invoice.PeriodStart) + " - " + day(*invoice.PeriodEnd)
	}
	for _, item := range invoice.Items {
		doc.Items = append(doc.Items, pdf.InvoiceLine{
			Description: item.Description,
			Qty:         int(item.Quantity),
			UnitPrice:   money(item.UnitPrice),
			Amount:      money(item.Amount),
		})
	}
	return doc
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func validStatus(status string) bool {
	switch status {
	case domain.StatusDraft, domain.StatusOpen, domain.StatusPaid, domain.StatusVoid, domain.StatusUncollectible:
		return true
	}
	return false
}
