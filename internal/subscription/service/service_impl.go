package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	achievementdomain "github.com/monstrox/monstro/internal/achievement/domain"
	auditdomain "github.com/monstrox/monstro/internal/audit/domain"
	"github.com/monstrox/monstro/internal/clock"
	"github.com/monstrox/monstro/internal/email"
	invoicedomain "github.com/monstrox/monstro/internal/invoice/domain"
	locationdomain "github.com/monstrox/monstro/internal/location/domain"
	memberdomain "github.com/monstrox/monstro/internal/member/domain"
	plandomain "github.com/monstrox/monstro/internal/plan/domain"
	"github.com/monstrox/monstro/internal/queue"
	"github.com/monstrox/monstro/internal/subscription/domain"
	"github.com/monstrox/monstro/pkg/db"
	"github.com/monstrox/monstro/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	Locations    locationdomain.Service
	Members      memberdomain.Service
	Plans        plandomain.Service
	Invoices     invoicedomain.Service
	Queue        queue.Client
	Emails       email.Dispatcher
	Charger      domain.Charger            `optional:"true"`
	Achievements achievementdomain.Service `optional:"true"`
	AuditSvc     auditdomain.Service       `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	locations    locationdomain.Service
	members      memberdomain.Service
	plans        plandomain.Service
	invoices     invoicedomain.Service
	queue        queue.Client
	emails       email.Dispatcher
	charger      domain.Charger
	achievements achievementdomain.Service
	auditSvc     auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("subscription.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		locations:    p.Locations,
		members:      p.Members,
		plans:        p.Plans,
		invoices:     p.Invoices,
		queue:        p.Queue,
		emails:       p.Emails,
		charger:      p.Charger,
		achievements: p.Achievements,
		auditSvc:     p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, locationID string, req domain.CreateSubscriptionRequest) (*domain.CreateSubscriptionResponse, error) {
	location, err := s.locations.Get(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if location.Status != locationdomain.StatusActive {
		return nil, memberdomain.ErrLocationInactive
	}
	member, err := s.members.Get(ctx, req.MemberID)
	if err != nil {
		return nil, err
	}
	membership, err := s.members.GetMembership(ctx, location.ID, member.ID)
	if err != nil {
		return nil, err
	}
	if membership.Status != memberdomain.MembershipActive {
		return nil, memberdomain.ErrNotMember
	}
	plan, err := s.plans.Get(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if plan.LocationID != location.ID || plan.Status != plandomain.StatusActive {
		return nil, domain.ErrPlanUnavailable
	}

	now := s.clock.Now().UTC().Truncate(time.Second)
	end := plan.NextPeriodEnd(now)
	id := s.genID.Generate()
	sub := domain.Subscription{
		ID:                 id,
		LocationID:         location.ID,
		MemberID:           member.ID,
		PlanID:             plan.ID,
		Status:             domain.StatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   end,
		RenewalTaskID:      queue.RenewalTaskID(id.String(), end),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	var invoice *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindLive(ctx, tx, member.ID, plan.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrAlreadySubscribed
		}
		if err := s.repo.Insert(ctx, tx, &sub); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrAlreadySubscribed
			}
			return err
		}
		invoice, err = s.invoices.CreateWithTx(ctx, tx, periodInvoice(sub, *plan))
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.scheduleRenewal(ctx, sub); err != nil {
		// the recovery sweep picks this up once the period ends
		s.log.Warn("renewal schedule failed", zap.String("subscription_id", sub.ID.String()), zap.Error(err))
	}
	s.collect(ctx, invoice, member)
	s.evaluate(ctx, sub, achievementdomain.TriggerPlanSignup)
	s.audit(ctx, sub, "subscription.created", map[string]any{"plan_id": plan.ID.String()})

	s.log.Info("subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("member_id", member.ID.String()),
		zap.String("plan_id", plan.ID.String()),
		zap.Time("period_end", end),
	)
	return &domain.CreateSubscriptionResponse{Subscription: sub, Invoice: *invoice}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Subscription, error) {
	subID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, subID)
}

func (s *Service) get(ctx context.Context, id snowflake.ID) (*domain.Subscription, error) {
	sub, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.ErrNotFound
	}
	return sub, nil
}

func (s *Service) ListByMember(ctx context.Context, memberID string, req domain.ListSubscriptionRequest) (domain.ListSubscriptionResponse, error) {
	mid, err := parseID(memberID)
	if err != nil {
		return domain.ListSubscriptionResponse{}, err
	}
	return s.list(ctx, domain.ListFilter{MemberID: mid}, req)
}

func (s *Service) ListByLocation(ctx context.Context, locationID string, req domain.ListSubscriptionRequest) (domain.ListSubscriptionResponse, error) {
	lid, err := parseID(locationID)
	if err != nil {
		return domain.ListSubscriptionResponse{}, err
	}
	filter := domain.ListFilter{LocationID: lid}
	if strings.TrimSpace(req.MemberID) != "" {
		if filter.MemberID, err = parseID(req.MemberID); err != nil {
			return domain.ListSubscriptionResponse{}, err
		}
	}
	return s.list(ctx, filter, req)
}

func (s *Service) list(ctx context.Context, filter domain.ListFilter, req domain.ListSubscriptionRequest) (domain.ListSubscriptionResponse, error) {
	status := strings.ToLower(strings.TrimSpace(req.Status))
	switch status {
	case "", domain.StatusActive, domain.StatusPastDue, domain.StatusPaused, domain.StatusCanceled:
	default:
		return domain.ListSubscriptionResponse{}, domain.ErrInvalidStatus
	}
	filter.Status = status

	subs, err := s.repo.List(ctx, s.db, filter, req.Pagination)
	if err != nil {
		return domain.ListSubscriptionResponse{}, err
	}
	subs, pageInfo := pagination.BuildCursorPageInfo(subs, req.Limit(), func(sub domain.Subscription) pagination.Cursor {
		return pagination.Cursor{ID: int64(sub.ID), CreatedAt: sub.CreatedAt}
	})
	if subs == nil {
		subs = []domain.Subscription{}
	}
	return domain.ListSubscriptionResponse{PageInfo: pageInfo, Subscriptions: subs}, nil
}

func (s *Service) Cancel(ctx context.Context, id string, req domain.CancelRequest) (*domain.Subscription, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == domain.StatusCanceled {
		return nil, domain.ErrInvalidTransition
	}
	now := s.clock.Now().UTC()

	if req.AtPeriodEnd {
		if !sub.Live() {
			return nil, domain.ErrInvalidTransition
		}
		if err := s.repo.UpdateFields(ctx, s.db, sub.ID, map[string]any{
			"cancel_at_period_end": true,
			"updated_at":           now,
		}); err != nil {
			return nil, err
		}
		s.audit(ctx, *sub, "subscription.cancel_scheduled", nil)
		return s.get(ctx, sub.ID)
	}

	changed, err := s.repo.TransitionStatus(ctx, s.db, sub.ID, []string{sub.Status}, domain.StatusCanceled, map[string]any{
		"canceled_at":     now,
		"renewal_task_id": "",
		"updated_at":      now,
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domain.ErrInvalidTransition
	}
	s.removeRenewal(ctx, *sub)
	s.notifyCanceled(ctx, *sub, nil)
	s.audit(ctx, *sub, "subscription.canceled", nil)
	return s.get(ctx, sub.ID)
}

// Pause stops renewals. The current period is not refunded.
func (s *Service) Pause(ctx context.Context, id string) (*domain.Subscription, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(sub.Status, domain.StatusPaused) {
		return nil, domain.ErrInvalidTransition
	}
	now := s.clock.Now().UTC()
	changed, err := s.repo.TransitionStatus(ctx, s.db, sub.ID, []string{sub.Status}, domain.StatusPaused, map[string]any{
		"paused_at":       now,
		"renewal_task_id": "",
		"updated_at":      now,
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domain.ErrInvalidTransition
	}
	s.removeRenewal(ctx, *sub)
	s.audit(ctx, *sub, "subscription.paused", nil)
	return s.get(ctx, sub.ID)
}

// Resume restarts billing with a fresh period starting now.
func (s *Service) Resume(ctx context.Context, id string) (*domain.Subscription, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != domain.StatusPaused {
		return nil, domain.ErrInvalidTransition
	}
	plan, err := s.plans.Get(ctx, sub.PlanID.String())
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC().Truncate(time.Second)
	end := plan.NextPeriodEnd(now)
	taskID := queue.RenewalTaskID(sub.ID.String(), end)
	changed, err := s.repo.TransitionStatus(ctx, s.db, sub.ID, []string{domain.StatusPaused}, domain.StatusActive, map[string]any{
		"current_period_start": now,
		"current_period_end":   end,
		"paused_at":            nil,
		"renewal_task_id":      taskID,
		"updated_at":           now,
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domain.ErrInvalidTransition
	}
	resumed, err := s.get(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if err := s.scheduleRenewal(ctx, *resumed); err != nil {
		s.log.Warn("renewal schedule failed", zap.String("subscription_id", sub.ID.String()), zap.Error(err))
	}
	s.audit(ctx, *resumed, "subscription.resumed", nil)
	return resumed, nil
}

func (s *Service) Renew(ctx context.Context, id string, expectedPeriodEnd time.Time) (*domain.RenewResult, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	log := s.log.With(zap.String("subscription_id", sub.ID.String()))

	expectedTaskID := queue.RenewalTaskID(sub.ID.String(), expectedPeriodEnd)
	if !sub.Live() || sub.RenewalTaskID != expectedTaskID {
		log.Info("renewal skipped", zap.String("status", sub.Status), zap.Time("expected_period_end", expectedPeriodEnd))
		return &domain.RenewResult{Subscription: *sub}, nil
	}

	now := s.clock.Now().UTC()
	if sub.CancelAtPeriodEnd {
		changed, err := s.repo.TransitionStatus(ctx, s.db, sub.ID, []string{domain.StatusActive, domain.StatusPastDue}, domain.StatusCanceled, map[string]any{
			"canceled_at":     now,
			"renewal_task_id": "",
			"updated_at":      now,
		})
		if err != nil {
			return nil, err
		}
		canceled, err := s.get(ctx, sub.ID)
		if err != nil {
			return nil, err
		}
		if changed {
			end := sub.CurrentPeriodEnd
			s.notifyCanceled(ctx, *canceled, &end)
			s.audit(ctx, *canceled, "subscription.canceled", map[string]any{"at_period_end": true})
			log.Info("subscription canceled at period end")
		}
		return &domain.RenewResult{Subscription: *canceled, Canceled: changed}, nil
	}

	plan, err := s.plans.Get(ctx, sub.PlanID.String())
	if err != nil {
		return nil, err
	}
	start := sub.CurrentPeriodEnd
	end := plan.NextPeriodEnd(start)
	next := *sub
	next.CurrentPeriodStart = start
	next.CurrentPeriodEnd = end
	next.RenewalTaskID = queue.RenewalTaskID(sub.ID.String(), end)

	var invoice *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		advanced, err := s.repo.AdvancePeriod(ctx, tx, sub.ID, expectedTaskID, map[string]any{
			"current_period_start": start,
			"current_period_end":   end,
			"renewal_task_id":      next.RenewalTaskID,
			"updated_at":           now,
		})
		if err != nil || !advanced {
			return err
		}
		invoice, err = s.invoices.CreateWithTx(ctx, tx, periodInvoice(next, *plan))
		return err
	})
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		log.Info("renewal already applied")
		current, err := s.get(ctx, sub.ID)
		if err != nil {
			return nil, err
		}
		return &domain.RenewResult{Subscription: *current}, nil
	}

	renewed, err := s.get(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if err := s.scheduleRenewal(ctx, *renewed); err != nil {
		log.Warn("renewal schedule failed", zap.Error(err))
	}
	if member, err := s.members.Get(ctx, sub.MemberID.String()); err == nil {
		s.collect(ctx, invoice, member)
	} else {
		log.Warn("member lookup failed", zap.Error(err))
	}

	log.Info("subscription renewed", zap.Time("period_end", end), zap.String("invoice_id", invoice.ID.String()))
	return &domain.RenewResult{Subscription: *renewed, Renewed: true, Invoice: invoice}, nil
}

func (s *Service) TransitionIf(ctx context.Context, id snowflake.ID, from, to string) (bool, error) {
	if !domain.CanTransition(from, to) {
		return false, domain.ErrInvalidTransition
	}
	now := s.clock.Now().UTC()
	fields := map[string]any{"updated_at": now}
	if to == domain.StatusCanceled {
		fields["canceled_at"] = now
		fields["renewal_task_id"] = ""
	}
	changed, err := s.repo.TransitionStatus(ctx, s.db, id, []string{from}, to, fields)
	if err != nil || !changed {
		return changed, err
	}
	sub, err := s.get(ctx, id)
	if err != nil {
		return true, err
	}
	if to == domain.StatusCanceled {
		s.removeRenewal(ctx, *sub)
	}
	s.audit(ctx, *sub, "subscription."+to, map[string]any{"from": from})
	return true, nil
}

func (s *Service) ListDueForRenewal(ctx context.Context, before time.Time, afterID snowflake.ID, limit int) ([]domain.Subscription, error) {
	if limit <= 0 {
		limit = pagination.DefaultPageSize
	}
	return s.repo.ListDueForRenewal(ctx, s.db, before.UTC(), afterID, limit)
}

func (s *Service) EnsureRenewalScheduled(ctx context.Context, sub domain.Subscription) error {
	if !sub.Live() {
		return nil
	}
	want := queue.RenewalTaskID(sub.ID.String(), sub.CurrentPeriodEnd)
	if sub.RenewalTaskID != want {
		if err := s.repo.UpdateFields(ctx, s.db, sub.ID, map[string]any{"renewal_task_id": want}); err != nil {
			return err
		}
		sub.RenewalTaskID = want
	}
	return s.scheduleRenewal(ctx, sub)
}

func (s *Service) scheduleRenewal(ctx context.Context, sub domain.Subscription) error {
	at := sub.CurrentPeriodEnd
	if now := s.clock.Now(); at.Before(now) {
		at = now
	}
	_, err := s.queue.Ensure(ctx, queue.TypeSubscriptionRenew, queue.RenewalPayload{
		SubscriptionID:    sub.ID.String(),
		ExpectedPeriodEnd: sub.CurrentPeriodEnd,
	}, at, sub.RenewalTaskID)
	return err
}

func (s *Service) removeRenewal(ctx context.Context, sub domain.Subscription) {
	if sub.RenewalTaskID == "" {
		return
	}
	if err := s.queue.Remove(ctx, queue.QueueSubscriptionRenewal, sub.RenewalTaskID); err != nil {
		s.log.Warn("renewal task removal failed", zap.String("task_id", sub.RenewalTaskID), zap.Error(err))
	}
}

// collect settles free invoices immediately, charges a saved card when the
// member has one and otherwise emails the invoice.
func (s *Service) collect(ctx context.Context, invoice *invoicedomain.Invoice, member *memberdomain.Member) {
	log := s.log.With(zap.String("invoice_id", invoice.ID.String()))
	if invoice.Total == 0 {
		if _, err := s.invoices.MarkPaid(ctx, invoice.ID.String(), invoicedomain.MarkPaidRequest{}); err != nil && !errors.Is(err, invoicedomain.ErrAlreadyPaid) {
			log.Warn("free invoice settle failed", zap.Error(err))
		}
		return
	}
	if s.charger != nil && member.StripePaymentMethodID != nil && *member.StripePaymentMethodID != "" {
		err := s.charger.ChargeInvoice(ctx, invoice.ID.String())
		if err == nil {
			return
		}
		log.Warn("off-session charge failed, emailing invoice", zap.Error(err))
	}
	if err := s.invoices.Send(ctx, invoice.ID.String()); err != nil {
		log.Warn("invoice send failed", zap.Error(err))
	}
}

func (s *Service) evaluate(ctx context.Context, sub domain.Subscription, trigger string) {
	if s.achievements == nil {
		return
	}
	if _, err := s.achievements.Evaluate(ctx, sub.LocationID, sub.MemberID, trigger); err != nil {
		s.log.Warn("achievement evaluation failed", zap.String("trigger", trigger), zap.Error(err))
	}
}

func (s *Service) notifyCanceled(ctx context.Context, sub domain.Subscription, endsAt *time.Time) {
	member, err := s.members.Get(ctx, sub.MemberID.String())
	if err != nil || member.Email == "" {
		return
	}
	plan, err := s.plans.Get(ctx, sub.PlanID.String())
	if err != nil {
		return
	}
	data := map[string]any{
		"first_name": member.FirstName,
		"plan_name":  plan.Name,
	}
	if endsAt != nil {
		data["ends_at"] = endsAt.UTC().Format(time.RFC3339)
	}
	err = s.emails.Enqueue(ctx, email.Message{
		To:         member.Email,
		Template:   email.TemplateSubscriptionCanceled,
		Data:       data,
		LocationID: sub.LocationID.String(),
	})
	if err != nil {
		s.log.Warn("cancellation email failed", zap.String("subscription_id", sub.ID.String()), zap.Error(err))
	}
}

func (s *Service) audit(ctx context.Context, sub domain.Subscription, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.Record(ctx, auditdomain.Entry{
		LocationID: sub.LocationID,
		Action:     action,
		TargetType: "subscription",
		TargetID:   sub.ID.String(),
		Metadata:   metadata,
	}); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func periodInvoice(sub domain.Subscription, plan plandomain.Plan) invoicedomain.CreateInvoiceRequest {
	subID := sub.ID
	start, end := sub.CurrentPeriodStart, sub.CurrentPeriodEnd
	return invoicedomain.CreateInvoiceRequest{
		LocationID:     sub.LocationID,
		MemberID:       sub.MemberID,
		SubscriptionID: &subID,
		Currency:       plan.Currency,
		Description:    plan.Name,
		PeriodStart:    &start,
		PeriodEnd:      &end,
		Items: []invoicedomain.ItemRequest{{
			Description: plan.Name,
			Quantity:    1,
			UnitPrice:   plan.Price,
		}},
	}
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
