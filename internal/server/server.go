package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	achievementdomain "github.com/monstrox/monstro/internal/achievement/domain"
	auditdomain "github.com/monstrox/monstro/internal/audit/domain"
	authdomain "github.com/monstrox/monstro/internal/auth/domain"
	"github.com/monstrox/monstro/internal/authorization"
	classdomain "github.com/monstrox/monstro/internal/class/domain"
	"github.com/monstrox/monstro/internal/config"
	"github.com/monstrox/monstro/internal/email"
	invoicedomain "github.com/monstrox/monstro/internal/invoice/domain"
	locationdomain "github.com/monstrox/monstro/internal/location/domain"
	memberdomain "github.com/monstrox/monstro/internal/member/domain"
	"github.com/monstrox/monstro/internal/observability"
	obsmiddleware "github.com/monstrox/monstro/internal/observability/logger"
	obsmetrics "github.com/monstrox/monstro/internal/observability/metrics"
	obstracing "github.com/monstrox/monstro/internal/observability/tracing"
	paymentdomain "github.com/monstrox/monstro/internal/payment/domain"
	plandomain "github.com/monstrox/monstro/internal/plan/domain"
	"github.com/monstrox/monstro/internal/queue"
	"github.com/monstrox/monstro/internal/ratelimit"
	"github.com/monstrox/monstro/internal/realtime"
	socialdomain "github.com/monstrox/monstro/internal/social/domain"
	subscriptiondomain "github.com/monstrox/monstro/internal/subscription/domain"
	supportdomain "github.com/monstrox/monstro/internal/support/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger

	authSvc         authdomain.Service
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	locationSvc     locationdomain.Service
	memberSvc       memberdomain.Service
	planSvc         plandomain.Service
	subscriptionSvc subscriptiondomain.Service
	invoiceSvc      invoicedomain.Service
	paymentSvc      paymentdomain.Service
	webhookSvc      paymentdomain.WebhookService
	classSvc        classdomain.Service
	achievementSvc  achievementdomain.Service
	socialSvc       socialdomain.Service
	supportSvc      supportdomain.Service
	emailSvc        email.Service
	queue           queue.Client
	hub             *realtime.Hub
	limiter         *ratelimit.Limiter
	obsMetrics      *obsmetrics.Metrics

	heartbeat time.Duration
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	AuthSvc         authdomain.Service
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	LocationSvc     locationdomain.Service
	MemberSvc       memberdomain.Service
	PlanSvc         plandomain.Service
	SubscriptionSvc subscriptiondomain.Service
	InvoiceSvc      invoicedomain.Service
	PaymentSvc      paymentdomain.Service
	WebhookSvc      paymentdomain.WebhookService
	ClassSvc        classdomain.Service
	AchievementSvc  achievementdomain.Service
	SocialSvc       socialdomain.Service
	SupportSvc      supportdomain.Service
	EmailSvc        email.Service
	Queue           queue.Client
	Hub             *realtime.Hub       `optional:"true"`
	Limiter         *ratelimit.Limiter  `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		authSvc:         p.AuthSvc,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		locationSvc:     p.LocationSvc,
		memberSvc:       p.MemberSvc,
		planSvc:         p.PlanSvc,
		subscriptionSvc: p.SubscriptionSvc,
		invoiceSvc:      p.InvoiceSvc,
		paymentSvc:      p.PaymentSvc,
		webhookSvc:      p.WebhookSvc,
		classSvc:        p.ClassSvc,
		achievementSvc:  p.AchievementSvc,
		socialSvc:       p.SocialSvc,
		supportSvc:      p.SupportSvc,
		emailSvc:        p.EmailSvc,
		queue:           p.Queue,
		hub:             p.Hub,
		limiter:         p.Limiter,
		obsMetrics:      p.ObsMetrics,
		heartbeat:       15 * time.Second,
	}

	svc.registerAuthRoutes()
	svc.registerProtectedRoutes()
	svc.registerSupportRoutes()
	svc.registerAdminRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/api/auth")

	auth.POST("/register", s.Register)
	auth.POST("/login", s.Login)
	auth.POST("/refresh", s.Refresh)
	auth.POST("/forgot-password", s.ForgotPassword)
	auth.POST("/reset-password", s.ResetPassword)
}

func (s *Server) registerProtectedRoutes() {
	api := s.engine.Group("/api/protected", s.AuthRequired(), s.UserRequired())

	// -------- Profile --------
	api.GET("/me", s.Me)
	api.PATCH("/me", s.UpdateMe)
	api.POST("/me/push-tokens", s.RegisterPushToken)
	api.GET("/me/reservations", s.ListMyReservations)

	// -------- Locations --------
	api.GET("/locations", s.ListLocations)
	loc := api.Group("/locations/:locationId", LocationContext())
	{
		loc.POST("/join", s.JoinLocation)
		loc.GET("/plans", s.ListLocationPlans)
		loc.GET("/subscriptions", s.ListMySubscriptions)
		loc.POST("/subscriptions", s.Subscribe)
		loc.GET("/invoices", s.ListMyInvoices)
		loc.GET("/classes", s.ListClasses)
		loc.GET("/achievements", s.ListMyAchievements)
		loc.GET("/groups", s.ListGroups)
		loc.POST("/groups", s.CreateGroup)
	}

	// -------- Subscriptions --------
	api.POST("/subscriptions/:id/cancel", s.CancelMySubscription)
	api.POST("/subscriptions/:id/pause", s.PauseMySubscription)
	api.POST("/subscriptions/:id/resume", s.ResumeMySubscription)

	// -------- Invoices --------
	api.GET("/invoices/:id", s.GetMyInvoice)
	api.GET("/invoices/:id/pdf", s.GetMyInvoicePDF)
	api.POST("/invoices/:id/pay", s.PayInvoice)

	// -------- Classes --------
	api.POST("/classes/:id/reservations", s.ReserveClass)
	api.DELETE("/reservations/:id", s.CancelMyReservation)

	// -------- Chats --------
	api.GET("/chats", s.ListChats)
	api.POST("/chats", s.CreateChat)
	api.GET("/chats/:id/messages", s.ListChatMessages)
	api.POST("/chats/:id/messages", s.SendChatMessage)
	api.POST("/chats/:id/read", s.MarkChatRead)
	api.DELETE("/messages/:id", s.DeleteChatMessage)

	// -------- Groups --------
	api.POST("/groups/:id/join", s.JoinGroup)
	api.POST("/groups/:id/leave", s.LeaveGroup)
	api.GET("/groups/:id/moments", s.ListMoments)
	api.POST("/groups/:id/moments", s.PostMoment)
	api.DELETE("/moments/:id", s.DeleteMoment)

	// -------- Reactions --------
	api.GET("/reactions", s.ListReactions)
	api.POST("/reactions", s.React)
	api.DELETE("/reactions", s.Unreact)

	// -------- Realtime --------
	api.GET("/realtime/:channel", s.StreamChannel)
}

func (s *Server) registerSupportRoutes() {
	support := s.engine.Group("/api/support", s.AuthRequired(), s.UserRequired())

	support.POST("/locations/:locationId/conversations", LocationContext(), s.StartSupportConversation)
	support.GET("/conversations/:id/messages", s.ListSupportMessages)
	support.POST("/conversations/:id/messages", s.SendSupportMessage)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin", s.AuthRequired(), s.StaffRequired())

	admin.GET("/locations", s.AdminListLocations)
	admin.POST("/locations", s.AdminCreateLocation)
	admin.POST("/jobs/:job", s.ServiceRequired(), s.EnqueueJob)
	admin.GET("/email-templates", s.ListEmailTemplates)
	admin.POST("/email-templates/:name/preview", s.PreviewEmailTemplate)

	loc := admin.Group("/locations/:locationId", LocationContext())

	// -------- Location --------
	loc.GET("", s.authorizeLocation(authorization.ObjectLocation, authorization.ActionView), s.AdminGetLocation)
	loc.PATCH("", s.authorizeLocation(authorization.ObjectLocation, authorization.ActionUpdate), s.AdminUpdateLocation)
	loc.GET("/staff", s.authorizeLocation(authorization.ObjectLocation, authorization.ActionView), s.AdminListStaff)
	loc.POST("/staff", s.authorizeLocation(authorization.ObjectLocation, authorization.ActionLocationManageStaff), s.AdminAddStaff)
	loc.DELETE("/staff/:userId", s.authorizeLocation(authorization.ObjectLocation, authorization.ActionLocationManageStaff), s.AdminRemoveStaff)

	// -------- Plans --------
	loc.GET("/plans", s.authorizeLocation(authorization.ObjectPlan, authorization.ActionView), s.AdminListPlans)
	loc.POST("/plans", s.authorizeLocation(authorization.ObjectPlan, authorization.ActionCreate), s.AdminCreatePlan)
	loc.PATCH("/plans/:id", s.authorizeLocation(authorization.ObjectPlan, authorization.ActionUpdate), s.AdminUpdatePlan)
	loc.POST("/plans/:id/archive", s.authorizeLocation(authorization.ObjectPlan, authorization.ActionDelete), s.AdminArchivePlan)

	// -------- Members --------
	loc.GET("/members", s.authorizeLocation(authorization.ObjectMember, authorization.ActionView), s.AdminListMembers)
	loc.POST("/members", s.authorizeLocation(authorization.ObjectMember, authorization.ActionCreate), s.AdminCreateMember)
	loc.POST("/members/:id/archive", s.authorizeLocation(authorization.ObjectMember, authorization.ActionDelete), s.AdminArchiveMember)

	// -------- Subscriptions --------
	loc.GET("/subscriptions", s.authorizeLocation(authorization.ObjectSubscription, authorization.ActionView), s.AdminListSubscriptions)
	loc.POST("/subscriptions", s.authorizeLocation(authorization.ObjectSubscription, authorization.ActionCreate), s.AdminCreateSubscription)
	loc.POST("/subscriptions/:id/renew", s.authorizeLocation(authorization.ObjectSubscription, authorization.ActionSubscriptionRenew), s.AdminRenewSubscription)
	loc.POST("/subscriptions/:id/cancel", s.authorizeLocation(authorization.ObjectSubscription, authorization.ActionUpdate), s.AdminCancelSubscription)

	// -------- Invoices --------
	loc.GET("/invoices", s.authorizeLocation(authorization.ObjectInvoice, authorization.ActionView), s.AdminListInvoices)
	loc.GET("/invoices/:id", s.authorizeLocation(authorization.ObjectInvoice, authorization.ActionView), s.AdminGetInvoice)
	loc.GET("/invoices/:id/pdf", s.authorizeLocation(authorization.ObjectInvoice, authorization.ActionView), s.AdminGetInvoicePDF)
	loc.POST("/invoices/:id/void", s.authorizeLocation(authorization.ObjectInvoice, authorization.ActionInvoiceVoid), s.AdminVoidInvoice)
	loc.POST("/invoices/:id/mark-paid", s.authorizeLocation(authorization.ObjectInvoice, authorization.ActionInvoiceMarkPaid), s.AdminMarkInvoicePaid)
	loc.POST("/invoices/:id/send", s.authorizeLocation(authorization.ObjectInvoice, authorization.ActionInvoiceSend), s.AdminSendInvoice)

	// -------- Classes --------
	loc.GET("/classes", s.authorizeLocation(authorization.ObjectClass, authorization.ActionView), s.ListClasses)
	loc.POST("/classes", s.authorizeLocation(authorization.ObjectClass, authorization.ActionCreate), s.AdminCreateClass)
	loc.POST("/classes/:id/cancel", s.authorizeLocation(authorization.ObjectClass, authorization.ActionUpdate), s.AdminCancelClass)
	loc.GET("/classes/:id/reservations", s.authorizeLocation(authorization.ObjectClass, authorization.ActionView), s.AdminListReservations)
	loc.POST("/reservations/:id/check-in", s.authorizeLocation(authorization.ObjectClass, authorization.ActionClassCheckIn), s.AdminCheckIn)

	// -------- Achievements --------
	loc.GET("/achievements", s.authorizeLocation(authorization.ObjectAchievement, authorization.ActionView), s.AdminListAchievements)
	loc.POST("/achievements", s.authorizeLocation(authorization.ObjectAchievement, authorization.ActionCreate), s.AdminCreateAchievement)
	loc.POST("/achievements/:id/archive", s.authorizeLocation(authorization.ObjectAchievement, authorization.ActionDelete), s.AdminArchiveAchievement)

	// -------- Support --------
	loc.GET("/support/assistant", s.authorizeLocation(authorization.ObjectSupportAssistant, authorization.ActionView), s.AdminGetAssistant)
	loc.PUT("/support/assistant", s.authorizeLocation(authorization.ObjectSupportAssistant, authorization.ActionUpdate), s.AdminUpsertAssistant)
	loc.GET("/support/conversations", s.authorizeLocation(authorization.ObjectSupportConversation, authorization.ActionView), s.AdminListConversations)
	loc.GET("/support/conversations/:id/messages", s.authorizeLocation(authorization.ObjectSupportConversation, authorization.ActionView), s.AdminConversationMessages)
	loc.POST("/support/conversations/:id/reply", s.authorizeLocation(authorization.ObjectSupportConversation, authorization.ActionConversationReply), s.AdminReplyConversation)
	loc.POST("/support/conversations/:id/close", s.authorizeLocation(authorization.ObjectSupportConversation, authorization.ActionConversationClose), s.AdminCloseConversation)

	// -------- Email templates --------
	loc.POST("/email-templates/:name/test", s.authorizeLocation(authorization.ObjectEmailTemplate, authorization.ActionEmailTemplateTest), s.SendTestEmail)

	// -------- Audit --------
	loc.GET("/audit-logs", s.authorizeLocation(authorization.ObjectAuditLog, authorization.ActionView), s.ListAuditLogs)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/api/webhooks/stripe", s.HandleStripeWebhook)
}
