package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/claimledger/internal/access"
	"github.com/MarkoPoloResearchLab/claimledger/internal/notify"
	"github.com/MarkoPoloResearchLab/claimledger/internal/ratings"
	"github.com/MarkoPoloResearchLab/claimledger/internal/turnover"
	"github.com/MarkoPoloResearchLab/claimledger/pkg/claims"
	"github.com/MarkoPoloResearchLab/claimledger/pkg/finance"
)

// ErrServerConfig reports invalid server wiring.
var ErrServerConfig = errors.New("invalid server config")

// SyncControl reads feed bookkeeping for the status endpoint and runs
// on-demand feed passes.
type SyncControl interface {
	Status(ctx context.Context) (turnover.SyncRun, error)
	RunOnce(ctx context.Context) (turnover.Report, error)
}

// Server exposes claim, dispute, finance, and ratings operations over
// HTTP for the bot frontend.
type Server struct {
	cfg     Config
	logger  *zap.Logger
	claims  *claims.Service
	finance *finance.Service
	goals   *finance.Goals
	ratings *ratings.Service
	sync    SyncControl
	outbox  notify.Outbox
	nowFn   func() int64
}

// NewServer wires a Server. The outbox and sync control are optional;
// the corresponding surfaces degrade gracefully without them.
func NewServer(cfg Config, claimService *claims.Service, financeService *finance.Service, goalService *finance.Goals, ratingService *ratings.Service, syncControl SyncControl, outbox notify.Outbox, now func() int64, logger *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServerConfig, err)
	}
	if claimService == nil || financeService == nil || goalService == nil || ratingService == nil {
		return nil, fmt.Errorf("%w: service dependencies are required", ErrServerConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrServerConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		logger:  logger,
		claims:  claimService,
		finance: financeService,
		goals:   goalService,
		ratings: ratingService,
		sync:    syncControl,
		outbox:  outbox,
		nowFn:   now,
	}, nil
}

// Router builds the gin engine with all routes attached.
func (server *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(bearerMiddleware([]byte(server.cfg.TokenSigningKey), server.cfg.TokenIssuer))

	api.GET("/profile", server.handleProfile)
	api.POST("/claims", server.requireCapability(access.CapClaimTurnover), server.handleClaim)
	api.POST("/disputes", server.requireCapability(access.CapOpenDispute), server.handleOpenDispute)
	api.POST("/disputes/:dispute_id/cancel", server.requireCapability(access.CapOpenDispute), server.handleCancelDispute)
	api.POST("/disputes/:dispute_id/resolve", server.requireCapability(access.CapResolveDispute), server.handleResolveDispute)
	api.GET("/balance", server.handleBalance)
	api.GET("/entries", server.handleEntries)
	api.POST("/withdrawals", server.requireCapability(access.CapRequestWithdrawal), server.handleRequestWithdrawal)
	api.POST("/withdrawals/:withdrawal_id/approve", server.requireCapability(access.CapReviewWithdrawal), server.handleWithdrawalAction(finance.WithdrawalApproved))
	api.POST("/withdrawals/:withdrawal_id/reject", server.requireCapability(access.CapReviewWithdrawal), server.handleWithdrawalAction(finance.WithdrawalRejected))
	api.POST("/withdrawals/:withdrawal_id/paid", server.requireCapability(access.CapReviewWithdrawal), server.handleWithdrawalAction(finance.WithdrawalPaid))
	api.POST("/supertasks/:supertask_id/close", server.requireCapability(access.CapCloseSupertask), server.handleCloseSupertask)
	api.GET("/ratings/:period", server.requireCapability(access.CapViewRatings), server.handleRatings)
	api.GET("/sync/status", server.handleSyncStatus)
	api.POST("/sync/run", server.requireCapability(access.CapTriggerSync), server.handleSyncRun)

	return router
}

// Run boots the HTTP server and blocks until the context ends.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    server.cfg.ListenAddr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("api listening", zap.String("addr", server.cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// requireCapability resolves the caller's registration and rejects
// requests outside the role's surface.
func (server *Server) requireCapability(capability access.Capability) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		userID, err := claims.NewUserID(authenticatedUser(ctx))
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid token subject"))
			return
		}
		registration, err := server.claims.Registration(ctx.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, claims.ErrUnknownRegistration) {
				ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse("unregistered", "caller is not registered"))
				return
			}
			server.logger.Error("registration lookup failed", zap.String("user_id", userID.String()), zap.Error(err))
			ctx.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse("internal", "registration lookup failed"))
			return
		}
		if !access.Allowed(registration.Role, capability) {
			ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse("forbidden", fmt.Sprintf("role %s may not %s", registration.Role, capability)))
			return
		}
		ctx.Next()
	}
}

func (server *Server) handleProfile(ctx *gin.Context) {
	userID, err := claims.NewUserID(authenticatedUser(ctx))
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid token subject"))
		return
	}
	registration, err := server.claims.Registration(ctx.Request.Context(), userID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	capabilities := access.Capabilities(registration.Role)
	names := make([]string, 0, len(capabilities))
	for _, capability := range capabilities {
		names = append(names, string(capability))
	}
	ctx.JSON(http.StatusOK, gin.H{
		"user_id":      registration.UserID.String(),
		"group_id":     registration.GroupID.String(),
		"role":         registration.Role.String(),
		"capabilities": names,
	})
}

type claimRequest struct {
	TurnoverID string `json:"turnover_id"`
}

func (server *Server) handleClaim(ctx *gin.Context) {
	userID, _ := claims.NewUserID(authenticatedUser(ctx))
	var request claimRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	turnoverID, err := claims.NewTurnoverID(request.TurnoverID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_turnover_id", err.Error()))
		return
	}

	claim, err := server.claims.Claim(ctx.Request.Context(), turnoverID, userID)
	if err != nil && !errors.Is(err, claims.ErrBonusSyncDegraded) {
		server.respondError(ctx, err)
		return
	}

	server.enqueue(ctx.Request.Context(), notify.TopicClaims, notify.Envelope{
		Event:  notify.EventClaimConfirmed,
		UserID: claim.Claimant.String(),
		Data:   map[string]string{"claim_id": claim.ID.String(), "turnover_id": claim.TurnoverID.String()},
	})

	status := http.StatusCreated
	payload := gin.H{"claim": claimPayloadFrom(claim)}
	if err != nil {
		// The claim committed; only the bonus recomputation is behind.
		status = http.StatusAccepted
		payload["warning"] = "bonus sync degraded"
	}
	ctx.JSON(status, payload)
}

type openDisputeRequest struct {
	ClaimID string `json:"claim_id"`
}

func (server *Server) handleOpenDispute(ctx *gin.Context) {
	userID, _ := claims.NewUserID(authenticatedUser(ctx))
	var request openDisputeRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	claimID, err := claims.NewClaimID(request.ClaimID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_claim_id", err.Error()))
		return
	}

	dispute, err := server.claims.OpenDispute(ctx.Request.Context(), claimID, userID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}

	server.enqueue(ctx.Request.Context(), notify.TopicDisputes, notify.Envelope{
		Event:  notify.EventDisputeOpened,
		UserID: dispute.Moderator.String(),
		Data:   map[string]string{"dispute_id": dispute.ID.String(), "claim_id": dispute.ClaimID.String(), "opener": dispute.Opener.String()},
	})
	ctx.JSON(http.StatusCreated, gin.H{"dispute": disputePayloadFrom(dispute)})
}

func (server *Server) handleCancelDispute(ctx *gin.Context) {
	userID, _ := claims.NewUserID(authenticatedUser(ctx))
	disputeID, err := claims.NewDisputeID(ctx.Param("dispute_id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_dispute_id", err.Error()))
		return
	}

	if err := server.claims.CancelDispute(ctx.Request.Context(), disputeID, userID); err != nil {
		server.respondError(ctx, err)
		return
	}
	server.enqueue(ctx.Request.Context(), notify.TopicDisputes, notify.Envelope{
		Event:  notify.EventDisputeCancelled,
		UserID: userID.String(),
		Data:   map[string]string{"dispute_id": disputeID.String()},
	})
	ctx.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

type resolveDisputeRequest struct {
	Decision string `json:"decision"`
}

func (server *Server) handleResolveDispute(ctx *gin.Context) {
	userID, _ := claims.NewUserID(authenticatedUser(ctx))
	disputeID, err := claims.NewDisputeID(ctx.Param("dispute_id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_dispute_id", err.Error()))
		return
	}
	var request resolveDisputeRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	decision, err := claims.ParseDisputeDecision(request.Decision)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_decision", err.Error()))
		return
	}

	if err := server.claims.ResolveDispute(ctx.Request.Context(), disputeID, userID, decision); err != nil {
		server.respondError(ctx, err)
		return
	}
	server.enqueue(ctx.Request.Context(), notify.TopicDisputes, notify.Envelope{
		Event:  notify.EventDisputeResolved,
		UserID: userID.String(),
		Data:   map[string]string{"dispute_id": disputeID.String(), "decision": string(decision)},
	})
	ctx.JSON(http.StatusOK, gin.H{"status": "resolved", "decision": string(decision)})
}

func (server *Server) handleBalance(ctx *gin.Context) {
	userID, err := claims.NewUserID(authenticatedUser(ctx))
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid token subject"))
		return
	}
	balance, err := server.finance.Balance(ctx.Request.Context(), userID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"balance": balancePayload{
		EarnedCents:    balance.EarnedCents,
		FrozenCents:    balance.FrozenCents,
		WithdrawnCents: balance.WithdrawnCents,
		AvailableCents: balance.AvailableCents,
	}})
}

func (server *Server) handleEntries(ctx *gin.Context) {
	userID, err := claims.NewUserID(authenticatedUser(ctx))
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid token subject"))
		return
	}
	before, _ := strconv.ParseInt(ctx.Query("before_unix_utc"), 10, 64)
	limit, _ := strconv.Atoi(ctx.Query("limit"))
	if limit <= 0 {
		limit = defaultEntriesLimit
	}
	if limit > maxEntriesLimit {
		limit = maxEntriesLimit
	}

	entries, err := server.finance.ListEntries(ctx.Request.Context(), userID, before, limit)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	payload := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, entryPayload{
			EntryID:        entry.ID.String(),
			ClaimID:        entry.ClaimID.String(),
			Kind:           entry.Kind.String(),
			AmountCents:    entry.AmountCents.Int64(),
			Comment:        entry.Comment,
			CreatedUnixUTC: entry.CreatedUnixUTC,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": payload})
}

type withdrawalRequest struct {
	AmountCents   int64  `json:"amount_cents"`
	RequisitesRef string `json:"requisites_ref"`
}

func (server *Server) handleRequestWithdrawal(ctx *gin.Context) {
	userID, _ := claims.NewUserID(authenticatedUser(ctx))
	var request withdrawalRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	amount, err := finance.NewPositiveAmountCents(request.AmountCents)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_amount", err.Error()))
		return
	}

	withdrawal, err := server.finance.RequestWithdrawal(ctx.Request.Context(), userID, amount, request.RequisitesRef)
	if err != nil {
		if errors.Is(err, finance.ErrInvalidRequisitesRef) {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_requisites_ref", err.Error()))
			return
		}
		server.respondError(ctx, err)
		return
	}
	server.enqueue(ctx.Request.Context(), notify.TopicWithdrawals, notify.Envelope{
		Event:  notify.EventWithdrawalRequested,
		UserID: withdrawal.UserID.String(),
		Data:   map[string]string{"withdrawal_id": withdrawal.ID.String(), "amount_cents": strconv.FormatInt(withdrawal.AmountCents.Int64(), 10)},
	})
	ctx.JSON(http.StatusCreated, gin.H{"withdrawal": withdrawalPayloadFrom(withdrawal)})
}

func (server *Server) handleWithdrawalAction(target finance.WithdrawalStatus) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		withdrawalID, err := finance.NewWithdrawalID(ctx.Param("withdrawal_id"))
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_withdrawal_id", err.Error()))
			return
		}

		switch target {
		case finance.WithdrawalApproved:
			err = server.finance.ApproveWithdrawal(ctx.Request.Context(), withdrawalID)
		case finance.WithdrawalRejected:
			err = server.finance.RejectWithdrawal(ctx.Request.Context(), withdrawalID)
		case finance.WithdrawalPaid:
			err = server.finance.MarkWithdrawalPaid(ctx.Request.Context(), withdrawalID)
		default:
			err = finance.ErrInvalidWithdrawalStatus
		}
		if err != nil {
			server.respondError(ctx, err)
			return
		}

		withdrawal, err := server.finance.Withdrawal(ctx.Request.Context(), withdrawalID)
		if err != nil {
			server.respondError(ctx, err)
			return
		}
		server.enqueue(ctx.Request.Context(), notify.TopicWithdrawals, notify.Envelope{
			Event:  notify.EventWithdrawalResolved,
			UserID: withdrawal.UserID.String(),
			Data:   map[string]string{"withdrawal_id": withdrawal.ID.String(), "status": withdrawal.Status.String()},
		})
		ctx.JSON(http.StatusOK, gin.H{"withdrawal": withdrawalPayloadFrom(withdrawal)})
	}
}

type closeSupertaskRequest struct {
	Winner string `json:"winner"`
}

func (server *Server) handleCloseSupertask(ctx *gin.Context) {
	supertaskID, err := finance.NewSupertaskID(ctx.Param("supertask_id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_supertask_id", err.Error()))
		return
	}
	var request closeSupertaskRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	winner, err := claims.NewUserID(request.Winner)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_winner", err.Error()))
		return
	}

	if err := server.goals.CloseSupertask(ctx.Request.Context(), supertaskID, winner); err != nil {
		server.respondError(ctx, err)
		return
	}
	server.enqueue(ctx.Request.Context(), notify.TopicFinance, notify.Envelope{
		Event:  notify.EventBonusAccrued,
		UserID: winner.String(),
		Data:   map[string]string{"supertask_id": supertaskID.String()},
	})
	ctx.JSON(http.StatusOK, gin.H{"status": "closed", "winner": winner.String()})
}

// handleRatings serves one month's leaderboard, or the all-time board
// for the literal period "all".
func (server *Server) handleRatings(ctx *gin.Context) {
	rawPeriod := ctx.Param("period")
	if rawPeriod == "all" {
		ranked, err := server.ratings.AllTime(ctx.Request.Context())
		if err != nil {
			server.respondError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"period": "all", "standings": standingPayloadsFrom(ranked)})
		return
	}
	period, err := finance.NewPeriodKey(rawPeriod)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_period", err.Error()))
		return
	}
	ranked, err := server.ratings.Monthly(ctx.Request.Context(), period)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"period": period.String(), "standings": standingPayloadsFrom(ranked)})
}

func (server *Server) handleSyncStatus(ctx *gin.Context) {
	if server.sync == nil {
		ctx.JSON(http.StatusServiceUnavailable, errorResponse("sync_unavailable", "feed status source not configured"))
		return
	}
	run, err := server.sync.Status(ctx.Request.Context())
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"feed":                  turnover.FeedName,
		"last_run_unix_utc":     run.LastRunUnixUTC,
		"last_success_unix_utc": run.LastSuccessUnixUTC,
		"last_error":            run.LastError,
		"rows_upserted":         run.RowsUpserted,
	})
}

// handleSyncRun runs one feed pass on demand.
func (server *Server) handleSyncRun(ctx *gin.Context) {
	if server.sync == nil {
		ctx.JSON(http.StatusServiceUnavailable, errorResponse("sync_unavailable", "feed syncer not configured"))
		return
	}
	report, err := server.sync.RunOnce(ctx.Request.Context())
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"feed":                 turnover.FeedName,
		"skipped":              report.Skipped,
		"fetched":              report.Fetched,
		"inserted":             report.Inserted,
		"affected_seller_inns": report.AffectedSellerINNs,
		"affected_group_ids":   report.AffectedGroupIDs,
	})
}

// enqueue persists an outbox message best-effort. Push delivery is not
// allowed to fail a committed operation.
func (server *Server) enqueue(ctx context.Context, topic string, envelope notify.Envelope) {
	if server.outbox == nil {
		return
	}
	message, err := notify.NewMessage(topic, envelope)
	if err != nil {
		server.logger.Warn("build push message failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	message.CreatedUnixUTC = server.nowFn()
	if err := server.outbox.Enqueue(ctx, message); err != nil {
		server.logger.Warn("enqueue push message failed", zap.String("topic", topic), zap.Error(err))
	}
}

func (server *Server) respondError(ctx *gin.Context, err error) {
	status, code := statusForError(err)
	if status == http.StatusInternalServerError {
		server.logger.Error("request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
	}
	ctx.JSON(status, errorResponse(code, err.Error()))
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, claims.ErrAlreadyClaimed):
		return http.StatusConflict, "already_claimed"
	case errors.Is(err, claims.ErrAlreadyDisputed):
		return http.StatusConflict, "already_disputed"
	case errors.Is(err, claims.ErrAlreadyResolved):
		return http.StatusConflict, "already_resolved"
	case errors.Is(err, claims.ErrDisputeForeclosed):
		return http.StatusConflict, "dispute_foreclosed"
	case errors.Is(err, finance.ErrWithdrawalClosed):
		return http.StatusConflict, "withdrawal_closed"
	case errors.Is(err, finance.ErrSupertaskClosed):
		return http.StatusConflict, "supertask_closed"
	case errors.Is(err, claims.ErrSelfDisputeForbidden):
		return http.StatusForbidden, "self_dispute_forbidden"
	case errors.Is(err, claims.ErrTenantScopeViolation):
		return http.StatusForbidden, "tenant_scope_violation"
	case errors.Is(err, claims.ErrDisputeNotCancellable):
		return http.StatusForbidden, "dispute_not_cancellable"
	case errors.Is(err, claims.ErrStaleWindow):
		return http.StatusUnprocessableEntity, "stale_window"
	case errors.Is(err, finance.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, claims.ErrUnknownTurnover),
		errors.Is(err, claims.ErrUnknownClaim),
		errors.Is(err, claims.ErrUnknownDispute),
		errors.Is(err, claims.ErrUnknownRegistration),
		errors.Is(err, claims.ErrUnknownGroup),
		errors.Is(err, finance.ErrUnknownWithdrawal),
		errors.Is(err, finance.ErrUnknownSupertask):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

type claimPayload struct {
	ClaimID        string `json:"claim_id"`
	TurnoverID     string `json:"turnover_id"`
	Claimant       string `json:"claimant"`
	GroupID        string `json:"group_id"`
	DisputeState   string `json:"dispute_state"`
	ClaimedUnixUTC int64  `json:"claimed_unix_utc"`
}

func claimPayloadFrom(claim claims.Claim) claimPayload {
	return claimPayload{
		ClaimID:        claim.ID.String(),
		TurnoverID:     claim.TurnoverID.String(),
		Claimant:       claim.Claimant.String(),
		GroupID:        claim.GroupAtClaim.String(),
		DisputeState:   claim.DisputeState.String(),
		ClaimedUnixUTC: claim.ClaimedUnixUTC,
	}
}

type disputePayload struct {
	DisputeID     string `json:"dispute_id"`
	ClaimID       string `json:"claim_id"`
	Opener        string `json:"opener"`
	Moderator     string `json:"moderator"`
	Status        string `json:"status"`
	OpenedUnixUTC int64  `json:"opened_unix_utc"`
}

func disputePayloadFrom(dispute claims.Dispute) disputePayload {
	return disputePayload{
		DisputeID:     dispute.ID.String(),
		ClaimID:       dispute.ClaimID.String(),
		Opener:        dispute.Opener.String(),
		Moderator:     dispute.Moderator.String(),
		Status:        dispute.Status.String(),
		OpenedUnixUTC: dispute.OpenedUnixUTC,
	}
}

type balancePayload struct {
	EarnedCents    int64 `json:"earned_cents"`
	FrozenCents    int64 `json:"frozen_cents"`
	WithdrawnCents int64 `json:"withdrawn_cents"`
	AvailableCents int64 `json:"available_cents"`
}

type entryPayload struct {
	EntryID        string `json:"entry_id"`
	ClaimID        string `json:"claim_id,omitempty"`
	Kind           string `json:"kind"`
	AmountCents    int64  `json:"amount_cents"`
	Comment        string `json:"comment,omitempty"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
}

type withdrawalPayload struct {
	WithdrawalID     string `json:"withdrawal_id"`
	UserID           string `json:"user_id"`
	AmountCents      int64  `json:"amount_cents"`
	RequisitesRef    string `json:"requisites_ref"`
	Status           string `json:"status"`
	RequestedUnixUTC int64  `json:"requested_unix_utc"`
	ResolvedUnixUTC  int64  `json:"resolved_unix_utc,omitempty"`
}

func withdrawalPayloadFrom(withdrawal finance.WithdrawalRequest) withdrawalPayload {
	return withdrawalPayload{
		WithdrawalID:     withdrawal.ID.String(),
		UserID:           withdrawal.UserID.String(),
		AmountCents:      withdrawal.AmountCents.Int64(),
		RequisitesRef:    withdrawal.RequisitesRef,
		Status:           withdrawal.Status.String(),
		RequestedUnixUTC: withdrawal.RequestedUnixUTC,
		ResolvedUnixUTC:  withdrawal.ResolvedUnixUTC,
	}
}

type standingPayload struct {
	UserID     string `json:"user_id"`
	GroupID    string `json:"group_id"`
	VolumeML   int64  `json:"volume_ml"`
	GlobalRank int    `json:"global_rank"`
	GroupRank  int    `json:"group_rank"`
}

func standingPayloadsFrom(ranked []ratings.Ranked) []standingPayload {
	payload := make([]standingPayload, 0, len(ranked))
	for _, standing := range ranked {
		payload = append(payload, standingPayload{
			UserID:     standing.UserID.String(),
			GroupID:    standing.GroupID.String(),
			VolumeML:   standing.VolumeML,
			GlobalRank: standing.GlobalRank,
			GroupRank:  standing.GroupRank,
		})
	}
	return payload
}
