// Package unlock runs the QR and manual day unlock flows.
package unlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"rvl-week-service/internal/domain"
	"rvl-week-service/internal/gate"
)

const (
	msgUnlocked        = "Day unlocked!"
	msgAlreadyUnlocked = "Day already unlocked."
	msgSequence        = "Unlock the previous day first."
	msgTooEarly        = "This day can only be unlocked manually after the service starts."
	msgNeedCode        = "Scan the QR code or type the code shown at the service."
	msgWrongCode       = "Invalid or expired code. Please try again."
	msgBackend         = "Could not reach the server. Please try again."
	msgUnknownDay      = "This day is not part of the event."
	msgBadMethod       = "Unknown unlock method."
)

// ProgressStore reads and writes per-user day progress.
type ProgressStore interface {
	ListDays(ctx context.Context, userID string) ([]domain.Day, error)
	UpsertProgress(ctx context.Context, patch domain.ProgressPatch) error
}

// Validator checks QR codes and signed unlock tokens and records attendance.
type Validator interface {
	ValidateCode(ctx context.Context, user domain.Identity, day int, code string) (domain.UnlockGrant, error)
	ValidateToken(ctx context.Context, user domain.Identity, day int, token string) (domain.UnlockGrant, error)
}

// PendingStore holds deep-link unlocks staged before the user signed in.
type PendingStore interface {
	Stage(ctx context.Context, p domain.PendingUnlock) error
	Get(ctx context.Context, id string) (domain.PendingUnlock, error)
	Delete(ctx context.Context, id string) error
}

// Request asks to unlock one day for one user.
type Request struct {
	User   domain.Identity
	Day    int
	Method domain.UnlockMethod
	Code   string

	// Token comes from a scanned deep link; it takes precedence over Code.
	Token string

	// PendingID names the staged intent to clear once the unlock succeeds.
	PendingID string
}

// Result is always returned, never an error: failures carry Success=false and a
// message fit for the player.
type Result struct {
	Success      bool             `json:"success"`
	Message      string           `json:"message"`
	PointsEarned int              `json:"pointsEarned"`
	Days         []domain.DayView `json:"days,omitempty"`
}

// Orchestrator coordinates the unlock methods with the day gate and collaborators.
type Orchestrator struct {
	progress  ProgressStore
	validator Validator
	pending   PendingStore
	log       *zap.Logger
	now       func() time.Time
}

func NewOrchestrator(progress ProgressStore, validator Validator, pending PendingStore, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		progress:  progress,
		validator: validator,
		pending:   pending,
		log:       log,
		now:       time.Now,
	}
}

// WithClock replaces the wall clock; tests use it to pin the time gate.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Unlock runs the flow for req.Method. Local state is only refreshed, never
// patched: on success the user's days are refetched from the store.
func (o *Orchestrator) Unlock(ctx context.Context, req Request) Result {
	log := o.log.With(zap.String("user", req.User.UserID), zap.Int("day", req.Day), zap.String("method", string(req.Method)))
	if !req.Method.Valid() {
		return Result{Message: msgBadMethod}
	}

	days, err := o.progress.ListDays(ctx, req.User.UserID)
	if err != nil {
		log.Error("list days", zap.Error(err))
		return Result{Message: msgBackend}
	}
	day, ok := domain.FindDay(days, req.Day)
	if !ok {
		return Result{Message: msgUnknownDay}
	}

	now := o.now()
	if day.Status != domain.DayLocked {
		o.clearPending(ctx, log, req.PendingID)
		return Result{Success: true, Message: msgAlreadyUnlocked, Days: gate.Views(days, now, req.User.Elevated)}
	}
	switch gate.Evaluate(day, days, now, req.User.Elevated, req.Method) {
	case domain.BlockedBySequence:
		return Result{Message: msgSequence}
	case domain.BlockedByTime:
		return Result{Message: msgTooEarly}
	}

	var points int
	switch req.Method {
	case domain.MethodQRCode:
		points, err = o.unlockQR(ctx, req)
	case domain.MethodManual:
		err = o.unlockManual(ctx, req, now)
	}
	if err != nil {
		return o.failure(log, err)
	}

	o.clearPending(ctx, log, req.PendingID)
	log.Info("day unlocked", zap.Int("points", points))
	return Result{
		Success:      true,
		Message:      msgUnlocked,
		PointsEarned: points,
		Days:         o.refetch(ctx, log, req.User),
	}
}

// Stage records a deep link scanned by a user who still has to sign in.
func (o *Orchestrator) Stage(ctx context.Context, link Link) (domain.PendingUnlock, error) {
	p := domain.PendingUnlock{
		ID:        uuid.NewString(),
		Day:       link.Day,
		Token:     link.Token,
		CreatedAt: o.now(),
	}
	if err := o.pending.Stage(ctx, p); err != nil {
		return domain.PendingUnlock{}, fmt.Errorf("stage pending unlock: %w", err)
	}
	o.log.Info("unlock staged", zap.String("pending", p.ID), zap.Int("day", p.Day))
	return p, nil
}

// CompletePending unlocks the staged intent id for user and clears it on success.
func (o *Orchestrator) CompletePending(ctx context.Context, user domain.Identity, id string) Result {
	p, err := o.pending.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrPendingNotFound) {
			return Result{Message: "No pending unlock found. Please scan the code again."}
		}
		o.log.Error("get pending unlock", zap.String("pending", id), zap.Error(err))
		return Result{Message: msgBackend}
	}
	return o.Unlock(ctx, Request{
		User:      user,
		Day:       p.Day,
		Method:    domain.MethodQRCode,
		Token:     p.Token,
		PendingID: p.ID,
	})
}

func (o *Orchestrator) unlockQR(ctx context.Context, req Request) (int, error) {
	var (
		grant domain.UnlockGrant
		err   error
	)
	switch {
	case req.Token != "":
		grant, err = o.validator.ValidateToken(ctx, req.User, req.Day, req.Token)
	case req.Code != "":
		grant, err = o.validator.ValidateCode(ctx, req.User, req.Day, req.Code)
	default:
		return 0, fmt.Errorf("%w: code required", domain.ErrInvalidInput)
	}
	if err != nil {
		return 0, err
	}
	if !grant.Success {
		return 0, domain.ErrValidation
	}
	return grant.Points, nil
}

// unlockManual opens the day without the attendance bonus.
func (o *Orchestrator) unlockManual(ctx context.Context, req Request, now time.Time) error {
	return o.progress.UpsertProgress(ctx, domain.ProgressPatch{
		UserID:           req.User.UserID,
		DisplayName:      req.User.DisplayName,
		Day:              req.Day,
		Status:           domain.Ptr(domain.DayAvailable),
		UnlockMethod:     domain.Ptr(domain.MethodManual),
		AttendancePoints: domain.Ptr(0),
		UnlockedAt:       domain.Ptr(now),
	})
}

func (o *Orchestrator) failure(log *zap.Logger, err error) Result {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		log.Debug("unlock rejected", zap.Error(err))
		return Result{Message: msgNeedCode}
	case errors.Is(err, domain.ErrValidation):
		log.Info("unlock validation failed", zap.Error(err))
		return Result{Message: msgWrongCode}
	case errors.Is(err, domain.ErrDayNotFound):
		return Result{Message: msgUnknownDay}
	default:
		log.Error("unlock failed", zap.Error(err))
		return Result{Message: msgBackend}
	}
}

func (o *Orchestrator) refetch(ctx context.Context, log *zap.Logger, user domain.Identity) []domain.DayView {
	days, err := o.progress.ListDays(ctx, user.UserID)
	if err != nil {
		log.Warn("refetch days after unlock", zap.Error(err))
		return nil
	}
	return gate.Views(days, o.now(), user.Elevated)
}

func (o *Orchestrator) clearPending(ctx context.Context, log *zap.Logger, id string) {
	if id == "" || o.pending == nil {
		return
	}
	if err := o.pending.Delete(ctx, id); err != nil {
		log.Warn("clear pending unlock", zap.String("pending", id), zap.Error(err))
	}
}
