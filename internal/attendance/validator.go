// Package attendance verifies that a user was at a day's service, either by the
// code shown on screen or by a signed token embedded in the scanned QR link.
package attendance

import (
	"context"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"rvl-week-service/internal/domain"
)

// ProgressStore is the slice of the progress collaborator the validator writes to.
type ProgressStore interface {
	ListDays(ctx context.Context, userID string) ([]domain.Day, error)
	UpsertProgress(ctx context.Context, patch domain.ProgressPatch) error
}

// Claims are carried by a day unlock token.
type Claims struct {
	Day int `json:"day"`
	jwt.RegisteredClaims
}

// Config configures a Validator.
type Config struct {
	// Codes maps a day number to the plain code announced at that service.
	Codes            map[int]string
	Secret           []byte
	AttendancePoints int

	// HashCost is the bcrypt cost for codes; zero means bcrypt.DefaultCost.
	HashCost int
	Logger   *zap.Logger
	Now      func() time.Time
}

// Validator checks QR codes and unlock tokens and records the attendance.
type Validator struct {
	hashes   map[int][]byte
	secret   []byte
	points   int
	progress ProgressStore
	log      *zap.Logger
	now      func() time.Time
}

// New hashes the configured codes; the plain values are not kept.
func New(cfg Config, progress ProgressStore) (*Validator, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("%w: unlock token secret is empty", domain.ErrInvalidInput)
	}
	if cfg.HashCost == 0 {
		cfg.HashCost = bcrypt.DefaultCost
	}
	hashes := make(map[int][]byte, len(cfg.Codes))
	for day, code := range cfg.Codes {
		if normalize(code) == "" {
			continue
		}
		h, err := bcrypt.GenerateFromPassword([]byte(normalize(code)), cfg.HashCost)
		if err != nil {
			return nil, fmt.Errorf("hash code for day %d: %w", day, err)
		}
		hashes[day] = h
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Validator{
		hashes:   hashes,
		secret:   cfg.Secret,
		points:   cfg.AttendancePoints,
		progress: progress,
		log:      cfg.Logger,
		now:      cfg.Now,
	}, nil
}

// ValidateCode compares code, trimmed and case-insensitively, with the day's secret.
func (v *Validator) ValidateCode(ctx context.Context, user domain.Identity, day int, code string) (domain.UnlockGrant, error) {
	hash, ok := v.hashes[day]
	if !ok {
		return domain.UnlockGrant{}, fmt.Errorf("%w: no code configured for day %d", domain.ErrValidation, day)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(normalize(code))); err != nil {
		return domain.UnlockGrant{}, fmt.Errorf("%w: wrong code for day %d", domain.ErrValidation, day)
	}
	return v.grant(ctx, user, day)
}

// ValidateToken checks a signed unlock token issued for day.
func (v *Validator) ValidateToken(ctx context.Context, user domain.Identity, day int, token string) (domain.UnlockGrant, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(v.now))
	if err != nil || !parsed.Valid {
		return domain.UnlockGrant{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if claims.Day != day {
		return domain.UnlockGrant{}, fmt.Errorf("%w: token is for day %d, not %d", domain.ErrValidation, claims.Day, day)
	}
	return v.grant(ctx, user, day)
}

// IssueToken mints the token printed into a day's QR link.
func (v *Validator) IssueToken(day int, ttl time.Duration) (string, error) {
	if day <= 0 {
		return "", fmt.Errorf("%w: day %d", domain.ErrInvalidInput, day)
	}
	now := v.now()
	claims := Claims{
		Day: day,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// grant records the attendance. A day already scanned earns nothing more; the
// upsert sets the points instead of adding so a race still awards them once.
func (v *Validator) grant(ctx context.Context, user domain.Identity, day int) (domain.UnlockGrant, error) {
	days, err := v.progress.ListDays(ctx, user.UserID)
	if err != nil {
		return domain.UnlockGrant{}, fmt.Errorf("list days: %w", err)
	}
	current, ok := domain.FindDay(days, day)
	if !ok {
		return domain.UnlockGrant{}, domain.ErrDayNotFound
	}
	if current.QRScanned {
		return domain.UnlockGrant{Success: true, Day: day}, nil
	}

	err = v.progress.UpsertProgress(ctx, domain.ProgressPatch{
		UserID:           user.UserID,
		DisplayName:      user.DisplayName,
		Day:              day,
		Status:           domain.Ptr(domain.DayAvailable),
		QRScanned:        domain.Ptr(true),
		UnlockMethod:     domain.Ptr(domain.MethodQRCode),
		AttendancePoints: domain.Ptr(v.points),
		UnlockedAt:       domain.Ptr(v.now()),
	})
	if err != nil {
		return domain.UnlockGrant{}, fmt.Errorf("record attendance: %w", err)
	}
	v.log.Info("attendance recorded", zap.String("user", user.UserID), zap.Int("day", day), zap.Int("points", v.points))
	return domain.UnlockGrant{Success: true, Day: day, Points: v.points}, nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
