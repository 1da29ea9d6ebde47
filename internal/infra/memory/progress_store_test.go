package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"rvl-week-service/internal/domain"
)

func TestProgressStoreMergesCatalog(t *testing.T) {
	store := NewProgressStore(catalog())
	ctx := context.Background()

	if err := store.UpsertProgress(ctx, domain.ProgressPatch{
		UserID:           "u1",
		Day:              1,
		Status:           domain.Ptr(domain.DayAvailable),
		QRScanned:        domain.Ptr(true),
		AttendancePoints: domain.Ptr(10),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	days, err := store.ListDays(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(days) != 3 || days[0].Number != 1 {
		t.Fatalf("expected catalog order, got %+v", days)
	}
	if days[0].Status != domain.DayAvailable || days[0].Points != 10 || !days[0].QRScanned {
		t.Fatalf("unexpected day 1 %+v", days[0])
	}
	if days[1].Status != domain.DayLocked || days[1].Points != 0 {
		t.Fatalf("expected day 2 locked, got %+v", days[1])
	}
}

func TestProgressStoreStatusOnlyMovesForward(t *testing.T) {
	store := NewProgressStore(catalog())
	ctx := context.Background()

	_ = store.UpsertProgress(ctx, domain.ProgressPatch{UserID: "u1", Day: 1, Status: domain.Ptr(domain.DayCompleted)})
	_ = store.UpsertProgress(ctx, domain.ProgressPatch{UserID: "u1", Day: 1, Status: domain.Ptr(domain.DayAvailable)})

	days, _ := store.ListDays(ctx, "u1")
	if days[0].Status != domain.DayCompleted {
		t.Fatalf("status moved backwards to %s", days[0].Status)
	}
}

func TestProgressStoreUpsertSetsNotIncrements(t *testing.T) {
	store := NewProgressStore(catalog())
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_ = store.UpsertProgress(ctx, domain.ProgressPatch{UserID: "u1", Day: 2, AttendancePoints: domain.Ptr(10)})
	}
	days, _ := store.ListDays(ctx, "u1")
	if days[1].Points != 10 {
		t.Fatalf("expected a single award, got %d", days[1].Points)
	}
}

func TestProgressStoreUnknownDay(t *testing.T) {
	store := NewProgressStore(catalog())
	err := store.UpsertProgress(context.Background(), domain.ProgressPatch{UserID: "u1", Day: 9})
	if !errors.Is(err, domain.ErrDayNotFound) {
		t.Fatalf("expected day not found, got %v", err)
	}
}

func TestProgressStoreRejectsUnknownStatus(t *testing.T) {
	store := NewProgressStore(catalog())
	ctx := context.Background()
	err := store.UpsertProgress(ctx, domain.ProgressPatch{UserID: "u1", Day: 1, Status: domain.Ptr(domain.DayStatus("archived"))})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	days, _ := store.ListDays(ctx, "u1")
	if days[0].Status != domain.DayLocked {
		t.Fatalf("expected untouched row, got %s", days[0].Status)
	}
}

func TestProgressStoreRanking(t *testing.T) {
	store := NewProgressStore(catalog())
	ctx := context.Background()
	now := time.Date(2026, 1, 19, 20, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return now }

	_ = store.UpsertProgress(ctx, domain.ProgressPatch{UserID: "u1", DisplayName: "Ana", Day: 1, AttendancePoints: domain.Ptr(10)})
	now = now.Add(time.Minute)
	_ = store.UpsertProgress(ctx, domain.ProgressPatch{UserID: "u2", DisplayName: "Bia", Day: 1, AttendancePoints: domain.Ptr(10)})
	now = now.Add(time.Minute)
	_ = store.UpsertProgress(ctx, domain.ProgressPatch{UserID: "u3", DisplayName: "Caio", Day: 1, QuizScore: domain.Ptr(63)})

	ranking, err := store.Ranking(ctx, 10)
	if err != nil {
		t.Fatalf("ranking: %v", err)
	}
	if len(ranking) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(ranking))
	}
	if ranking[0].UserID != "u3" || ranking[1].UserID != "u1" || ranking[2].UserID != "u2" {
		t.Fatalf("unexpected order %+v", ranking)
	}

	top, _ := store.Ranking(ctx, 1)
	if len(top) != 1 || top[0].Points != 63 {
		t.Fatalf("expected limit to apply, got %+v", top)
	}
}

func TestResultSinkKeepsFirstResult(t *testing.T) {
	sink := NewResultSink()
	ctx := context.Background()
	if err := sink.SaveQuizResult(ctx, domain.QuizResult{UserID: "u1", Day: 1, TotalScore: 63}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := sink.SaveQuizResult(ctx, domain.QuizResult{UserID: "u1", Day: 1, TotalScore: 12}); err != nil {
		t.Fatalf("duplicate save should not fail: %v", err)
	}
	if got, _ := sink.Result("u1", 1); got.TotalScore != 63 {
		t.Fatalf("expected first result kept, got %d", got.TotalScore)
	}

	tooMany := domain.QuizResult{UserID: "u1", Day: 2, Answers: make([]domain.AnswerRecord, 4)}
	if err := sink.SaveQuizResult(ctx, tooMany); !errors.Is(err, domain.ErrTooManyAnswers) {
		t.Fatalf("expected too many answers, got %v", err)
	}
}

func TestPendingStoreExpires(t *testing.T) {
	store := NewPendingStore(time.Hour)
	now := time.Date(2026, 1, 19, 20, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return now }
	ctx := context.Background()

	_ = store.Stage(ctx, domain.PendingUnlock{ID: "p1", Day: 2, Token: "tok", CreatedAt: now})
	if p, err := store.Get(ctx, "p1"); err != nil || p.Token != "tok" {
		t.Fatalf("expected staged unlock, got %+v %v", p, err)
	}
	now = now.Add(2 * time.Hour)
	if _, err := store.Get(ctx, "p1"); !errors.Is(err, domain.ErrPendingNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestPendingStoreIgnoresStampedCreationTime(t *testing.T) {
	store := NewPendingStore(time.Hour)
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return now }
	ctx := context.Background()

	// intent stamped by a caller clock far in the past still lives a full TTL
	stamped := time.Date(2026, 1, 19, 20, 0, 0, 0, time.UTC)
	_ = store.Stage(ctx, domain.PendingUnlock{ID: "p1", Day: 1, Token: "tok", CreatedAt: stamped})
	now = now.Add(59 * time.Minute)
	if p, err := store.Get(ctx, "p1"); err != nil || !p.CreatedAt.Equal(stamped) {
		t.Fatalf("expected staged unlock within ttl, got %+v %v", p, err)
	}
	now = now.Add(time.Minute)
	if _, err := store.Get(ctx, "p1"); !errors.Is(err, domain.ErrPendingNotFound) {
		t.Fatalf("expected expiry after ttl, got %v", err)
	}
}

func catalog() []domain.EventDay {
	start := time.Date(2026, 1, 19, 0, 0, 0, 0, time.UTC)
	return []domain.EventDay{
		{Number: 3, ScheduledDate: start.AddDate(0, 0, 2)},
		{Number: 1, ScheduledDate: start},
		{Number: 2, ScheduledDate: start.AddDate(0, 0, 1)},
	}
}
