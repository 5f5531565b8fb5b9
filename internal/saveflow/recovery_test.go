package saveflow

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/chordfold/chordfold/internal/draft"
	"github.com/chordfold/chordfold/internal/testutil"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// draftDatabase opens a second handle onto the shared in-memory database
// mustDraftStore created for this test, for planting rows directly.
func draftDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	return db
}

func mustNegotiator(t *testing.T, store *draft.TieredStore, clock func() time.Time) *Negotiator {
	t.Helper()
	negotiator, err := NewNegotiator(NegotiatorConfig{
		EntityID: "sheet-1",
		OwnerID:  "user-1",
		Store:    store,
		Clock:    clock,
	})
	if err != nil {
		t.Fatalf("failed to build negotiator: %v", err)
	}
	return negotiator
}

func TestRecoveryResolvesImmediatelyWithoutDraft(t *testing.T) {
	clock := testutil.NewFakeClock(time.Unix(1700000000, 0))
	store := mustDraftStore(t, clock.Now)

	negotiator := mustNegotiator(t, store, clock.Now)
	if negotiator.State() != RecoveryChecking {
		t.Fatalf("expected checking before Check, got %q", negotiator.State())
	}
	if err := negotiator.Check(context.Background()); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if negotiator.State() != RecoveryResolved {
		t.Fatalf("expected resolved with no draft, got %q", negotiator.State())
	}
	if negotiator.Draft() != nil {
		t.Fatalf("expected no draft exposed")
	}
}

func TestRecoveryExposesDraftForDecision(t *testing.T) {
	clock := testutil.NewFakeClock(time.Unix(1700000000, 0))
	store := mustDraftStore(t, clock.Now)
	ctx := context.Background()

	content := strings.Repeat("Intro [Em] riff and a long lyric line that keeps going. ", 5)
	if err := store.Save(ctx, "sheet-1", content, nil, "user-1"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	clock.Advance(10 * time.Minute)
	negotiator := mustNegotiator(t, store, clock.Now)
	if err := negotiator.Check(ctx); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if negotiator.State() != RecoveryDraftAvailable {
		t.Fatalf("expected draft available, got %q", negotiator.State())
	}

	preview := negotiator.Preview()
	if len([]rune(preview)) > previewRunes+1 {
		t.Fatalf("preview too long: %d runes", len([]rune(preview)))
	}
	if !strings.HasPrefix(content, strings.TrimSuffix(preview, "…")) {
		t.Fatalf("preview is not a prefix of the draft: %q", preview)
	}
	if negotiator.Age() != "10 minutes ago" {
		t.Fatalf("unexpected age: %q", negotiator.Age())
	}

	record, err := negotiator.Accept()
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if record.Content != content {
		t.Fatalf("accepted draft content mismatch")
	}
	if negotiator.State() != RecoveryResolved {
		t.Fatalf("expected resolved after accept, got %q", negotiator.State())
	}
	if _, err := negotiator.Accept(); err == nil {
		t.Fatalf("expected second accept to fail")
	}
}

func TestRecoveryDiscardDeletesDraftForGood(t *testing.T) {
	clock := testutil.NewFakeClock(time.Unix(1700000000, 0))
	store := mustDraftStore(t, clock.Now)
	ctx := context.Background()

	if err := store.Save(ctx, "sheet-1", "abandoned words", nil, "user-1"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	negotiator := mustNegotiator(t, store, clock.Now)
	if err := negotiator.Check(ctx); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if err := negotiator.Discard(ctx); err != nil {
		t.Fatalf("discard failed: %v", err)
	}

	exists, err := store.Exists(ctx, "sheet-1", "user-1")
	if err != nil {
		t.Fatalf("exists failed: %v", err)
	}
	if exists {
		t.Fatalf("expected draft gone after discard")
	}

	// Re-mounting shows no recovery prompt.
	remounted := mustNegotiator(t, store, clock.Now)
	if err := remounted.Check(ctx); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if remounted.State() != RecoveryResolved || remounted.Draft() != nil {
		t.Fatalf("expected no prompt after discard, got %q", remounted.State())
	}
}

func TestRecoveryAutoDiscardsIncompatibleSchema(t *testing.T) {
	clock := testutil.NewFakeClock(time.Unix(1700000000, 0))
	store := mustDraftStore(t, clock.Now)
	ctx := context.Background()

	// A draft written by an older editor build, planted straight into the
	// durable tier.
	row := draft.StoredDraft{
		EntityID:      "sheet-1",
		OwnerID:       "user-1",
		Content:       "stale format",
		SavedAtMilli:  clock.Now().UnixMilli(),
		SchemaVersion: draft.SchemaVersion - 1,
	}
	if err := draftDatabase(t).Create(&row).Error; err != nil {
		t.Fatalf("failed to plant stale draft: %v", err)
	}

	negotiator := mustNegotiator(t, store, clock.Now)
	if err := negotiator.Check(ctx); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if negotiator.State() != RecoveryResolved {
		t.Fatalf("expected resolved, got %q", negotiator.State())
	}
	if !negotiator.Conflicted() {
		t.Fatalf("expected conflict flag after auto-discard")
	}
	exists, err := store.Exists(ctx, "sheet-1", "user-1")
	if err != nil {
		t.Fatalf("exists failed: %v", err)
	}
	if exists {
		t.Fatalf("expected stale draft deleted")
	}
}

func TestAgeInWords(t *testing.T) {
	cases := []struct {
		age  time.Duration
		want string
	}{
		{30 * time.Second, "moments ago"},
		{90 * time.Second, "a minute ago"},
		{45 * time.Minute, "45 minutes ago"},
		{90 * time.Minute, "an hour ago"},
		{7 * time.Hour, "7 hours ago"},
		{30 * time.Hour, "a day ago"},
		{80 * time.Hour, "3 days ago"},
	}
	for _, tc := range cases {
		if got := ageInWords(tc.age); got != tc.want {
			t.Fatalf("ageInWords(%v) = %q, want %q", tc.age, got, tc.want)
		}
	}
}
