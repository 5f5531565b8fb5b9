package saveflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chordfold/chordfold/internal/draft"
	"go.uber.org/zap"
)

// ErrRecoveryConflict indicates a draft exists but its schema version is
// incompatible with this editor build. Such drafts are discarded rather than
// applied.
var ErrRecoveryConflict = errors.New("saveflow: draft schema incompatible")

// RecoveryState tracks the negotiator's progress.
type RecoveryState string

const (
	// RecoveryChecking means the store lookup has not completed.
	RecoveryChecking RecoveryState = "checking"
	// RecoveryDraftAvailable means an orphaned draft awaits a decision.
	RecoveryDraftAvailable RecoveryState = "draft_available"
	// RecoveryResolved means no decision remains: there was no draft, or it
	// was accepted or discarded.
	RecoveryResolved RecoveryState = "resolved"
)

const previewRunes = 100

// NegotiatorConfig describes a recovery check for one entity.
type NegotiatorConfig struct {
	EntityID string
	OwnerID  string
	Store    *draft.TieredStore
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Negotiator detects an orphaned draft on editor mount and exposes it for an
// explicit accept/discard decision. It never applies a draft on its own;
// silent substitution of recovered content is deliberately avoided.
type Negotiator struct {
	entityID string
	ownerID  string
	store    *draft.TieredStore
	clock    func() time.Time
	logger   *zap.Logger

	state      RecoveryState
	record     *draft.Record
	conflicted bool
}

// NewNegotiator validates the configuration and returns a negotiator in the
// checking state.
func NewNegotiator(cfg NegotiatorConfig) (*Negotiator, error) {
	if cfg.EntityID == "" {
		return nil, errMissingEntityID
	}
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Negotiator{
		entityID: cfg.EntityID,
		ownerID:  cfg.OwnerID,
		store:    cfg.Store,
		clock:    clock,
		logger:   logger,
		state:    RecoveryChecking,
	}, nil
}

// Check looks the draft up. With no draft the negotiator resolves
// immediately; an incompatible draft is discarded with a warning.
func (n *Negotiator) Check(ctx context.Context) error {
	record, err := n.store.Load(ctx, n.entityID, n.ownerID)
	if err != nil {
		n.state = RecoveryResolved
		return err
	}
	if record == nil {
		n.state = RecoveryResolved
		return nil
	}
	if record.SchemaVersion != draft.SchemaVersion {
		n.conflicted = true
		n.logger.Warn("discarding draft with incompatible schema",
			zap.String("entity_id", n.entityID),
			zap.Int("draft_schema", record.SchemaVersion),
			zap.Int("editor_schema", draft.SchemaVersion))
		if err := n.store.Delete(ctx, n.entityID, n.ownerID); err != nil {
			n.logger.Warn("failed to delete incompatible draft", zap.Error(err))
		}
		n.state = RecoveryResolved
		return nil
	}
	n.record = record
	n.state = RecoveryDraftAvailable
	return nil
}

// State returns the negotiator's current state.
func (n *Negotiator) State() RecoveryState {
	return n.state
}

// Conflicted reports whether a schema-incompatible draft was found and
// auto-discarded during Check.
func (n *Negotiator) Conflicted() bool {
	return n.conflicted
}

// Draft returns the recovered record while a decision is pending.
func (n *Negotiator) Draft() *draft.Record {
	if n.state != RecoveryDraftAvailable {
		return nil
	}
	return n.record
}

// Preview returns the first ~100 characters of the draft for the
// confirmation prompt.
func (n *Negotiator) Preview() string {
	if n.record == nil {
		return ""
	}
	runes := []rune(n.record.Content)
	if len(runes) <= previewRunes {
		return n.record.Content
	}
	return string(runes[:previewRunes]) + "…"
}

// Age describes how old the draft is, in words.
func (n *Negotiator) Age() string {
	if n.record == nil {
		return ""
	}
	return ageInWords(n.clock().Sub(n.record.SavedAt))
}

// Accept resolves the negotiation and hands the draft to the caller, who
// applies its content (and optionally its command log) as the live state.
func (n *Negotiator) Accept() (*draft.Record, error) {
	if n.state != RecoveryDraftAvailable {
		return nil, fmt.Errorf("saveflow: no draft to accept in state %q", n.state)
	}
	n.state = RecoveryResolved
	return n.record, nil
}

// Discard deletes the draft from both tiers and resolves the negotiation.
func (n *Negotiator) Discard(ctx context.Context) error {
	if n.state != RecoveryDraftAvailable {
		return fmt.Errorf("saveflow: no draft to discard in state %q", n.state)
	}
	if err := n.store.Delete(ctx, n.entityID, n.ownerID); err != nil {
		return err
	}
	n.record = nil
	n.state = RecoveryResolved
	return nil
}

func ageInWords(age time.Duration) string {
	switch {
	case age < time.Minute:
		return "moments ago"
	case age < 2*time.Minute:
		return "a minute ago"
	case age < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(age.Minutes()))
	case age < 2*time.Hour:
		return "an hour ago"
	case age < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(age.Hours()))
	case age < 48*time.Hour:
		return "a day ago"
	default:
		return fmt.Sprintf("%d days ago", int(age.Hours()/24))
	}
}
