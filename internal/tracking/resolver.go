// Package tracking decides which progress source is authoritative for a habit's day.
package tracking

import (
	"context"
	"fmt"

	apperrors "github.com/julianstephens/streakline/internal/errors"
	"github.com/julianstephens/streakline/internal/models"
	"github.com/julianstephens/streakline/internal/source"
)

// Mode is the resolved source for a habit on a given day.
type Mode int

const (
	ModeManual Mode = iota
	ModeAutomatic
	ModeFallback
)

func (m Mode) String() string {
	switch m {
	case ModeAutomatic:
		return "automatic"
	case ModeFallback:
		return "fallback"
	default:
		return "manual"
	}
}

// Resolution is the resolver's decision.
type Resolution struct {
	Mode Mode
	// ManualAllowed is false only for automatic habits whose source is available.
	ManualAllowed bool
	// Reason explains a fallback; it wraps ErrSourceUnavailable.
	Reason error
}

// EntrySource returns the attribution a manual write should carry under this resolution.
func (r Resolution) EntrySource() models.EntrySource {
	if r.Mode == ModeFallback {
		return models.SourceFallback
	}
	return models.SourceManual
}

// Resolver resolves habits against one external source. A nil source means the
// platform has no automatic feed; every automatic habit falls back.
type Resolver struct {
	src source.Source
}

func NewResolver(src source.Source) *Resolver {
	return &Resolver{src: src}
}

// Source returns the resolver's source, or nil.
func (r *Resolver) Source() source.Source {
	if r == nil {
		return nil
	}
	return r.src
}

// Resolve never consults the source for manual habits.
func (r *Resolver) Resolve(ctx context.Context, h models.Habit) Resolution {
	if !h.IsAutomatic() {
		return Resolution{Mode: ModeManual, ManualAllowed: true}
	}
	if r == nil || r.src == nil {
		return fallback(fmt.Errorf("%w: no source configured", apperrors.ErrSourceUnavailable))
	}
	auth, err := r.src.AuthorizationStatus(ctx)
	if err != nil {
		return fallback(fmt.Errorf("%w: %v", apperrors.ErrSourceUnavailable, err))
	}
	if auth != source.Authorized {
		return fallback(fmt.Errorf("%w: access %s", apperrors.ErrSourceUnavailable, auth))
	}
	return Resolution{Mode: ModeAutomatic}
}

// CheckManualWrite returns the attribution for a manual write, or ErrNotAllowed when
// the automatic source owns the day and the write was not forced.
func (r *Resolver) CheckManualWrite(ctx context.Context, h models.Habit, force bool) (models.EntrySource, error) {
	res := r.Resolve(ctx, h)
	if res.ManualAllowed {
		return res.EntrySource(), nil
	}
	if force {
		return models.SourceManual, nil
	}
	return "", apperrors.NotAllowedf("%q is tracked automatically; use --force to override", h.Name)
}

func fallback(reason error) Resolution {
	return Resolution{Mode: ModeFallback, ManualAllowed: true, Reason: reason}
}

// Action is what reconciliation does with an external sample for one day.
type Action int

const (
	ActionCreate Action = iota
	ActionUpdate
	ActionSkip
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	default:
		return "skip"
	}
}

// ReconcileAction decides how an automatic sample merges with the day's existing
// entry. Entries written during a fallback are never overwritten; the source only
// takes precedence on days it owned from the start.
func ReconcileAction(existing *models.HabitEntry) Action {
	switch {
	case existing == nil:
		return ActionCreate
	case existing.Source == models.SourceFallback:
		return ActionSkip
	default:
		return ActionUpdate
	}
}
