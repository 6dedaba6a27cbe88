package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	alertapp "water-quality-cloud/internal/alerts/application"
	alerts "water-quality-cloud/internal/alerts/domain"
	masterdata "water-quality-cloud/internal/masterdata/domain"
	"water-quality-cloud/internal/observability/metrics"
	quality "water-quality-cloud/internal/quality/domain"
)

// DefaultDedupWindow is how far back an active alert at the same location
// suppresses a new one.
const DefaultDedupWindow = 24 * time.Hour

// CreatedAlert pairs a persisted alert with the verdict that produced it.
type CreatedAlert struct {
	Alert   alerts.Alert
	Verdict quality.Verdict
}

// Emitter turns verdicts into deduplicated contamination alerts.
type Emitter struct {
	store    AlertStore
	notifier alertapp.Notifier
	clock    clockwork.Clock
	window   time.Duration
}

// EmitterOption configures the emitter.
type EmitterOption func(*Emitter)

// WithEmitterNotifier sets the post-commit notifier.
func WithEmitterNotifier(notifier alertapp.Notifier) EmitterOption {
	return func(e *Emitter) {
		e.notifier = notifier
	}
}

// WithEmitterClock overrides the clock.
func WithEmitterClock(clock clockwork.Clock) EmitterOption {
	return func(e *Emitter) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithDedupWindow overrides DefaultDedupWindow.
func WithDedupWindow(window time.Duration) EmitterOption {
	return func(e *Emitter) {
		if window > 0 {
			e.window = window
		}
	}
}

// NewEmitter constructs an emitter.
func NewEmitter(store AlertStore, opts ...EmitterOption) (*Emitter, error) {
	if store == nil {
		return nil, errors.New("alert emitter: nil store")
	}
	e := &Emitter{
		store:  store,
		clock:  clockwork.NewRealClock(),
		window: DefaultDedupWindow,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Emit persists an alert for every high or critical verdict unless an active
// alert for the station's location was issued within the dedup window. The
// whole batch commits or none of it does.
func (e *Emitter) Emit(ctx context.Context, station masterdata.Station, verdicts []quality.Verdict) ([]CreatedAlert, error) {
	if e == nil {
		return nil, errors.New("alert emitter: nil emitter")
	}
	kept := make([]quality.Verdict, 0, len(verdicts))
	for _, v := range verdicts {
		if v.Severity.AtLeast(quality.SeverityHigh) {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return nil, nil
	}

	now := e.clock.Now().UTC()
	since := now.Add(-e.window)

	uow, err := e.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("alert emitter: begin station %d: %w", station.ID, err)
	}

	type pending struct {
		alert   *alerts.Alert
		verdict quality.Verdict
	}
	var staged []pending
	for _, verdict := range kept {
		existing, err := uow.FindActiveByLocation(ctx, station.Location, since)
		if err != nil {
			_ = uow.Rollback()
			return nil, err
		}
		if existing != nil {
			metrics.IncAlertSuppressed()
			continue
		}
		stationID := station.ID
		alert := &alerts.Alert{
			Type:      alerts.TypeContamination,
			Message:   verdict.Message,
			Location:  station.Location,
			Latitude:  station.Latitude,
			Longitude: station.Longitude,
			Severity:  string(verdict.Severity),
			StationID: &stationID,
			IssuedAt:  now,
			IsActive:  true,
		}
		if err := uow.Create(ctx, alert); err != nil {
			_ = uow.Rollback()
			return nil, err
		}
		staged = append(staged, pending{alert: alert, verdict: verdict})
	}

	if err := uow.Commit(); err != nil {
		_ = uow.Rollback()
		return nil, err
	}

	// Stores may assign ids at commit, so results are read back afterwards.
	created := make([]CreatedAlert, 0, len(staged))
	for _, p := range staged {
		created = append(created, CreatedAlert{Alert: *p.alert, Verdict: p.verdict})
		metrics.IncAlertCreated(p.alert.Severity)
		if e.notifier != nil {
			e.notifier.Notify(ctx, alertapp.Event{Type: alertapp.EventCreated, Alert: *p.alert})
		}
	}
	return created, nil
}
