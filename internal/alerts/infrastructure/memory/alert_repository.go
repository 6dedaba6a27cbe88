package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	alertapp "water-quality-cloud/internal/alerts/application"
	alerts "water-quality-cloud/internal/alerts/domain"
)

// AlertRepository is an in-memory repository for demo/testing.
// It implements both the alert store and the query repository.
type AlertRepository struct {
	mu     sync.RWMutex
	nextID int64
	data   map[int64]alerts.Alert
}

// NewAlertRepository constructs a repository.
func NewAlertRepository() *AlertRepository {
	return &AlertRepository{data: make(map[int64]alerts.Alert)}
}

// Begin opens a unit of work. Staged alerts become visible to others on Commit.
func (r *AlertRepository) Begin(ctx context.Context) (alertapp.UnitOfWork, error) {
	_ = ctx
	if r == nil {
		return nil, errors.New("alert repo: nil repository")
	}
	return &alertTx{repo: r}, nil
}

// Create inserts an alert directly.
func (r *AlertRepository) Create(ctx context.Context, alert *alerts.Alert) error {
	_ = ctx
	if alert == nil {
		return errors.New("alert repo: nil alert")
	}
	if err := alert.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertLocked(alert)
	return nil
}

// GetByID returns nil, nil when the alert does not exist.
func (r *AlertRepository) GetByID(ctx context.Context, id int64) (*alerts.Alert, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	alert, ok := r.data[id]
	if !ok {
		return nil, nil
	}
	return &alert, nil
}

// ListActive lists active alerts, newest first.
func (r *AlertRepository) ListActive(ctx context.Context) ([]alerts.Alert, error) {
	_ = ctx
	return r.filter(func(a alerts.Alert) bool { return a.IsActive }), nil
}

// ListByType lists alerts of one type, newest first.
func (r *AlertRepository) ListByType(ctx context.Context, alertType alerts.Type, activeOnly bool) ([]alerts.Alert, error) {
	_ = ctx
	return r.filter(func(a alerts.Alert) bool {
		return a.Type == alertType && (!activeOnly || a.IsActive)
	}), nil
}

// Resolve marks an alert inactive.
func (r *AlertRepository) Resolve(ctx context.Context, id int64, resolvedAt time.Time) (*alerts.Alert, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	alert, ok := r.data[id]
	if !ok {
		return nil, nil
	}
	at := resolvedAt.UTC()
	alert.IsActive = false
	alert.ResolvedAt = &at
	r.data[id] = alert
	return &alert, nil
}

// All returns every stored alert ordered by id.
func (r *AlertRepository) All() []alerts.Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]alerts.Alert, 0, len(r.data))
	for _, a := range r.data {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *AlertRepository) filter(keep func(alerts.Alert) bool) []alerts.Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []alerts.Alert
	for _, a := range r.data {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].IssuedAt.After(out[j].IssuedAt)
	})
	return out
}

func (r *AlertRepository) insertLocked(alert *alerts.Alert) {
	r.nextID++
	alert.ID = r.nextID
	r.data[alert.ID] = *alert
}

func (r *AlertRepository) findActiveLocked(location string, since time.Time) *alerts.Alert {
	var found *alerts.Alert
	for _, a := range r.data {
		if a.Location != location || !a.IsActive || a.IssuedAt.Before(since) {
			continue
		}
		if found == nil || a.IssuedAt.After(found.IssuedAt) {
			candidate := a
			found = &candidate
		}
	}
	return found
}

type alertTx struct {
	repo   *AlertRepository
	staged []*alerts.Alert
	done   bool
}

func (t *alertTx) FindActiveByLocation(ctx context.Context, location string, since time.Time) (*alerts.Alert, error) {
	_ = ctx
	if t.done {
		return nil, errors.New("alert tx: already finished")
	}
	for i := len(t.staged) - 1; i >= 0; i-- {
		a := t.staged[i]
		if a.Location == location && a.IsActive && !a.IssuedAt.Before(since) {
			found := *a
			return &found, nil
		}
	}
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	return t.repo.findActiveLocked(location, since), nil
}

func (t *alertTx) Create(ctx context.Context, alert *alerts.Alert) error {
	_ = ctx
	if t.done {
		return errors.New("alert tx: already finished")
	}
	if alert == nil {
		return errors.New("alert repo: nil alert")
	}
	if err := alert.Validate(); err != nil {
		return err
	}
	t.staged = append(t.staged, alert)
	return nil
}

func (t *alertTx) Commit() error {
	if t.done {
		return errors.New("alert tx: already finished")
	}
	t.done = true
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, alert := range t.staged {
		t.repo.insertLocked(alert)
	}
	return nil
}

func (t *alertTx) Rollback() error {
	t.done = true
	t.staged = nil
	return nil
}
