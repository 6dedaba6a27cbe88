package application

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	alerts "water-quality-cloud/internal/alerts/domain"
	"water-quality-cloud/internal/observability/metrics"
)

const (
	EventCreated  = "created"
	EventResolved = "resolved"
)

// Notifier publishes alert lifecycle events.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Event represents a lifecycle update.
type Event struct {
	Type  string       `json:"type"`
	Alert alerts.Alert `json:"alert"`
}

// Repository reads, creates and resolves alerts.
type Repository interface {
	Create(ctx context.Context, alert *alerts.Alert) error
	GetByID(ctx context.Context, id int64) (*alerts.Alert, error)
	ListActive(ctx context.Context) ([]alerts.Alert, error)
	ListByType(ctx context.Context, alertType alerts.Type, activeOnly bool) ([]alerts.Alert, error)
	Resolve(ctx context.Context, id int64, resolvedAt time.Time) (*alerts.Alert, error)
}

// UnitOfWork scopes alert reads and writes to one transaction. Rows created
// through it are visible to its own FindActiveByLocation before Commit.
type UnitOfWork interface {
	FindActiveByLocation(ctx context.Context, location string, since time.Time) (*alerts.Alert, error)
	Create(ctx context.Context, alert *alerts.Alert) error
	Commit() error
	Rollback() error
}

// Store opens units of work.
type Store interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// Service handles alert queries and state transitions.
type Service struct {
	repo     Repository
	notifier Notifier
	clock    clockwork.Clock
}

// ServiceOption customizes the alert service.
type ServiceOption func(*Service)

// WithNotifier assigns a notifier.
func WithNotifier(notifier Notifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithClock assigns a clock.
func WithClock(clock clockwork.Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService constructs an alert service.
func NewService(repo Repository, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("alerts: nil repository")
	}
	service := &Service{
		repo:  repo,
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// ListActive returns active alerts, newest first.
func (s *Service) ListActive(ctx context.Context) ([]alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	return s.repo.ListActive(ctx)
}

// ListByType returns alerts of one type, newest first.
func (s *Service) ListByType(ctx context.Context, alertType alerts.Type, activeOnly bool) ([]alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	if _, err := alerts.ParseType(string(alertType)); err != nil {
		return nil, err
	}
	return s.repo.ListByType(ctx, alertType, activeOnly)
}

// Get loads one alert.
func (s *Service) Get(ctx context.Context, id int64) (*alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	alert, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, alerts.ErrNotFound
	}
	return alert, nil
}

// DefaultSeverity applies to manually created alerts that name none.
const DefaultSeverity = "medium"

// CreateInput is a manually issued alert.
type CreateInput struct {
	Type      alerts.Type
	Message   string
	Location  string
	Latitude  *float64
	Longitude *float64
	Severity  string
	ReportID  *int64
}

// Create issues an active alert stamped with the current time.
func (s *Service) Create(ctx context.Context, input CreateInput) (*alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	if _, err := alerts.ParseType(string(input.Type)); err != nil {
		return nil, err
	}
	severity := input.Severity
	if severity == "" {
		severity = DefaultSeverity
	}
	alert := &alerts.Alert{
		Type:      input.Type,
		Message:   input.Message,
		Location:  input.Location,
		Latitude:  input.Latitude,
		Longitude: input.Longitude,
		Severity:  severity,
		ReportID:  input.ReportID,
		IssuedAt:  s.clock.Now().UTC(),
		IsActive:  true,
	}
	if err := alert.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, alert); err != nil {
		return nil, err
	}
	s.notify(ctx, Event{Type: EventCreated, Alert: *alert})
	return alert, nil
}

// Resolve deactivates an alert. Resolving an inactive alert is a no-op.
func (s *Service) Resolve(ctx context.Context, id int64) (*alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.IsActive {
		return current, nil
	}
	resolved, err := s.repo.Resolve(ctx, id, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return nil, alerts.ErrNotFound
	}
	s.notify(ctx, Event{Type: EventResolved, Alert: *resolved})
	return resolved, nil
}

// Notify forwards an event raised elsewhere to the configured notifier.
func (s *Service) Notify(ctx context.Context, event Event) {
	if s == nil {
		return
	}
	s.notify(ctx, event)
}

func (s *Service) notify(ctx context.Context, event Event) {
	metrics.IncAlertEvent(event.Type)
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, event)
}
