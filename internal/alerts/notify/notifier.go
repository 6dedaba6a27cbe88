package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	alertapp "water-quality-cloud/internal/alerts/application"
	alerts "water-quality-cloud/internal/alerts/domain"
	masterdata "water-quality-cloud/internal/masterdata/domain"
)

const eventEscalated = "escalated"

// StationReader loads station metadata.
type StationReader interface {
	Get(ctx context.Context, id int64) (*masterdata.Station, error)
}

// AlertReader loads alert records.
type AlertReader interface {
	GetByID(ctx context.Context, id int64) (*alerts.Alert, error)
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders alert events and sends them via a channel. Critical alerts
// still active after the escalation delay are sent again as escalated.
type Notifier struct {
	stations       StationReader
	alerts         AlertReader
	channel        Channel
	template       *Template
	logger         *log.Logger
	escalation     time.Duration
	clock          clockwork.Clock
	mu             sync.Mutex
	timers         map[int64]clockwork.Timer
	sent           map[string]sendRecord
	cooldown       time.Duration
	dedupeWindow   time.Duration
	requestTimeout time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithEscalation configures escalation delay.
func WithEscalation(after time.Duration) Option {
	return func(n *Notifier) {
		if after > 0 {
			n.escalation = after
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock clockwork.Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithLogger reports delivery failures.
func WithLogger(logger *log.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

// WithRequestTimeout overrides the default timeout for escalation checks.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.requestTimeout = timeout
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same alert and event.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// NewNotifier constructs an alert notifier. The station reader is optional.
func NewNotifier(stations StationReader, alertReader AlertReader, channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if alertReader == nil {
		return nil, errors.New("alert notifier: nil alert reader")
	}
	if channel == nil {
		return nil, errors.New("alert notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		stations:       stations,
		alerts:         alertReader,
		channel:        channel,
		template:       template,
		clock:          clockwork.NewRealClock(),
		timers:         make(map[int64]clockwork.Timer),
		sent:           make(map[string]sendRecord),
		requestTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements alertapp.Notifier.
func (n *Notifier) Notify(ctx context.Context, event alertapp.Event) {
	if n == nil || n.channel == nil {
		return
	}
	station := n.lookup(ctx, event.Alert)
	n.dispatch(ctx, event.Type, event.Alert, station)

	switch event.Type {
	case alertapp.EventCreated:
		n.scheduleEscalation(event.Alert)
	case alertapp.EventResolved:
		n.cancelEscalation(event.Alert.ID)
	}
}

// Close stops all pending escalation timers.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.mu.Lock()
	timers := n.timers
	n.timers = make(map[int64]clockwork.Timer)
	n.mu.Unlock()
	for _, timer := range timers {
		if timer != nil {
			timer.Stop()
		}
	}
}

func (n *Notifier) lookup(ctx context.Context, alert alerts.Alert) *masterdata.Station {
	if n.stations == nil || alert.StationID == nil {
		return nil
	}
	station, err := n.stations.Get(ctx, *alert.StationID)
	if err != nil {
		return nil
	}
	return station
}

func (n *Notifier) dispatch(ctx context.Context, eventType string, alert alerts.Alert, station *masterdata.Station) {
	content, err := n.template.Render(buildTemplateData(eventType, alert, station))
	if err != nil {
		n.logf("alert notify: render failed: %v", err)
		return
	}
	if !n.shouldSend(alert.ID, eventType, content) {
		return
	}
	if err := n.channel.Send(ctx, content); err != nil {
		n.logf("alert notify: send failed: alert=%d event=%s err=%v", alert.ID, eventType, err)
		return
	}
	n.markSent(alert.ID, eventType, content)
}

func (n *Notifier) scheduleEscalation(alert alerts.Alert) {
	if n.escalation <= 0 || alert.ID == 0 {
		return
	}
	if severityRank(alert.Severity) < severityRank("critical") {
		return
	}
	id := alert.ID
	n.mu.Lock()
	if existing, ok := n.timers[id]; ok && existing != nil {
		existing.Stop()
	}
	n.timers[id] = n.clock.AfterFunc(n.escalation, func() {
		n.runEscalation(id)
	})
	n.mu.Unlock()
}

func (n *Notifier) cancelEscalation(alertID int64) {
	if alertID == 0 {
		return
	}
	n.mu.Lock()
	timer := n.timers[alertID]
	delete(n.timers, alertID)
	n.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
}

func (n *Notifier) runEscalation(alertID int64) {
	n.mu.Lock()
	delete(n.timers, alertID)
	n.mu.Unlock()

	ctx := context.Background()
	if n.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.requestTimeout)
		defer cancel()
	}

	alert, err := n.alerts.GetByID(ctx, alertID)
	if err != nil || alert == nil || !alert.IsActive {
		return
	}
	n.dispatch(ctx, eventEscalated, *alert, n.lookup(ctx, *alert))
}

func buildTemplateData(eventType string, alert alerts.Alert, station *masterdata.Station) TemplateData {
	stationName := ""
	if alert.StationID != nil {
		stationName = strconv.FormatInt(*alert.StationID, 10)
	}
	if station != nil && station.Name != "" {
		stationName = station.Name
	}
	resolvedAt := ""
	if alert.ResolvedAt != nil {
		resolvedAt = alert.ResolvedAt.UTC().Format(time.RFC3339)
	}
	status := "resolved"
	if alert.IsActive {
		status = "active"
	}
	return TemplateData{
		AlertID:    alert.ID,
		Location:   alert.Location,
		Station:    stationName,
		Type:       string(alert.Type),
		Severity:   alert.Severity,
		Message:    alert.Message,
		IssuedAt:   alert.IssuedAt.UTC().Format(time.RFC3339),
		ResolvedAt: resolvedAt,
		Status:     status,
		Suggestion: suggestionFor(alert.Severity),
		Event:      eventType,
		EventLabel: eventLabel(eventType),
	}
}

func eventLabel(event string) string {
	switch event {
	case alertapp.EventCreated:
		return "Issued"
	case alertapp.EventResolved:
		return "Resolved"
	case eventEscalated:
		return "Escalated"
	default:
		return event
	}
}

func suggestionFor(severity string) string {
	switch strings.TrimSpace(strings.ToLower(severity)) {
	case "critical":
		return "Stop drinking-water distribution from this source and sample immediately."
	case "high":
		return "Issue a public advisory and schedule confirmation sampling."
	case "medium":
		return "Verify the reading and monitor the station."
	default:
		return "Monitor the station."
	}
}

func severityRank(value string) int {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "critical":
		return 4
	case "high":
		return 3
	case "medium":
		return 2
	case "low":
		return 1
	default:
		return 0
	}
}

func (n *Notifier) shouldSend(alertID int64, eventType, content string) bool {
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	key := notificationKey(alertID, eventType)
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(alertID int64, eventType, content string) {
	key := notificationKey(alertID, eventType)
	n.mu.Lock()
	n.sent[key] = sendRecord{
		at:   n.clock.Now().UTC(),
		hash: hashContent(content),
	}
	n.mu.Unlock()
}

func (n *Notifier) logf(format string, args ...any) {
	if n.logger != nil {
		n.logger.Printf(format, args...)
	}
}

func notificationKey(alertID int64, eventType string) string {
	return strconv.FormatInt(alertID, 10) + "|" + eventType
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}
