package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	alertapp "water-quality-cloud/internal/alerts/application"
	alertrepo "water-quality-cloud/internal/alerts/infrastructure/postgres"
	alerthttp "water-quality-cloud/internal/alerts/interfaces/http"
	alertnotify "water-quality-cloud/internal/alerts/notify"
	"water-quality-cloud/internal/audit"
	"water-quality-cloud/internal/auth"
	dashboardapp "water-quality-cloud/internal/dashboard/application"
	dashboardrepo "water-quality-cloud/internal/dashboard/infrastructure/postgres"
	dashboardhttp "water-quality-cloud/internal/dashboard/interfaces/http"
	masterdatarepo "water-quality-cloud/internal/masterdata/infrastructure/postgres"
	"water-quality-cloud/internal/observability/metrics"
	qualityapp "water-quality-cloud/internal/quality/application"
	qualityhttp "water-quality-cloud/internal/quality/interfaces/http"
	telemetrypostgres "water-quality-cloud/internal/telemetry/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	clock := clockwork.NewRealClock()

	ruleTable, err := qualityapp.LoadRuleTable(cfg.RulesConfigPath)
	if err != nil {
		logger.Fatalf("rule table error: %v", err)
	}

	stationRepo := masterdatarepo.NewStationRepository(db)
	readingQuery := telemetrypostgres.NewReadingQuery(db)
	alertRepo := alertrepo.NewAlertRepository(db)

	alertBroker := alerthttp.NewSSEBroker()
	notifiers := []alertapp.Notifier{alertBroker}
	if cfg.AlertWebhookURL != "" {
		channel, err := alertnotify.NewWebhookChannel(cfg.AlertWebhookURL)
		if err != nil {
			logger.Fatalf("alert webhook error: %v", err)
		}
		tpl, err := alertnotify.NewTemplate(cfg.AlertNotifyTemplate)
		if err != nil {
			logger.Fatalf("alert template error: %v", err)
		}
		webhookNotifier, err := alertnotify.NewNotifier(
			stationRepo,
			alertRepo,
			channel,
			tpl,
			alertnotify.WithClock(clock),
			alertnotify.WithLogger(logger),
			alertnotify.WithEscalation(cfg.AlertEscalationAfter),
			alertnotify.WithCooldown(cfg.AlertNotifyCooldown),
			alertnotify.WithDedupeWindow(cfg.AlertNotifyDedupeWindow),
		)
		if err != nil {
			logger.Fatalf("alert notifier error: %v", err)
		}
		defer webhookNotifier.Close()
		notifiers = append(notifiers, webhookNotifier)
	}
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := alertnotify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaAlertTopic, logger)
		if err != nil {
			logger.Fatalf("kafka publisher error: %v", err)
		}
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
	}
	alertNotifier := alertnotify.NewMultiNotifier(notifiers...)

	alertService, err := alertapp.NewService(alertRepo,
		alertapp.WithNotifier(alertNotifier),
		alertapp.WithClock(clock),
	)
	if err != nil {
		logger.Fatalf("alert service error: %v", err)
	}

	emitter, err := qualityapp.NewEmitter(alertRepo,
		qualityapp.WithEmitterNotifier(alertService),
		qualityapp.WithEmitterClock(clock),
		qualityapp.WithDedupWindow(cfg.DedupWindow),
	)
	if err != nil {
		logger.Fatalf("alert emitter error: %v", err)
	}
	qualityService, err := qualityapp.NewService(stationRepo, readingQuery, emitter,
		qualityapp.WithRuleTable(ruleTable),
		qualityapp.WithClock(clock),
		qualityapp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("quality service error: %v", err)
	}

	aggregator, err := dashboardapp.NewAggregator(dashboardrepo.NewSource(db),
		dashboardapp.WithTTL(cfg.DashboardCacheTTL),
		dashboardapp.WithClock(clock),
		dashboardapp.WithRuleTable(ruleTable),
	)
	if err != nil {
		logger.Fatalf("dashboard aggregator error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := qualityapp.NewScheduler(qualityService, cfg.SweepInterval, clock, logger)
	go scheduler.Start(ctx)

	auditRepo := audit.NewRepository(db, audit.WithLogger(logger))

	predictiveHandler, err := qualityhttp.NewHandler(qualityService, qualityhttp.WithAuditLogger(auditRepo))
	if err != nil {
		logger.Fatalf("predictive handler error: %v", err)
	}
	alertHandler, err := alerthttp.NewHandler(alertService, alerthttp.NewStreamHandler(alertBroker),
		alerthttp.WithAuditLogger(auditRepo),
	)
	if err != nil {
		logger.Fatalf("alert handler error: %v", err)
	}
	dashboardHandler, err := dashboardhttp.NewHandler(aggregator)
	if err != nil {
		logger.Fatalf("dashboard handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/api/v1/dashboard"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/predictive/", predictiveHandler)
	mux.Handle("/api/v1/alerts", alertHandler)
	mux.Handle("/api/v1/alerts/", alertHandler)
	mux.Handle("/api/v1/dashboard", dashboardHandler)
	mux.Handle("/api/v1/dashboard/", dashboardHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Printf("http listening on %s", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal(err)
	}
}

type config struct {
	DatabaseURL             string
	HTTPAddr                string
	JWTSecret               string
	SweepInterval           time.Duration
	DashboardCacheTTL       time.Duration
	DedupWindow             time.Duration
	RulesConfigPath         string
	AlertWebhookURL         string
	AlertNotifyTemplate     string
	AlertEscalationAfter    time.Duration
	AlertNotifyCooldown     time.Duration
	AlertNotifyDedupeWindow time.Duration
	KafkaBrokers            []string
	KafkaAlertTopic         string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:             getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:                getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:               getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		SweepInterval:           getenvDuration("SWEEP_INTERVAL", 0),
		DashboardCacheTTL:       getenvDuration("DASHBOARD_CACHE_TTL", dashboardapp.DefaultTTL),
		DedupWindow:             getenvDuration("DEDUP_WINDOW", qualityapp.DefaultDedupWindow),
		RulesConfigPath:         getenvDefault("QUALITY_RULES_CONFIG", ""),
		AlertWebhookURL:         getenvDefault("ALERT_WEBHOOK_URL", ""),
		AlertNotifyTemplate:     getenvDefault("ALERT_NOTIFY_TEMPLATE", ""),
		AlertEscalationAfter:    getenvDuration("ALERT_ESCALATION_AFTER", 0),
		AlertNotifyCooldown:     getenvDuration("ALERT_NOTIFY_COOLDOWN", 0),
		AlertNotifyDedupeWindow: getenvDuration("ALERT_NOTIFY_DEDUP_WINDOW", 0),
		KafkaBrokers:            splitList(getenvDefault("KAFKA_BROKERS", "")),
		KafkaAlertTopic:         getenvDefault("KAFKA_ALERT_TOPIC", "alert-events"),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		// Bare integers are read as seconds.
		if seconds := getenvIntDefault(key, -1); seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
		return fallback
	}
	return parsed
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps the alert stream working behind the logging middleware.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
