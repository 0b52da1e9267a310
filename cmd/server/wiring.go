package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jwttoken "nameaffirm/internal/jwt_token"
	"nameaffirm/internal/platform/config"
	"nameaffirm/internal/platform/kafka"
	"nameaffirm/internal/platform/kafka/consumer"
	"nameaffirm/internal/platform/kafka/producer"
	platformmetrics "nameaffirm/internal/platform/metrics"
	"nameaffirm/internal/platform/middleware"
	"nameaffirm/internal/platform/redis"
	userstore "nameaffirm/internal/users/store"
	"nameaffirm/internal/verifiedname/events"
	"nameaffirm/internal/verifiedname/handler"
	"nameaffirm/internal/verifiedname/metrics"
	"nameaffirm/internal/verifiedname/notify"
	"nameaffirm/internal/verifiedname/reconcile"
	"nameaffirm/internal/verifiedname/service"
	"nameaffirm/internal/verifiedname/store"
	"nameaffirm/pkg/platform/httputil"
	authmw "nameaffirm/pkg/platform/middleware/auth"
	request "nameaffirm/pkg/platform/middleware/request"
	"nameaffirm/pkg/platform/middleware/requesttime"
)

// application holds everything main starts and stops.
type application struct {
	router    http.Handler
	consumer  *consumer.Consumer
	topics    []string
	storeKind string
	closers   []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type storage struct {
	records store.Records
	configs store.Configs
	tx      store.Tx
	users   userstore.Directory
	ping    func(ctx context.Context) error
	kind    string
}

func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*application, error) {
	app := &application{}
	fail := func(err error) (*application, error) {
		app.close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := platformmetrics.New(reg)
	domainMetrics := metrics.New(reg)

	st, err := openStorage(ctx, cfg, app, log)
	if err != nil {
		return fail(err)
	}
	app.storeKind = st.kind

	var (
		prod          *producer.Producer
		kafkaNotifier *notify.KafkaNotifier
		notifier      reconcile.Notifier = notify.NewLogNotifier(log)
	)
	if cfg.Kafka.Enabled() {
		prod, err = producer.New(cfg.Kafka.Brokers)
		if err != nil {
			return fail(fmt.Errorf("kafka producer: %w", err))
		}
		app.closers = append(app.closers, prod.Close)
		if cfg.Kafka.EnsureTopics {
			if err := ensureTopics(ctx, cfg.Kafka, prod, log); err != nil {
				return fail(err)
			}
		}
		kafkaNotifier = notify.NewKafkaNotifier(prod, cfg.Kafka.ChangesTopic,
			notify.WithLogger(log),
			notify.WithMetrics(domainMetrics),
		)
		notifier = kafkaNotifier
	}

	svc, err := service.New(st.records, st.configs, st.tx, st.users,
		service.WithLogger(log),
		service.WithMetrics(domainMetrics),
		service.WithNotifier(notifier),
	)
	if err != nil {
		return fail(err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fail(err)
	}
	if redisClient != nil {
		app.closers = append(app.closers, func() { _ = redisClient.Close() })
	}

	if cfg.Kafka.Enabled() {
		opts := []reconcile.Option{
			reconcile.WithLogger(log),
			reconcile.WithMetrics(domainMetrics),
			reconcile.WithNotifier(notifier),
		}
		router := events.NewRouter(log, nil)
		router.Register(cfg.Kafka.IDVTopic, events.NewIDVHandler(reconcile.NewIDV(st.tx, st.users, opts...), log))
		router.Register(cfg.Kafka.ProctoringTopic, events.NewProctoringHandler(reconcile.NewProctoring(st.tx, st.users, opts...), log))

		var seen events.SeenStore = events.NewMemorySeenStore()
		if redisClient != nil {
			seen = events.NewRedisSeenStore(redisClient.Client)
		}
		var retryOpts []events.RetrierOption
		if cfg.Kafka.DeadLetterTopic != "" {
			retryOpts = append(retryOpts, events.WithDeadLetter(prod, cfg.Kafka.DeadLetterTopic))
		}
		pipeline := events.NewPipeline(router, seen, cfg.Events, log, domainMetrics, retryOpts...)

		app.topics = router.Topics()
		app.consumer, err = consumer.New(consumer.Config{
			Brokers: cfg.Kafka.Brokers,
			Group:   cfg.Kafka.Group,
			Topics:  app.topics,
		}, pipeline, consumer.WithLogger(log))
		if err != nil {
			return fail(fmt.Errorf("kafka consumer: %w", err))
		}
		app.closers = append(app.closers, app.consumer.Close)
	}

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)

	checks := map[string]func(context.Context) error{"store": st.ping}
	if redisClient != nil {
		checks["redis"] = redisClient.Health
	}
	if prod != nil {
		checks["kafka"] = prod.Ping
		checks["change_notifier"] = kafkaNotifier.Healthy
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Recovery(log, httpMetrics))
	r.Use(middleware.Logger(log, httpMetrics))
	r.Get("/health", healthHandler(checks))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(authmw.RequireAuth(jwttoken.NewJWTServiceAdapter(jwtService), log))
		handler.New(svc, log).Register(r)
	})
	app.router = r

	return app, nil
}

// openStorage selects Postgres when DATABASE_URL is set and in-memory stores
// otherwise. The in-memory user directory is filled from USERS_SEED_FILE.
func openStorage(ctx context.Context, cfg config.Config, app *application, log *slog.Logger) (*storage, error) {
	if cfg.Database.URL == "" {
		users := userstore.NewInMemory()
		if path := cfg.Database.UsersSeedFile; path != "" {
			n, err := users.LoadSeedFile(ctx, path)
			if err != nil {
				return nil, err
			}
			log.Info("loaded user seed", "path", path, "users", n)
		} else {
			log.Warn("no USERS_SEED_FILE set, in-memory user directory is empty")
		}
		records := store.NewInMemory()
		return &storage{
			records: records,
			configs: records,
			tx:      store.NewShardedTx(records, cfg.Server.TxTimeout),
			users:   users,
			ping:    func(context.Context) error { return nil },
			kind:    "memory",
		}, nil
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)
	app.closers = append(app.closers, func() { _ = db.Close() })

	records := store.NewPostgres(db)
	return &storage{
		records: records,
		configs: records,
		tx:      store.NewPostgresTx(db, records, cfg.Server.TxTimeout),
		users:   userstore.NewPostgres(db),
		ping:    db.PingContext,
		kind:    "postgres",
	}, nil
}

func ensureTopics(ctx context.Context, cfg config.Kafka, prod *producer.Producer, log *slog.Logger) error {
	results, err := kafka.EnsureTopics(ctx, prod.Client(), cfg.TopicPartitions, cfg.TopicReplication, cfg.ManagedTopics()...)
	if err != nil {
		return fmt.Errorf("ensure topics: %w", err)
	}
	for _, res := range results {
		log.Info("kafka topic ready", "topic", res.Topic, "created", res.Created)
	}
	return nil
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func healthHandler(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
