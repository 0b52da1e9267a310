package cli

import (
	"context"
	"database/sql"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"

	"nameaffirm/internal/platform/kafka/consumer"
	userstore "nameaffirm/internal/users/store"
	"nameaffirm/internal/verifiedname/events"
	"nameaffirm/internal/verifiedname/notify"
	"nameaffirm/internal/verifiedname/reconcile"
	"nameaffirm/internal/verifiedname/service"
	"nameaffirm/internal/verifiedname/store"
)

// Stores bundles the persistence a Backend runs against.
type Stores struct {
	Records store.Records
	Configs store.Configs
	Tx      store.Tx
	Users   userstore.Directory
}

// Backend is what the record commands operate on. IDV and Proctoring decode
// raw event bodies exactly as the consumer does.
type Backend struct {
	Service    *service.Service
	IDV        consumer.Handler
	Proctoring consumer.Handler

	closers []func()
}

// Opener builds a Backend for one command invocation.
type Opener func(ctx context.Context, opts *RootOptions) (*Backend, error)

// NewBackend wires the service and both event handlers onto st. Changes are
// logged rather than published.
func NewBackend(st Stores, logger *slog.Logger) (*Backend, error) {
	notifier := notify.NewLogNotifier(logger)
	svc, err := service.New(st.Records, st.Configs, st.Tx, st.Users,
		service.WithLogger(logger),
		service.WithNotifier(notifier),
	)
	if err != nil {
		return nil, err
	}
	opts := []reconcile.Option{
		reconcile.WithLogger(logger),
		reconcile.WithNotifier(notifier),
	}
	return &Backend{
		Service:    svc,
		IDV:        events.NewIDVHandler(reconcile.NewIDV(st.Tx, st.Users, opts...), logger),
		Proctoring: events.NewProctoringHandler(reconcile.NewProctoring(st.Tx, st.Users, opts...), logger),
	}, nil
}

func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// OpenPostgres connects to opts.DatabaseURL.
func OpenPostgres(ctx context.Context, opts *RootOptions) (*Backend, error) {
	if opts.DatabaseURL == "" {
		return nil, NewExitError(ExitCommandError, "--database-url or DATABASE_URL is required")
	}
	db, err := sql.Open("pgx", opts.DatabaseURL)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, WrapExitError(ExitCommandError, "failed to reach database", err)
	}

	records := store.NewPostgres(db)
	b, err := NewBackend(Stores{
		Records: records,
		Configs: records,
		Tx:      store.NewPostgresTx(db, records, opts.Config.Server.TxTimeout),
		Users:   userstore.NewPostgres(db),
	}, opts.Logger)
	if err != nil {
		_ = db.Close()
		return nil, WrapExitError(ExitCommandError, "failed to build service", err)
	}
	b.closers = append(b.closers, func() { _ = db.Close() })
	return b, nil
}

func (o *RootOptions) backend(ctx context.Context) (*Backend, error) {
	return o.open(ctx, o)
}
