package reconcile

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	usermodels "nameaffirm/internal/users/models"
	userstore "nameaffirm/internal/users/store"
	"nameaffirm/internal/verifiedname/metrics"
	"nameaffirm/internal/verifiedname/models"
	"nameaffirm/internal/verifiedname/store"
	id "nameaffirm/pkg/domain"
	"nameaffirm/pkg/requestcontext"
)

var testNow = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu      sync.Mutex
	changes []models.Change
}

func (n *recordingNotifier) Notify(_ context.Context, c models.Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, c)
}

func (n *recordingNotifier) all() []models.Change {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Change(nil), n.changes...)
}

type fixture struct {
	records  *store.InMemory
	users    *userstore.InMemory
	tx       *store.ShardedTx
	notifier *recordingNotifier
	metrics  *metrics.Metrics
	opts     []Option
}

func newFixture() *fixture {
	f := &fixture{
		records:  store.NewInMemory(),
		users:    userstore.NewInMemory(),
		notifier: &recordingNotifier{},
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	f.tx = store.NewShardedTx(f.records, time.Second)
	f.opts = []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(f.metrics),
		WithNotifier(f.notifier),
	}
	return f
}

func (f *fixture) addUser(userID id.UserID) {
	_ = f.users.Save(context.Background(), &usermodels.User{ID: userID, Username: "user" + userID.String()})
}

func (f *fixture) seed(rec *models.VerifiedName) {
	if err := f.records.Create(context.Background(), rec); err != nil {
		panic(err)
	}
}

func (f *fixture) list(userID id.UserID) []*models.VerifiedName {
	out, err := f.records.List(context.Background(), store.ForUser(userID))
	if err != nil {
		panic(err)
	}
	return out
}

func at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), testNow.Add(offset))
}

func record(userID id.UserID, name string, offset time.Duration, mutate ...func(*models.VerifiedName)) *models.VerifiedName {
	rec, err := models.NewVerifiedName(id.NewVerifiedNameID(), models.NewVerifiedNameParams{
		UserID:       userID,
		VerifiedName: name,
		ProfileName:  models.StringPtr("Profile"),
	}, testNow.Add(offset))
	if err != nil {
		panic(err)
	}
	for _, m := range mutate {
		m(rec)
	}
	return rec
}

func withStatus(s models.Status) func(*models.VerifiedName) {
	return func(r *models.VerifiedName) { r.Status = s }
}

func withIDVAttempt(a id.AttemptID) func(*models.VerifiedName) {
	return func(r *models.VerifiedName) { r.VerificationAttemptID = models.AttemptPtr(a) }
}

func withExamAttempt(a id.AttemptID) func(*models.VerifiedName) {
	return func(r *models.VerifiedName) { r.ProctoredExamAttemptID = models.AttemptPtr(a) }
}

// racingRecords simulates a concurrent delivery that commits its record
// between our read and our conditional insert.
type racingRecords struct {
	store.Records
	competitor *models.VerifiedName
	raced      bool
}

func (r *racingRecords) CreateIfAbsent(ctx context.Context, rec *models.VerifiedName, guard store.Filter) error {
	if !r.raced {
		r.raced = true
		if err := r.Records.Create(ctx, r.competitor); err != nil {
			return err
		}
	}
	return r.Records.CreateIfAbsent(ctx, rec, guard)
}

type racingTx struct {
	records *racingRecords
}

func (t racingTx) RunInTx(ctx context.Context, _ id.UserID, fn func(ctx context.Context, records store.Records) error) error {
	return fn(ctx, t.records)
}
