package application_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/cihealth/internal/adapter/driven/sqlstore"
	"github.com/ericfisherdev/cihealth/internal/application"
	"github.com/ericfisherdev/cihealth/internal/domain/model"
)

// testStores opens a migrated SQLite database in a temp directory.
func testStores(t *testing.T) (*sqlstore.BuildRepo, *sqlstore.AlertRepo) {
	t.Helper()

	db, err := sqlstore.NewSQLiteDB(context.Background(), filepath.Join(t.TempDir(), "cihealth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, sqlstore.RunMigrations(db))

	return sqlstore.NewBuildRepo(db), sqlstore.NewAlertRepo(db)
}

// fakeNotifier records sends and fails the first failFirst of them.
type fakeNotifier struct {
	mu        sync.Mutex
	failFirst int
	attempts  int
	sent      []model.Notification
}

func (f *fakeNotifier) Send(_ context.Context, n model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts++
	if f.attempts <= f.failFirst {
		return errors.New("smtp relay unavailable")
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// recordingPublisher records published builds and optionally fails.
type recordingPublisher struct {
	mu        sync.Mutex
	published []model.Build
	err       error
}

func (p *recordingPublisher) PublishBuild(_ context.Context, b model.Build, _ model.UpsertResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, b)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

// failingBuildStore fails every upsert.
type failingBuildStore struct {
	*sqlstore.BuildRepo
}

func (failingBuildStore) Upsert(context.Context, model.Build) (model.UpsertResult, error) {
	return model.UpsertResult{}, errors.New("database is locked")
}

type harness struct {
	builds   *sqlstore.BuildRepo
	alerts   *sqlstore.AlertRepo
	notifier *fakeNotifier
	events   *recordingPublisher
	svc      *application.IngestService
}

func newHarness(t *testing.T, recipients ...string) *harness {
	t.Helper()

	if recipients == nil {
		recipients = []string{"oncall@example.com"}
	}

	builds, alerts := testStores(t)
	h := &harness{
		builds:   builds,
		alerts:   alerts,
		notifier: &fakeNotifier{},
		events:   &recordingPublisher{},
	}
	dispatcher := application.NewAlertDispatcher(alerts, h.notifier, "ci-health@example.com", recipients, 0)
	h.svc = application.NewIngestService(builds, h.events, dispatcher)
	return h
}

func (h *harness) countBuilds(t *testing.T) int {
	t.Helper()
	builds, err := h.builds.ListRecent(context.Background(), application.MaxBuildsLimit)
	require.NoError(t, err)
	return len(builds)
}
