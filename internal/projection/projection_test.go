package projection_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"jobline/internal/config"
	"jobline/internal/db"
	"jobline/internal/docstore"
	"jobline/internal/domain"
	"jobline/internal/engine"
	"jobline/internal/logging"
	"jobline/internal/migrate"
	"jobline/internal/projection"
)

type testEnv struct {
	Engine engine.Engine
	Store  *docstore.SQLite
	Owner  domain.Viewer
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "projection.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	_, err = migrate.Migrate(ctx, conn.DB)
	require.NoError(t, err)
	store := docstore.NewSQLite(conn, docstore.WithLogger(logging.Discard()))
	t.Cleanup(store.Close)
	return testEnv{
		Engine: engine.New(store, conn, config.Default("test"), logging.Discard()),
		Store:  store,
		Owner:  domain.OwnerViewer(),
		Ctx:    ctx,
	}
}

func waitView(t *testing.T, p *projection.Projection, ok func(projection.View) bool) projection.View {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v, open := <-p.Updates():
			require.True(t, open, "projection closed")
			if ok(v) {
				return v
			}
		case <-deadline:
			cur, _ := p.Current()
			t.Fatalf("view condition not reached; current %+v", cur)
		}
	}
}

func TestQueries(t *testing.T) {
	owner := projection.Queries(domain.OwnerViewer())
	require.Len(t, owner, 3)
	require.Equal(t, domain.CollectionNotifications, owner[2].Collection)
	require.Equal(t, "read==false", owner[2].Filter.String())

	worker := projection.Queries(domain.WorkerViewer(domain.Worker{ID: "w1"}))
	require.Len(t, worker, 1)
	require.Equal(t, "assignedToId==w1 AND status==pending", worker[0].Filter.String())

	require.Empty(t, projection.Queries(domain.Viewer{}))
}

func TestOwnerAndWorkerViews(t *testing.T) {
	env := newTestEnv(t)
	ann, err := env.Engine.AddWorker(env.Ctx, env.Owner, engine.WorkerCreateOptions{Name: "Ann", Email: "a@x", Password: "pw"})
	require.NoError(t, err)
	annV := domain.WorkerViewer(ann)

	ownerP, err := projection.Open(env.Ctx, env.Store, env.Owner, logging.Discard())
	require.NoError(t, err)
	defer ownerP.Close()
	workerP, err := projection.Open(env.Ctx, env.Store, annV, logging.Discard())
	require.NoError(t, err)
	defer workerP.Close()

	first := waitView(t, ownerP, func(v projection.View) bool { return true })
	require.Len(t, first.Workers, 1)
	require.Empty(t, first.Jobs)

	job, err := env.Engine.CreateJob(env.Ctx, env.Owner, engine.JobCreateOptions{Title: "Fix", Description: "sink", Reward: 50, AssigneeID: ann.ID})
	require.NoError(t, err)

	wv := waitView(t, workerP, func(v projection.View) bool { return len(v.Jobs) == 1 })
	require.Equal(t, job.ID, wv.Jobs[0].ID)
	require.Empty(t, wv.Workers)

	_, _, err = env.Engine.CompleteJob(env.Ctx, annV, job.ID)
	require.NoError(t, err)

	waitView(t, workerP, func(v projection.View) bool { return len(v.Jobs) == 0 })
	ov := waitView(t, ownerP, func(v projection.View) bool {
		return v.UnreadCount() == 1 && len(v.Jobs) == 1 && v.Jobs[0].Status == domain.JobStatusCompleted
	})
	require.Equal(t, `Job "Fix" completed by Ann.`, ov.Notifications[0].Message)

	_, err = env.Engine.AcknowledgeNotification(env.Ctx, env.Owner, ov.Notifications[0].ID)
	require.NoError(t, err)
	waitView(t, ownerP, func(v projection.View) bool { return v.UnreadCount() == 0 })
}

func TestStatusNeverRegresses(t *testing.T) {
	env := newTestEnv(t)
	ann, err := env.Engine.AddWorker(env.Ctx, env.Owner, engine.WorkerCreateOptions{Name: "Ann", Email: "a@x", Password: "pw"})
	require.NoError(t, err)
	annV := domain.WorkerViewer(ann)
	p, err := projection.Open(env.Ctx, env.Store, env.Owner, logging.Discard())
	require.NoError(t, err)
	defer p.Close()

	const n = 5
	var ids []string
	for i := 0; i < n; i++ {
		job, err := env.Engine.CreateJob(env.Ctx, env.Owner, engine.JobCreateOptions{Title: "J", Description: "D", Reward: 1, AssigneeID: ann.ID})
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}
	for _, id := range ids {
		_, _, err := env.Engine.CompleteJob(env.Ctx, annV, id)
		require.NoError(t, err)
	}

	completed := map[string]bool{}
	var lastSeq uint64
	deadline := time.After(2 * time.Second)
	for len(completed) < n {
		select {
		case v := <-p.Updates():
			require.GreaterOrEqual(t, v.Seq, lastSeq)
			lastSeq = v.Seq
			for _, j := range v.Jobs {
				if completed[j.ID] {
					require.Equal(t, domain.JobStatusCompleted, j.Status, "job %s went back to pending", j.ID)
				}
				if j.Status == domain.JobStatusCompleted {
					completed[j.ID] = true
				}
			}
		case <-deadline:
			t.Fatalf("saw %d of %d completions", len(completed), n)
		}
	}
}

func TestCloseIsSynchronous(t *testing.T) {
	env := newTestEnv(t)
	p, err := projection.Open(env.Ctx, env.Store, env.Owner, logging.Discard())
	require.NoError(t, err)
	waitView(t, p, func(projection.View) bool { return true })
	p.Close()
	p.Close()
	require.Equal(t, 0, env.Store.SubscriberCount())

	_, err = env.Engine.AddWorker(env.Ctx, env.Owner, engine.WorkerCreateOptions{Name: "Late", Email: "l@x", Password: "pw"})
	require.NoError(t, err)
	_, open := <-p.Updates()
	require.False(t, open)
}

func TestOpenWithoutRole(t *testing.T) {
	env := newTestEnv(t)
	_, err := projection.Open(env.Ctx, env.Store, domain.Viewer{}, nil)
	require.ErrorIs(t, err, projection.ErrNoRole)
}

func TestScopeAndSortJobs(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jobs := []domain.Job{
		{ID: "a", AssignedToID: "w1", Status: domain.JobStatusPending, CreatedAt: t0},
		{ID: "b", AssignedToID: "w2", Status: domain.JobStatusPending, CreatedAt: t0.Add(time.Minute)},
		{ID: "c", AssignedToID: "w1", Status: domain.JobStatusCompleted, CreatedAt: t0.Add(2 * time.Minute)},
		{ID: "d", AssignedToID: "w1", Status: domain.JobStatusPending, CreatedAt: t0.Add(3 * time.Minute)},
	}
	scoped := projection.ScopeJobs(domain.WorkerViewer(domain.Worker{ID: "w1"}), jobs)
	projection.SortJobs(scoped)
	require.Equal(t, []string{"d", "a"}, []string{scoped[0].ID, scoped[1].ID})
	require.Len(t, projection.ScopeJobs(domain.OwnerViewer(), jobs), 4)
	require.Empty(t, projection.ScopeJobs(domain.Viewer{}, jobs))
}
