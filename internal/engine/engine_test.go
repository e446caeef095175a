package engine_test

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
	"jobline/internal/engine/auth"
	"jobline/internal/events"
	"jobline/internal/logging"
	"jobline/internal/migrate"
	"jobline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Store  *docstore.SQLite
	Ctx    context.Context
	Owner  domain.Viewer
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	_, err = migrate.Migrate(ctx, conn.DB)
	require.NoError(t, err)
	store := docstore.NewSQLite(conn, docstore.WithNamespace("test-app"), docstore.WithLogger(logging.Discard()))
	t.Cleanup(store.Close)
	eng := engine.New(store, conn, config.Default("test-app"), logging.Discard())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Store: store, Ctx: ctx, Owner: domain.OwnerViewer()}
}

func (env testEnv) addWorker(t *testing.T, name, email string) domain.Viewer {
	t.Helper()
	w, err := env.Engine.AddWorker(env.Ctx, env.Owner, engine.WorkerCreateOptions{Name: name, Email: email, Password: "pw"})
	require.NoError(t, err, "add worker %s", name)
	return domain.WorkerViewer(w)
}

func (env testEnv) createJob(t *testing.T, title string, assignee domain.Viewer) domain.Job {
	t.Helper()
	job, err := env.Engine.CreateJob(env.Ctx, env.Owner, engine.JobCreateOptions{
		Title: title, Description: "do " + title, Reward: 50, AssigneeID: assignee.Worker.ID,
	})
	require.NoError(t, err, "create job %s", title)
	return job
}

func TestAssignAndCompleteJob(t *testing.T) {
	env := newTestEnv(t)
	ann := env.addWorker(t, "Ann", "ann@example.com")
	job := env.createJob(t, "Fix sink", ann)
	require.Equal(t, domain.JobStatusPending, job.Status)
	require.Equal(t, "Ann", job.AssignedToName)
	require.Equal(t, float64(50), job.Reward)
	require.False(t, job.CreatedAt.IsZero())

	done, note, err := env.Engine.CompleteJob(env.Ctx, ann, job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusCompleted, done.Status)
	require.Equal(t, `Job "Fix sink" completed by Ann.`, note.Message)
	require.False(t, note.Read)

	notes, err := env.Engine.ListNotifications(env.Ctx, env.Owner)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, note.ID, notes[0].ID)

	jobs, err := env.Engine.ListJobs(env.Ctx, ann)
	require.NoError(t, err)
	require.Empty(t, jobs, "completed job must leave the worker's list")

	stored, err := env.Engine.GetJob(env.Ctx, env.Owner, job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusCompleted, stored.Status)

	evts, err := env.Engine.ListEvents(env.Ctx, env.Owner, 10, 0, repo.EventFilters{Type: events.JobCompleted})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	require.Equal(t, job.ID, evts[0].EntityID)
	require.Equal(t, ann.Worker.ID, evts[0].ActorID)
}

func TestCompleteTwiceAppendsOneNotification(t *testing.T) {
	env := newTestEnv(t)
	ann := env.addWorker(t, "Ann", "ann@example.com")
	job := env.createJob(t, "Paint", ann)
	_, _, err := env.Engine.CompleteJob(env.Ctx, ann, job.ID)
	require.NoError(t, err)
	_, _, err = env.Engine.CompleteJob(env.Ctx, ann, job.ID)
	require.ErrorIs(t, err, engine.ErrJobNotPending)

	notes, err := env.Engine.ListNotifications(env.Ctx, env.Owner)
	require.NoError(t, err)
	require.Len(t, notes, 1)
}

func TestCompleteRequiresAssignee(t *testing.T) {
	env := newTestEnv(t)
	ann := env.addWorker(t, "Ann", "ann@example.com")
	bob := env.addWorker(t, "Bob", "bob@example.com")
	job := env.createJob(t, "Mow", ann)

	_, _, err := env.Engine.CompleteJob(env.Ctx, bob, job.ID)
	var fe auth.ForbiddenError
	require.ErrorAs(t, err, &fe)
	_, _, err = env.Engine.CompleteJob(env.Ctx, env.Owner, job.ID)
	require.Error(t, err, "owner must not complete jobs")
	_, _, err = env.Engine.CompleteJob(env.Ctx, ann, "missing")
	require.ErrorIs(t, err, docstore.ErrNotFound)

	notes, err := env.Engine.ListNotifications(env.Ctx, env.Owner)
	require.NoError(t, err)
	require.Empty(t, notes, "rejected completions must not notify")
}

func TestCreateJobValidation(t *testing.T) {
	env := newTestEnv(t)
	ann := env.addWorker(t, "Ann", "ann@example.com")
	base := engine.JobCreateOptions{Title: "T", Description: "D", Reward: 1, AssigneeID: ann.Worker.ID}
	cases := map[string]struct {
		mutate func(*engine.JobCreateOptions)
		field  string
	}{
		"title":       {func(o *engine.JobCreateOptions) { o.Title = " " }, "title"},
		"description": {func(o *engine.JobCreateOptions) { o.Description = "" }, "description"},
		"assignee":    {func(o *engine.JobCreateOptions) { o.AssigneeID = "" }, "assignee_id"},
		"unknown":     {func(o *engine.JobCreateOptions) { o.AssigneeID = "nobody" }, "assignee_id"},
		"negative":    {func(o *engine.JobCreateOptions) { o.Reward = -1 }, "reward"},
	}
	for name, tc := range cases {
		opts := base
		tc.mutate(&opts)
		_, err := env.Engine.CreateJob(env.Ctx, env.Owner, opts)
		var ve engine.ValidationError
		require.ErrorAs(t, err, &ve, name)
		require.Equal(t, tc.field, ve.Field, name)
	}
	_, err := env.Engine.CreateJob(env.Ctx, ann, base)
	require.Error(t, err, "worker must not create jobs")

	jobs, err := env.Engine.ListJobs(env.Ctx, env.Owner)
	require.NoError(t, err)
	require.Empty(t, jobs)
}

func TestCreateJobUnnamedAssignee(t *testing.T) {
	env := newTestEnv(t)
	rec, err := env.Store.Create(env.Ctx, domain.CollectionWorkers, docstore.Fields{"email": "x@example.com", "password": "pw"})
	require.NoError(t, err)
	job, err := env.Engine.CreateJob(env.Ctx, env.Owner, engine.JobCreateOptions{Title: "T", Description: "D", Reward: 0, AssigneeID: rec.ID})
	require.NoError(t, err)
	require.Equal(t, engine.UnknownAssigneeName, job.AssignedToName)
}

func TestParseReward(t *testing.T) {
	good := map[string]float64{"50": 50, " 12.5 ": 12.5, "0": 0}
	for in, want := range good {
		got, err := engine.ParseReward(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "abc", "-3", "NaN", "Inf", "12abc"} {
		_, err := engine.ParseReward(in)
		require.Error(t, err, in)
	}
}

func TestListJobsScopedToWorker(t *testing.T) {
	env := newTestEnv(t)
	ann := env.addWorker(t, "Ann", "ann@example.com")
	bob := env.addWorker(t, "Bob", "bob@example.com")
	first := env.createJob(t, "first", ann)
	second := env.createJob(t, "second", ann)
	env.createJob(t, "bobs", bob)

	jobs, err := env.Engine.ListJobs(env.Ctx, ann)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, second.ID, jobs[0].ID, "newest first")
	require.Equal(t, first.ID, jobs[1].ID)

	all, err := env.Engine.ListJobs(env.Ctx, env.Owner)
	require.NoError(t, err)
	require.Len(t, all, 3)

	_, err = env.Engine.GetJob(env.Ctx, bob, first.ID)
	require.ErrorIs(t, err, docstore.ErrNotFound, "other worker's job must look missing")
}

func TestAcknowledgeIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ann := env.addWorker(t, "Ann", "ann@example.com")
	job := env.createJob(t, "Sweep", ann)
	_, note, err := env.Engine.CompleteJob(env.Ctx, ann, job.ID)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		n, err := env.Engine.AcknowledgeNotification(env.Ctx, env.Owner, note.ID)
		require.NoError(t, err, "ack %d", i)
		require.True(t, n.Read)
	}
	evts, err := env.Engine.ListEvents(env.Ctx, env.Owner, 10, 0, repo.EventFilters{Type: events.NotificationAcknowledged})
	require.NoError(t, err)
	require.Len(t, evts, 1)

	_, err = env.Engine.AcknowledgeNotification(env.Ctx, env.Owner, "missing")
	require.ErrorIs(t, err, docstore.ErrNotFound)
	_, err = env.Engine.AcknowledgeNotification(env.Ctx, ann, note.ID)
	require.Error(t, err, "worker must not acknowledge")
}

func TestAddWorkerValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.AddWorker(env.Ctx, env.Owner, engine.WorkerCreateOptions{Name: "Ann", Email: "", Password: "pw"})
	var ve engine.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "email", ve.Field)

	workers, err := env.Engine.ListWorkers(env.Ctx, env.Owner)
	require.NoError(t, err)
	require.Empty(t, workers)
}
