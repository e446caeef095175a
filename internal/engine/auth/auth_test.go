package auth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"jobline/internal/config"
	"jobline/internal/domain"
)

func TestPolicyFromDefaultConfig(t *testing.T) {
	p := NewPolicy(config.Default("demo"))
	owner := domain.OwnerViewer()
	worker := domain.WorkerViewer(domain.Worker{ID: "w1", Name: "Ann"})

	require.NoError(t, p.Require(owner, PermJobCreate))
	require.NoError(t, p.Require(worker, PermJobComplete))

	var fe ForbiddenError
	require.ErrorAs(t, p.Require(worker, PermJobCreate), &fe)
	require.Equal(t, PermJobCreate, fe.Permission)
	require.Error(t, p.Require(owner, PermJobComplete), "owner must not complete jobs")
}

func TestRequireWorkerWithoutIdentity(t *testing.T) {
	p := NewPolicy(config.Default("demo"))
	require.Error(t, p.Require(domain.Viewer{Role: domain.RoleWorker}, PermJobList))
}

func TestPermissionsSorted(t *testing.T) {
	p := NewPolicy(config.Default("demo"))
	require.Equal(t, []string{PermJobComplete, PermJobList, PermViewStream}, p.Permissions(domain.RoleWorker))
}
