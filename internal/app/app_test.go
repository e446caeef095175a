package app

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"jobline/internal/config"
	"jobline/internal/domain"
	"jobline/internal/engine"
)

func TestOpenWithoutConfigUsesDefaults(t *testing.T) {
	ws := t.TempDir()
	a, err := Open(context.Background(), Options{Workspace: ws, LogOutput: io.Discard})
	require.NoError(t, err)
	defer a.Close()
	require.Equal(t, DefaultAppID, a.Config.App.ID)

	v, err := a.Resolver.Login(context.Background(), "owner@example.com", "owner123")
	require.NoError(t, err)
	require.Equal(t, domain.RoleOwner, v.Role)
}

func TestOpenAppliesOverridesAndConfigFile(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(ws), []byte(config.GenerateDefault("crew")), 0o644))
	ctx := context.Background()
	a, err := Open(ctx, Options{Workspace: ws, OwnerEmail: "boss@example.com", OwnerPassword: "s3cret", LogOutput: io.Discard})
	require.NoError(t, err)
	defer a.Close()
	require.Equal(t, "crew", a.Config.App.ID)

	_, err = a.Resolver.Login(ctx, "owner@example.com", "owner123")
	require.Error(t, err, "template owner must be overridden")
	v, err := a.Resolver.Login(ctx, "boss@example.com", "s3cret")
	require.NoError(t, err)
	require.True(t, v.IsOwner())

	w, err := a.Engine.AddWorker(ctx, domain.OwnerViewer(), engine.WorkerCreateOptions{Name: "Ann", Email: "ann@example.com", Password: "pw"})
	require.NoError(t, err)
	v, err = a.Resolver.Login(ctx, "ann@example.com", "pw")
	require.NoError(t, err)
	require.Equal(t, w.ID, v.ActorID())
}

func TestResolveConfigRejectsBadLevel(t *testing.T) {
	_, err := ResolveConfig(Options{Workspace: t.TempDir(), LogLevel: "loud"})
	require.Error(t, err)
}
