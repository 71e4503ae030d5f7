//go:build integration

package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/morezero/domain-controller/pkg/commsutil"
	"github.com/morezero/domain-controller/pkg/db"
	"github.com/morezero/domain-controller/pkg/dispatcher"
	"github.com/morezero/domain-controller/pkg/model"
)

const domainYAML = `server-group:
  main:
    profile: default
host:
  master:
    server-config:
      web-1:
        group: main
      web-2:
        group: main
`

// startIntegrationServer runs start() against DATABASE_URL and an embedded COMMS server.
func startIntegrationServer(t *testing.T) (*Server, *comms.Conn) {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("server:integration_test - DATABASE_URL not set, skipping")
	}
	ctx := context.Background()

	if _, err := db.EnsureDatabase(ctx, url); err != nil {
		t.Fatalf("server:integration_test - EnsureDatabase failed: %v", err)
	}
	pool, err := db.NewPool(ctx, url, db.PoolOptions{ApplicationName: "server-integration"})
	require.NoError(t, err)
	migrationSQL, err := db.LoadMigrationFiles(filepath.Join("..", "..", "migrations"))
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(ctx, pool, migrationSQL))
	require.NoError(t, db.ClearDomainData(ctx, pool))
	pool.Close()

	ns, err := commsserver.NewServer(&commsserver.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go ns.Start()
	require.True(t, ns.ReadyForConnections(10*time.Second))
	t.Cleanup(ns.Shutdown)

	modelFile := filepath.Join(t.TempDir(), "domain.yaml")
	require.NoError(t, os.WriteFile(modelFile, []byte(domainYAML), 0o644))

	cfg := testConfig()
	cfg.COMMSURL = ns.ClientURL()
	cfg.COMMSName = "integration"
	cfg.DatabaseURL = url
	cfg.RunMigrations = true
	cfg.MigrationPath = filepath.Join("..", "..", "migrations")
	cfg.DomainModelFile = modelFile
	cfg.DomainModelName = "integration"
	cfg.HTTPAddr = "127.0.0.1:0"

	s := &Server{cfg: cfg}
	runCtx, cancel := context.WithCancel(ctx)
	require.NoError(t, s.start(runCtx))
	t.Cleanup(func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		s.shutdown(shutdownCtx)
	})

	nc, err := commsutil.Connect(ns.ClientURL(), "integration-client")
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return s, nc
}

func TestIntegration_ExecuteIsAudited(t *testing.T) {
	s, nc := startIntegrationServer(t)

	req := &dispatcher.ControllerRequest{
		ID:     "integration-1",
		Method: dispatcher.MethodExecute,
		Operation: model.Node{
			"operation": "add",
			"address":   []interface{}{map[string]interface{}{"system-property": "tier"}},
			"value":     "gold",
		},
		Ctx: &dispatcher.InvocationContext{UserID: "admin"},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var resp dispatcher.ControllerResponse
	require.NoError(t, commsutil.Request(ctx, nc, commsutil.BuildHostSubject("master"), req, &resp))
	result := decodeExecute(t, &resp)
	require.Equal(t, "success", result.Outcome, result.FailureDescription)
	require.Len(t, result.Result.ServerOperations, 1)
	require.Len(t, result.Result.ServerOperations[0].Servers, 2)

	repo := db.NewRepository(s.pool)
	records, err := repo.ListResolutions(ctx, "master", 10)
	require.NoError(t, err)
	var found *db.ResolutionRecord
	for i := range records {
		if records[i].RequestID == "integration-1" {
			found = &records[i]
		}
	}
	require.NotNil(t, found, "resolution was not audited")
	require.Equal(t, "admin", found.UserID)
	require.Equal(t, "add", found.Operation)
	require.Equal(t, "success", found.Outcome)
}

func TestIntegration_HealthReportsDatabase(t *testing.T) {
	s, _ := startIntegrationServer(t)

	health := s.ctrl.Health(context.Background())
	require.Equal(t, "healthy", health.Status)
	require.True(t, health.Checks.Database)
	require.True(t, health.Checks.DomainModel)
}
