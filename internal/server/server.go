// Package server orchestrates all components: COMMS client, domain model store, registry,
// coordinator, dispatcher and the HTTP endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/domain-controller/internal/config"
	"github.com/morezero/domain-controller/internal/tracing"
	"github.com/morezero/domain-controller/pkg/bootstrap"
	"github.com/morezero/domain-controller/pkg/commsutil"
	"github.com/morezero/domain-controller/pkg/coordination"
	"github.com/morezero/domain-controller/pkg/db"
	"github.com/morezero/domain-controller/pkg/dispatcher"
	"github.com/morezero/domain-controller/pkg/events"
	"github.com/morezero/domain-controller/pkg/model"
	"github.com/morezero/domain-controller/pkg/registry"
)

const logPrefix = "server:server"

// controller is what the COMMS and HTTP handlers need from the dispatcher.
type controller interface {
	Dispatch(ctx context.Context, req *dispatcher.ControllerRequest) *dispatcher.ControllerResponse
	Describe(params dispatcher.DescribeParams) (*registry.DescribeOutput, error)
	Health(ctx context.Context) *dispatcher.HealthOutput
}

// Server is the domain controller orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	sub        *comms.Subscription
	httpServer *http.Server
	tracing    *tracing.Provider
	ctrl       controller
}

// SetupLogging installs the default text logger at the named level.
func SetupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// Run starts the controller, blocks until a shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg.LogLevel)
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting domain-controller for host %s", logPrefix, cfg.LocalHostName))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{cfg: cfg}
	if err := s.start(ctx); err != nil {
		s.shutdown(context.Background())
		return err
	}

	slog.Info(fmt.Sprintf("%s - Domain-controller is ready", logPrefix))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	s.shutdown(shutdownCtx)

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

func (s *Server) start(ctx context.Context) error {
	cfg := s.cfg

	// Step 1: Tracing
	provider, err := tracing.NewProvider(tracing.Config{
		Enabled:      cfg.TracingEnabled,
		Exporter:     cfg.TracingExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRate:   cfg.TracingSampleRate,
		ServiceName:  cfg.COMMSName,
	})
	if err != nil {
		return fmt.Errorf("%s - failed to start tracing: %w", logPrefix, err)
	}
	s.tracing = provider

	// Step 2: Registry from the resource layout
	layout, err := bootstrap.LoadBootstrapConfig(cfg.LayoutFile)
	if err != nil {
		return fmt.Errorf("%s - failed to load layout: %w", logPrefix, err)
	}
	root, err := bootstrap.NewRoot(layout)
	if err != nil {
		return fmt.Errorf("%s - failed to build registry: %w", logPrefix, err)
	}

	// Step 3: Connect to COMMS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}
	s.nc = nc
	slog.Info(fmt.Sprintf("%s - Connected to COMMS at %s", logPrefix, cfg.COMMSURL))

	// Step 4: Domain model store, audit log and remote hosts
	var (
		store    model.Store
		audit    dispatcher.AuditRecorder
		database dispatcher.Pinger
	)
	remoteSubjects := map[string]string{}
	for _, h := range cfg.RemoteHosts {
		remoteSubjects[h] = ""
	}

	if cfg.UseDatabase() {
		repo, err := s.openDatabase(ctx)
		if err != nil {
			return err
		}
		store = db.NewPgStore(repo, cfg.DomainModelName)
		audit = repo
		database = repo

		hosts, err := repo.ListRemoteHosts(ctx)
		if err != nil {
			return fmt.Errorf("%s - failed to list remote hosts: %w", logPrefix, err)
		}
		for _, h := range hosts {
			subject := ""
			if h.Subject != nil {
				subject = *h.Subject
			}
			remoteSubjects[h.Name] = subject
		}
	} else {
		store, err = s.openModelFile(ctx)
		if err != nil {
			return err
		}
	}

	// Step 5: Proxies for hosts owned by other controllers
	proxyPool := dispatcher.NewProxyPool(nc, cfg.LocalHostName, cfg.RequestTimeout, provider.Tracer())
	proxies := make(map[string]registry.OperationHandler, len(remoteSubjects))
	for host, subject := range remoteSubjects {
		if host == cfg.LocalHostName {
			continue
		}
		proxies[host] = proxyPool.Proxy(host, subject)
	}
	if err := bootstrap.RegisterRemoteHosts(root, proxies); err != nil {
		return fmt.Errorf("%s - failed to register remote hosts: %w", logPrefix, err)
	}

	// Step 6: Coordinator and dispatcher
	coordinator := coordination.NewCoordinator(coordination.NewCoordinatorParams{
		Root:          root,
		Store:         store,
		LocalHostName: cfg.LocalHostName,
	})
	disp := dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
		Coordinator:       coordinator,
		Publisher:         events.NewCommsPublisher(nc, &events.CommsPublisherOpts{GlobalSubject: cfg.PlanEventSubject}),
		Audit:             audit,
		Database:          database,
		CommsConnected:    nc.IsConnected,
		Tracer:            provider.Tracer(),
		ManagementVersion: cfg.ManagementVersion,
		HealthTimeout:     cfg.HealthCheckTimeout,
	})
	s.ctrl = disp

	// Step 7: Subscribe to the controller subject
	subject := cfg.ControllerSubject
	if subject == "" {
		subject = commsutil.BuildHostSubject(cfg.LocalHostName)
	}
	sub, err := nc.Subscribe(subject, s.handleMessage(ctx))
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, subject, err)
	}
	s.sub = sub
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, subject))

	// Step 8: HTTP endpoints
	httpAddr := cfg.HTTPAddr
	if httpAddr == "" {
		httpAddr = fmt.Sprintf(":%d", cfg.HTTPPort)
	}
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()
	return nil
}

func (s *Server) openDatabase(ctx context.Context) (*db.Repository, error) {
	cfg := s.cfg
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.PoolOptions())
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	s.pool = pool
	repo := db.NewRepository(pool)

	if !cfg.RunMigrations {
		return repo, nil
	}
	migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
	}
	if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
		return nil, fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
	}

	existing, err := repo.GetDomainModel(ctx, cfg.DomainModelName)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read domain model: %w", logPrefix, err)
	}
	if existing == nil && cfg.DomainModelFile != "" {
		if err := db.SeedDomainModel(ctx, repo, cfg.DomainModelName, cfg.DomainModelFile, cfg.LocalHostName); err != nil {
			return nil, fmt.Errorf("%s - failed to seed domain model: %w", logPrefix, err)
		}
	}
	return repo, nil
}

// openModelFile loads the domain model file into memory. With watching enabled, later
// edits replace the in-memory model; an unreadable edit keeps the previous one.
func (s *Server) openModelFile(ctx context.Context) (model.Store, error) {
	fileStore := model.NewFileStore(s.cfg.DomainModelFile)
	initial, err := fileStore.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to load domain model: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Loaded domain model from %s", logPrefix, fileStore.Path()))

	store := model.NewMemoryStore(initial)
	if s.cfg.WatchDomainModel {
		go func() {
			err := fileStore.Watch(ctx, func(root model.Node) {
				if err := store.Save(ctx, root); err != nil {
					slog.Warn(fmt.Sprintf("%s - failed to apply domain model change: %v", logPrefix, err))
				}
			})
			if err != nil {
				slog.Warn(fmt.Sprintf("%s - domain model watch stopped: %v", logPrefix, err))
			}
		}()
	}
	return store, nil
}

// handleMessage answers controller requests received over COMMS.
func (s *Server) handleMessage(ctx context.Context) comms.MsgHandler {
	requestTimeout := s.cfg.RequestTimeout
	return func(msg *comms.Msg) {
		var req dispatcher.ControllerRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to decode request: %v", logPrefix, err))
			resp := &dispatcher.ControllerResponse{
				Ok: false,
				Error: &dispatcher.ErrorDetail{
					Code:    "INVALID_REQUEST",
					Message: "Failed to decode request",
				},
			}
			data, _ := json.Marshal(resp)
			_ = msg.Respond(data)
			return
		}

		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()

		resp := s.ctrl.Dispatch(reqCtx, &req)

		data, err := json.Marshal(resp)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - failed to encode response: %v", logPrefix, err))
			return
		}
		if err := msg.Respond(data); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to respond to %s: %v", logPrefix, req.ID, err))
		}
	}
}

func (s *Server) shutdown(ctx context.Context) {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.httpServer != nil {
		_ = s.httpServer.Shutdown(ctx)
	}
	if s.nc != nil {
		_ = s.nc.Drain()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.tracing != nil {
		if err := s.tracing.Shutdown(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - tracing shutdown: %v", logPrefix, err))
		}
	}
}
