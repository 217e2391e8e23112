package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-po-approvals/internal/client"
	"github.com/pesio-ai/be-po-approvals/internal/common/auth"
	"github.com/pesio-ai/be-po-approvals/internal/common/config"
	"github.com/pesio-ai/be-po-approvals/internal/common/database"
	"github.com/pesio-ai/be-po-approvals/internal/common/logger"
	"github.com/pesio-ai/be-po-approvals/internal/common/middleware"
	"github.com/pesio-ai/be-po-approvals/internal/common/natsclient"
	"github.com/pesio-ai/be-po-approvals/internal/common/tracing"
	"github.com/pesio-ai/be-po-approvals/internal/handler"
	"github.com/pesio-ai/be-po-approvals/internal/repository"
	"github.com/pesio-ai/be-po-approvals/internal/repository/memory"
	"github.com/pesio-ai/be-po-approvals/internal/service"
)

// stores groups the repositories behind the service interfaces.
type stores struct {
	configs service.ConfigStore
	orders  service.OrderStore
	groups  service.GroupDirectory
	audit   service.AuditLog
	close   func()
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Str("store", cfg.Store.Driver).
		Msg("Starting Purchase Approvals Service")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize tracing
	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.Init(cfg.Service.Name, cfg.Service.Version, cfg.Tracing.Output)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracing")
		}
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				log.Warn().Err(err).Msg("Tracing shutdown failed")
			}
		}()
		log.Info().Msg("Tracing enabled")
	}

	// Initialize repositories
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer st.close()

	// Initialize notification publisher
	var events client.EventPublisher
	if cfg.NATS.URL != "" {
		nc, err := natsclient.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream, []string{client.SubjectPrefix + ">"})
		if err != nil {
			log.Error().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to connect to NATS; approval notifications disabled")
		} else {
			defer nc.Close()
			events = nc
			log.Info().Str("url", cfg.NATS.URL).Str("stream", cfg.NATS.Stream).Msg("NATS connection established")
		}
	} else {
		log.Warn().Msg("NATS_URL not set; approval notifications disabled")
	}
	notifier := client.NewNotificationPublisher(events, log.Component("notifications").Logger,
		client.WithPublishTimeout(cfg.NATS.PublishTimeout),
		client.WithQueueSize(cfg.NATS.QueueSize),
	)

	// Initialize services
	resolver := service.NewThresholdResolver(st.configs)
	confirmer := service.NewHostConfirmer(st.orders, log.Component("host_confirm"))
	approvalService := service.NewApprovalService(
		st.configs, st.orders, st.groups, st.audit, notifier, confirmer,
		service.ApprovalOptions{RejectRequiresApprover: cfg.Approval.RejectRequiresApprover},
		log.Component("approval"),
	)
	orderService := service.NewPurchaseOrderService(st.orders, st.audit, resolver, log.Component("orders"))
	configService := service.NewApprovalConfigService(st.configs, st.groups, log.Component("configs"))

	// Seed configs and approver groups
	if cfg.Approval.SeedFile != "" {
		seed, err := repository.LoadSeedFile(cfg.Approval.SeedFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load seed file")
		}
		if err := configService.ApplySeed(ctx, seed); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply seed data")
		}
		log.Info().
			Str("file", cfg.Approval.SeedFile).
			Int("configs", len(seed.Configs)).
			Int("groups", len(seed.Groups)).
			Msg("Seed data applied")
	}

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(approvalService, orderService, configService, log)
	mux := http.NewServeMux()
	httpHandler.Register(mux)

	// Apply middleware
	var h http.Handler = mux
	h = auth.Middleware(cfg.Auth.JWTSecret)(h)
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.Timeout(30 * time.Second)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server
	grpcHandler := handler.NewGRPCHandler(approvalService, orderService, log.Logger)

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(auth.UnaryServerInterceptor(cfg.Auth.JWTSecret)))
	handler.RegisterPurchaseApprovalServer(grpcServer, grpcHandler)
	reflection.Register(grpcServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Stop gRPC server gracefully
	grpcServer.GracefulStop()

	// Flush queued notifications before the NATS connection drains
	if err := notifier.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Notification queue not fully flushed")
	}

	log.Info().Msg("Server stopped")
}

// openStores builds the repositories for the configured driver.
func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*stores, error) {
	if cfg.Store.Driver == "memory" {
		audit := memory.NewAuditRepository()
		log.Warn().Msg("Using in-memory store; data is lost on restart")
		return &stores{
			configs: memory.NewConfigRepository(),
			orders:  memory.NewOrderRepository(audit),
			groups:  memory.NewGroupRepository(),
			audit:   audit,
			close:   func() {},
		}, nil
	}

	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Msg("Database connection established")

	return &stores{
		configs: repository.NewApprovalConfigRepository(db),
		orders:  repository.NewPurchaseOrderRepository(db),
		groups:  repository.NewGroupMembershipRepository(db),
		audit:   repository.NewApprovalAuditRepository(db),
		close:   db.Close,
	}, nil
}
