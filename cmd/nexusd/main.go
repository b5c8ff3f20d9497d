// Command nexusd runs the Nexus server: the Control Plane API plus every
// Nexus it manages, backed by the configured Registry, Topology Store, and
// Label Cache.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/nexus/internal/api"
	apiauth "github.com/marmos91/nexus/internal/api/auth"
	"github.com/marmos91/nexus/internal/config"
	"github.com/marmos91/nexus/internal/labelcache"
	"github.com/marmos91/nexus/internal/logger"
	"github.com/marmos91/nexus/internal/metrics"
	"github.com/marmos91/nexus/internal/nexusmanager"
	"github.com/marmos91/nexus/internal/store"
	"github.com/marmos91/nexus/internal/telemetry"
	"github.com/marmos91/nexus/pkg/registry"
	"github.com/marmos91/nexus/pkg/registry/aio"
	"github.com/marmos91/nexus/pkg/registry/nvmf"
	"github.com/marmos91/nexus/pkg/registry/s3"
)

var version = "dev"

func main() {
	configFile := flag.String("config", "", "Path to config file (YAML)")
	writeConfig := flag.Bool("init", false, "Write a sample config file to --config and exit")
	force := flag.Bool("force", false, "Overwrite an existing config file with --init")
	flag.Parse()

	if *writeConfig {
		path := *configFile
		if path == "" {
			path = "nexusd.yaml"
		}
		if err := config.WriteSample(path, *force); err != nil {
			log.Fatalf("failed to write sample config: %v", err)
		}
		fmt.Printf("sample configuration written to %s\n", path)
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "nexusd",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    cfg.Telemetry.Profiling.ApplicationName,
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Profiling.ServerAddress,
		ProfileTypes:   []string{"cpu", "alloc_objects", "inuse_objects"},
	})
	if err != nil {
		log.Fatalf("failed to initialize profiling: %v", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	topologyStore, err := store.Open(cfg.Database)
	if err != nil {
		log.Fatalf("failed to open topology store: %v", err)
	}
	defer func() {
		if err := topologyStore.Close(); err != nil {
			logger.Error("topology store close error", "error", err)
		}
	}()

	labelCache, err := labelcache.Open(cfg.LabelCache.Dir, cfg.LabelCache.TTL)
	if err != nil {
		log.Fatalf("failed to open label cache: %v", err)
	}
	defer func() {
		if err := labelCache.Close(); err != nil {
			logger.Error("label cache close error", "error", err)
		}
	}()

	reg, err := buildRegistry(ctx, cfg.Registry)
	if err != nil {
		log.Fatalf("failed to initialize registry backend %q: %v", cfg.Registry.DefaultBackend, err)
	}

	mgr := nexusmanager.New(reg, topologyStore, labelCache)

	jwtSvc, err := apiauth.NewService(apiauth.Config{Secret: cfg.API.JWTSecret})
	if err != nil {
		log.Fatalf("failed to initialize JWT service: %v", err)
	}

	router := api.NewRouter(mgr, jwtSvc, api.Config{RequestTimeout: cfg.API.RequestTimeout})
	httpServer := &http.Server{Addr: cfg.API.Addr, Handler: router}

	serverDone := make(chan error, 1)
	go func() {
		logger.Info("Control Plane API listening", "addr", cfg.API.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
			return
		}
		serverDone <- nil
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, draining Control Plane API")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Control Plane API shutdown error", "error", err)
		}
		cancel()
	case err := <-serverDone:
		if err != nil {
			logger.Error("Control Plane API error", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("nexusd stopped")
}

// buildRegistry constructs the Backing Device Registry backend selected by
// cfg.DefaultBackend. Each backend is real, never a stub: nvmf is an
// in-process simulated fabric, aio is local flat files, s3 is a genuine
// aws-sdk-go-v2 client.
func buildRegistry(ctx context.Context, cfg config.RegistryConfig) (registry.Registry, error) {
	switch cfg.DefaultBackend {
	case "", "nvmf":
		return nvmf.NewRegistry(
			uint32(cfg.NvmfDefaultBlockLen),
			cfg.NvmfDefaultNumBlocks,
			uint32(cfg.NvmfDefaultAlignment),
		), nil
	case "aio":
		return aio.NewRegistry(), nil
	case "s3":
		return s3.NewRegistry(ctx, s3.Config{
			Region:           cfg.S3Region,
			Endpoint:         cfg.S3Endpoint,
			ForcePathStyle:   cfg.S3ForcePathStyle,
			ChunkSize:        uint32(cfg.S3ChunkSize),
			DefaultNumBlocks: cfg.NvmfDefaultNumBlocks,
		})
	default:
		return nil, fmt.Errorf("unknown registry backend %q", cfg.DefaultBackend)
	}
}
