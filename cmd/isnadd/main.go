// isnadd is the trust substrate service: it owns the in-memory trust
// chain, registries, policy engine, and audit trail, exposes the REST
// projection, and (when a database is configured) checkpoints state
// across restarts.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/audit"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/config"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/database"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/delegation"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/identity"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/metrics"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/policy"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/revocation"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/server"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/trustchain"
)

const checkpointInterval = 30 * time.Second

func main() {
	logger := log.New(os.Stdout, "[isnadd] ", log.LstdFlags)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("configuration invalid: %v", err)
	}

	revs := revocation.New()
	rots := identity.NewRotationRegistry()
	chain := trustchain.New(revs)
	chain.SetRotationRegistry(rots)
	dels := delegation.New(revs)
	trail := audit.New()
	engine := policy.NewEngine(policy.Moderate())

	reg := metrics.NewRegistry()

	var checkpointer *database.Checkpointer
	var dbClient *database.Client
	if cfg.DatabaseURL != "" {
		client, err := database.NewClient(cfg)
		if err != nil {
			if cfg.DatabaseRequired {
				logger.Fatalf("database required but unavailable: %v", err)
			}
			logger.Printf("database unavailable, running without checkpoints: %v", err)
		} else {
			dbClient = client
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := client.MigrateUp(ctx); err != nil {
				cancel()
				logger.Fatalf("migrations failed: %v", err)
			}
			cancel()

			checkpointer = database.NewCheckpointer(client, nil)
			ctx, cancel = context.WithTimeout(context.Background(), 60*time.Second)
			restored, err := checkpointer.Restore(ctx, chain, revs, dels)
			cancel()
			if err != nil {
				logger.Fatalf("checkpoint restore failed: %v", err)
			}
			trail = restored
		}
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithMetrics(reg),
	}
	if dbClient != nil && cfg.APIKeyHashSalt != "" {
		keys := database.NewAPIKeyRepository(dbClient, cfg.APIKeyHashSalt)
		opts = append(opts, server.WithAuthenticator(server.AuthenticatorFunc(
			func(ctx context.Context, key string) error {
				_, err := keys.Authenticate(ctx, key)
				return err
			})))
	}
	srv := server.New(cfg, chain, revs, dels, rots, trail, engine, opts...)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	if checkpointer != nil {
		go func() {
			ticker := time.NewTicker(checkpointInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
					if err := checkpointer.Sync(ctx, chain, trail); err != nil {
						logger.Printf("checkpoint sync failed: %v", err)
					}
					cancel()
				case <-done:
					return
				}
			}
		}()
	}

	go func() {
		logger.Printf("listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	<-stop
	logger.Println("shutting down...")
	close(done)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
	if checkpointer != nil {
		syncCtx, syncCancel := context.WithTimeout(context.Background(), 20*time.Second)
		if err := checkpointer.Sync(syncCtx, chain, trail); err != nil {
			logger.Printf("final checkpoint sync failed: %v", err)
		}
		syncCancel()
	}
	if dbClient != nil {
		dbClient.Close()
	}
	logger.Println("stopped")
}
