package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/pollchat/internal/auth"
	"github.com/Tyrowin/pollchat/internal/broker"
	"github.com/Tyrowin/pollchat/internal/config"
	"github.com/Tyrowin/pollchat/internal/failover"
	"github.com/Tyrowin/pollchat/internal/gateway"
	"github.com/Tyrowin/pollchat/internal/server"
	"github.com/Tyrowin/pollchat/internal/state"
	"github.com/Tyrowin/pollchat/internal/store"
)

const shutdownTimeout = 5 * time.Second

func main() {
	fmt.Println("Starting pollchat server...")

	cfg := config.NewConfigFromEnv()

	b := broker.New()
	st := state.New(state.Options{
		Active:    cfg.IsActive,
		PeerURL:   cfg.PeerURL,
		IsPrimary: cfg.IsPrimary,
	}, b)

	repo := store.NewMemoryStore()
	if cfg.SnapshotPath != "" {
		if err := repo.LoadFile(cfg.SnapshotPath); err != nil {
			log.Fatalf("Failed to load snapshot %s: %v", cfg.SnapshotPath, err)
		}
	}

	srv := server.New(*cfg, server.Deps{
		State:  st,
		Broker: b,
		Store:  repo,
		Hasher: auth.NewBcryptHasher(bcrypt.DefaultCost),
	})
	if err := srv.Listen(); err != nil {
		log.Fatalf("Failed to listen on %s: %v", cfg.Port, err)
	}
	go func() {
		if err := srv.Serve(); err != nil {
			log.Fatalf("Chat endpoint failed: %v", err)
		}
	}()

	coordinator := failover.NewCoordinator(st, cfg.PeerURL, cfg.FailoverInterval, cfg.PeerTimeout)
	coordinator.Start(context.Background())

	var (
		hub    *gateway.Hub
		wsHTTP *http.Server
	)
	if cfg.WSPort != "" {
		hub = gateway.NewHub(b, st, gateway.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			MaxMessageSize: cfg.MaxMessageSize,
			RateLimit: gateway.RateLimitConfig{
				Burst:          cfg.RateLimit.Burst,
				RefillInterval: cfg.RateLimit.RefillInterval,
			},
			PollTimeout: cfg.PollTimeout,
		})
		gateway.StartHub(hub)
		wsHTTP = gateway.CreateServer(cfg.WSPort, gateway.SetupRoutes(hub))
		go func() {
			if err := gateway.StartServer(wsHTTP); err != nil {
				log.Fatalf("WebSocket gateway failed: %v", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	sig := <-stop
	log.Printf("Received %v, shutting down", sig)

	coordinator.Stop()
	if wsHTTP != nil {
		if err := gateway.ShutdownServer(wsHTTP, hub, shutdownTimeout); err != nil {
			log.Printf("WebSocket gateway shutdown: %v", err)
		}
	}
	if err := srv.Shutdown(shutdownTimeout); err != nil {
		log.Printf("Chat endpoint shutdown: %v", err)
	}

	if cfg.SnapshotPath != "" {
		if err := repo.SaveFile(cfg.SnapshotPath); err != nil {
			log.Printf("Failed to save snapshot %s: %v", cfg.SnapshotPath, err)
		}
	}
	log.Println("pollchat stopped")
}
