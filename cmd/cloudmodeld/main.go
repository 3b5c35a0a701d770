// cloudmodeld is the reference CloudModel server — a single-writer event
// serializer reachable over WebSocket, per spec.md §4.1 and §6.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudmodel/relay/pkg/api"
	"github.com/cloudmodel/relay/pkg/config"
	"github.com/cloudmodel/relay/pkg/server"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	port := flag.Int("port", config.DefaultPort, "HTTP/WebSocket listen port")
	staticDir := flag.String("static_dir", "", "optional path to a bundled frontend to serve as static assets")
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "path to configuration directory (.env)")
	flag.Parse()

	log.Printf("Starting cloudmodeld")
	log.Printf("Config Directory: %s", *configDir)

	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Explicit flags win over .env/environment defaults.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "static_dir":
			cfg.StaticDir = *staticDir
		}
	})

	if err := cfg.ValidateStaticDir(); err != nil {
		log.Fatalf("Invalid --static_dir: %v", err)
	}

	log.Printf("Port: %d", cfg.Port)
	if cfg.StaticDir != "" {
		log.Printf("Static Directory: %s", cfg.StaticDir)
	}

	serializer := server.New()
	httpServer := api.NewServer(cfg, serializer)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s", cfg.Addr())
		errCh <- httpServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-sigCh:
		log.Printf("Received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), cfg.WriteTimeout)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}
}
