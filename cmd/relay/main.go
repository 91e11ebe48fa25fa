package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/fathima-sithara/chatsync/internal/config"
	"github.com/fathima-sithara/chatsync/internal/logger"
	"github.com/fathima-sithara/chatsync/internal/server"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			panic(err)
		}
	} else {
		cfg = config.Default()
	}

	log, err := logger.New(logger.Config{Development: cfg.Development})
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := os.MkdirAll(cfg.Server.UploadDir, 0o755); err != nil {
		log.Fatalw("create upload dir", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, log)
	addr := ":" + cfg.Server.Port
	log.Infow("relay listening", "addr", addr)
	if err := srv.Run(ctx, addr); err != nil {
		log.Fatalw("relay stopped", "err", err)
	}
	log.Info("relay shut down")
}
