package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	gateway "github.com/bambooai/panda-gateway"
	"github.com/bambooai/panda-gateway/common/logger"
	"github.com/bambooai/panda-gateway/config"
	"github.com/bambooai/panda-gateway/server"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("load config: %v", err)
		os.Exit(1)
	}
	logger.Init(cfg.Log.Level, cfg.Log.JSON)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw, err := gateway.New(ctx, cfg)
	if err != nil {
		logger.Errorf("build gateway: %v", err)
		os.Exit(1)
	}

	if err := server.New(gw).Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("server: %v", err)
		os.Exit(1)
	}
}
