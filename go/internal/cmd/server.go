package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcdev12/betsync/go/internal/config"
	"github.com/mcdev12/betsync/go/internal/media"
)

func setupMediaServer(cfg config.Config, services *Services) *media.Server {
	router := media.NewRouter(services.Library, services.Game, media.RouterConfig{
		PublicDir:      cfg.PublicDir,
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        promhttp.HandlerFor(services.Registry, promhttp.HandlerOpts{}),
	})
	return media.NewServer(fmt.Sprintf(":%d", cfg.HTTPPort), router)
}
