package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"haruup-service/internal/factory"
	"haruup-service/internal/handler"
	"haruup-service/internal/util"
)

func main() {
	// Initialize factory (which loads config and initializes all clients)
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	cfg := f.Config()
	router := setupRouter(f)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if !f.IsHealthy(ctx) {
		util.Warn("Starting with unhealthy backends; see /health for details")
	}

	if cfg.Ranking.ScheduleEnabled {
		f.ServiceFactory().RankingScheduler().Start(ctx)
	}

	var serverAddr string
	if cfg.Server.EnableTLS {
		serverAddr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.TLSPort)
	} else {
		serverAddr = cfg.GetServerAddress()
	}

	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var challengeServer *http.Server
	if cfg.Server.EnableTLS {
		tlsManager := f.TLSManager()
		server.TLSConfig = tlsManager.GetTLSConfig()

		// ACME http-01 challenges and the HTTP->HTTPS redirect
		if acm := tlsManager.GetAutocertManager(); acm != nil {
			challengeServer = &http.Server{
				Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
				Handler:           acm.HTTPHandler(nil),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go serve(challengeServer, false)
		}

		util.Info("Starting HTTPS server",
			util.String("environment", cfg.Environment),
			util.Int("port", cfg.Server.TLSPort),
			util.Bool("auto_cert", cfg.Server.AutoCert),
		)
	} else {
		util.Warn("Starting HTTP server - TLS is disabled",
			util.String("environment", cfg.Environment),
			util.Int("port", cfg.Server.Port),
		)
	}

	go serve(server, cfg.Server.EnableTLS)

	<-ctx.Done()
	util.Info("Received shutdown signal")
	shutdown(f, server, challengeServer)
}

func setupRouter(f *factory.Factory) http.Handler {
	services := f.ServiceFactory()
	return handler.NewRouter(f.Config(), handler.RouterDeps{
		Characters: services.CharacterService(),
		Rankings:   services.RankingService(),
		Limiter:    services.RateLimiter(),
		Health:     f.HealthCheck,
	}, util.Get())
}

// serve blocks until the server stops. Certificates come from TLSConfig.GetCertificate.
func serve(server *http.Server, useTLS bool) {
	var err error
	if useTLS {
		err = server.ListenAndServeTLS("", "")
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		util.Fatal("Server failed", util.String("address", server.Addr), util.ErrorField(err))
	}
}

func shutdown(f *factory.Factory, servers ...*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, srv := range servers {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			util.Error("Failed to shutdown server gracefully", util.ErrorField(err))
		} else {
			util.Info("Server shutdown completed", util.String("address", srv.Addr))
		}
	}
	f.Close()
}
