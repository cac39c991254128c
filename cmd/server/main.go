package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dkeye/voicerelay/internal/adapters/feed"
	router "github.com/dkeye/voicerelay/internal/adapters/http"
	"github.com/dkeye/voicerelay/internal/adapters/udp"
	"github.com/dkeye/voicerelay/internal/app"
	"github.com/dkeye/voicerelay/internal/app/relay"
	"github.com/dkeye/voicerelay/internal/config"
	"github.com/dkeye/voicerelay/internal/metrics"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:          "voice-server",
		Short:        "UDP voice chat relay",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			cfg, err := config.Load(cfgFile, map[string]*pflag.Flag{
				"server.host":            f.Lookup("host"),
				"server.port":            f.Lookup("port"),
				"server.session_timeout": f.Lookup("session-timeout"),
				"http.enabled":           f.Lookup("http"),
				"http.addr":              f.Lookup("http-addr"),
				"log.level":              f.Lookup("log-level"),
				"log.format":             f.Lookup("log-format"),
			})
			if err != nil {
				return err
			}
			config.InitLogger(cfg.Log, os.Stderr)
			if err := cfg.ValidateServer(); err != nil {
				log.Error().Err(err).Msg("invalid config")
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	cmd.Flags().String("host", "", "UDP bind address")
	cmd.Flags().IntP("port", "p", 0, "UDP port")
	cmd.Flags().Duration("session-timeout", 0, "evict sessions silent for this long (0 disables)")
	cmd.Flags().Bool("http", true, "serve the admin API")
	cmd.Flags().String("http-addr", "", "admin API listen address")
	cmd.Flags().String("log-level", "", "debug, info, warn or error")
	cmd.Flags().String("log-format", "", "console or json")
	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn, err := udp.Listen(cfg.Server.Host, cfg.Server.Port)
	if err != nil {
		log.Error().Err(err).Msg("failed to bind")
		return err
	}
	defer conn.Close()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(promReg)
	hub := feed.NewHub(32)
	defer hub.Close()

	reg := app.NewRegistry()
	engine := relay.NewEngine(conn, reg, relay.Config{
		ReadTimeout:     cfg.Server.ReadTimeout,
		ErrorBackoff:    cfg.Server.ErrorBackoff,
		SessionTimeout:  cfg.Server.SessionTimeout,
		SweepInterval:   cfg.Server.SweepInterval,
		MaxDatagram:     cfg.Server.MaxDatagram,
		ErrorReplyLimit: cfg.Server.ErrorReplies,
	},
		relay.WithPolicy(app.SimplePolicy{}),
		relay.WithMetrics(m),
		relay.WithEvents(hub),
	)

	var srv *http.Server
	if cfg.HTTP.Enabled {
		r := router.SetupRouter(cfg.HTTP.Mode, router.Deps{
			Registry: reg,
			Gatherer: promReg,
			Events:   hub,
			Started:  time.Now(),
		})
		srv = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.HTTP.Addr).Msg("admin API started")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("admin server error")
			}
		}()
	}

	log.Info().Str("addr", conn.LocalAddr().String()).Msg("Voice chat server started")
	runErr := engine.Run(ctx)

	log.Info().Msg("Shutting down")
	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
	}
	log.Info().Int("sessions", reg.Count()).Msg("Server exited gracefully")
	return runErr
}
