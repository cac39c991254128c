package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dkeye/voicerelay/internal/adapters/udp"
	"github.com/dkeye/voicerelay/internal/audio"
	"github.com/dkeye/voicerelay/internal/client"
	"github.com/dkeye/voicerelay/internal/client/tui"
	"github.com/dkeye/voicerelay/internal/config"
	"github.com/dkeye/voicerelay/internal/domain"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "voice-client [server-host]",
		Short: "Voice chat client",
		Long: `Connect to a voice relay, stream captured audio and play what
the other participants send.

Key bindings:
  r           Mute / unmute
  q / Ctrl+C  Quit`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			cfg, err := config.Load(cfgFile, map[string]*pflag.Flag{
				"client.server_port": f.Lookup("port"),
				"client.local_port":  f.Lookup("client-port"),
				"client.name":        f.Lookup("name"),
				"client.source":      f.Lookup("source"),
				"client.sink":        f.Lookup("sink"),
				"log.level":          f.Lookup("log-level"),
				"log.file":           f.Lookup("log-file"),
			})
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Client.ServerHost = args[0]
			}
			if err := cfg.ValidateClient(); err != nil {
				return err
			}

			logOut, err := openLog(cfg.Log.File)
			if err != nil {
				return err
			}
			defer logOut.Close()
			config.InitLogger(cfg.Log, logOut)

			return run(cfg)
		},
	}

	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	cmd.Flags().IntP("port", "p", 0, "server UDP port")
	cmd.Flags().Int("client-port", 0, "local UDP port (0 picks one)")
	cmd.Flags().StringP("name", "n", "", "display name")
	cmd.Flags().String("source", "", "capture source: tone or silence")
	cmd.Flags().String("sink", "", "write received PCM to this file")
	cmd.Flags().String("log-level", "", "debug, info, warn or error")
	cmd.Flags().String("log-file", "", "log file (default voice-client.log)")
	return cmd
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func openLog(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{io.Discard}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()

	cc := cfg.Client
	name, err := domain.NormalizeUsername(cc.Name)
	if err != nil {
		return err
	}
	server, err := udp.Resolve(cc.ServerHost, cc.ServerPort)
	if err != nil {
		return err
	}
	conn, err := udp.Listen("0.0.0.0", cc.LocalPort)
	if err != nil {
		return err
	}

	var source audio.Source = audio.NewToneSource(440)
	if cc.Source == "silence" {
		source = audio.SilenceSource{}
	}
	var sink audio.Sink = audio.DiscardSink{}
	if cc.Sink != "" {
		f, err := os.Create(cc.Sink)
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("open sink: %w", err)
		}
		sink = audio.NewWriterSink(f)
	}

	c := client.New(conn, client.Config{
		Server:            server,
		Name:              name,
		HeartbeatInterval: cc.HeartbeatInterval,
		HandshakeTimeout:  cc.HandshakeTimeout,
		ErrorBackoff:      time.Second,
		PlaybackQueue:     cc.PlaybackQueue,
		SendQueue:         cc.SendQueue,
	}, source, sink)
	defer c.Close()

	if err := c.Connect(ctx); err != nil {
		log.Error().Err(err).Msg("connection error")
		return err
	}
	if err := c.Start(); err != nil {
		return err
	}

	p := tea.NewProgram(tui.New(c), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
