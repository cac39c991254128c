package config

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger installs the global zerolog logger.
func InitLogger(cfg LogConfig, out io.Writer) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if cfg.Format == "json" {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		tty := out == os.Stderr || out == os.Stdout
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, NoColor: !tty})
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
