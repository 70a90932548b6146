package main

import (
	"context"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/med-chat/backend/internal/app"
	"github.com/zhouzirui/med-chat/backend/internal/config"
	"github.com/zhouzirui/med-chat/backend/internal/ui"
)

type options struct {
	profile  string
	logLevel string
	logFile  string
}

func main() {
	opts := &options{}

	root := &cobra.Command{
		Use:           "chatcli",
		Short:         "Terminal medical chat widget",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			closeLog, err := initLogger(opts.logLevel, opts.logFile)
			if err != nil {
				return err
			}
			defer closeLog()
			return run(cmd.Context(), opts)
		},
	}
	root.Flags().StringVar(&opts.profile, "profile", "medical", "profile to chat with (medical, medical-test, or one from PROFILES_FILE)")
	root.Flags().StringVar(&opts.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	root.Flags().StringVar(&opts.logFile, "log-file", "", "write logs to this file; logs are discarded when empty")

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Stderr.WriteString("chatcli: " + err.Error() + "\n")
		os.Exit(1)
	}
}

// initLogger keeps logs off the terminal the widget draws on.
func initLogger(level, path string) (func(), error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(lvl)

	if path == "" {
		log.Logger = zerolog.New(io.Discard)
		return func() {}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open log file %s", path)
	}
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	zerolog.TimeFieldFormat = time.RFC3339
	return func() { _ = f.Close() }, nil
}

func run(ctx context.Context, opts *options) error {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// the terminal widget resumes its conversation across runs unless told otherwise
	if _, set := os.LookupEnv("STORE_DRIVER"); !set {
		cfg.Store.Driver = config.StoreSQLite
	}

	chatSvc, closeStore, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sess, err := chatSvc.OpenLocal(ctx, opts.profile)
	if err != nil {
		return errors.Wrapf(err, "open profile %q", opts.profile)
	}

	m := ui.New(sess)
	defer m.Close()

	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
