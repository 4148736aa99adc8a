package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"tacboard/internal/app"
	"tacboard/internal/config"
)

type serveOptions struct {
	configPath string
	host       string
	port       int
	password   string
	httpAddr   string
	httpPort   int
	dbPath     string
}

func newServeCmd(logLevel *string) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the board server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, *logLevel)
		},
	}

	opts.addFlags(cmd.Flags())
	return cmd
}

func (o *serveOptions) addFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.configPath, "config", "", "JSON configuration file")
	flags.StringVar(&o.host, "host", "", "Listen host")
	flags.IntVar(&o.port, "port", 0, "Listen port")
	flags.StringVar(&o.password, "password", "", "Shared board password")
	flags.StringVar(&o.httpAddr, "http", "", "Enable the admin API on this host")
	flags.IntVar(&o.httpPort, "http-port", 0, "Admin API port")
	flags.StringVar(&o.dbPath, "db", "", "Enable the SQLite journal at this path")
}

// load applies defaults, .env, TACBOARD_* variables, the config file and
// finally any flags set on the command line.
func (o *serveOptions) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfigWithPrecedence(o.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = o.host
	}
	if flags.Changed("port") {
		cfg.Server.Port = o.port
	}
	if flags.Changed("password") {
		cfg.Server.Password = o.password
	}
	if flags.Changed("http") {
		cfg.HTTP.Enabled = true
		cfg.HTTP.Host = o.httpAddr
	}
	if flags.Changed("http-port") {
		cfg.HTTP.Enabled = true
		cfg.HTTP.Port = o.httpPort
	}
	if flags.Changed("db") {
		cfg.Database.Enabled = true
		cfg.Database.Path = o.dbPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServer(parent context.Context, cfg *config.Config, logLevel string) error {
	if parent == nil {
		parent = context.Background()
	}

	log, err := cliLogger(logLevel, cfg.Log.Level, cfg.Log.Path, "tacboard")
	if err != nil {
		return err
	}
	defer log.Close()

	application, err := app.NewApplication(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Interrupt received, shutting down")
	case runErr = <-application.Errors():
		log.Error("Fatal server error: %v", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return runErr
}
