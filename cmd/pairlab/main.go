package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pairlab/internal/otel"
	"pairlab/internal/version"

	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCommand(commandDeps{
		Stdout: stdout,
		Stderr: stderr,
		Getenv: os.Getenv,
		Serve:  serve,
	})
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "pairlab:", err)
		return 1
	}
	return 0
}

type commandDeps struct {
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string
	Serve  func(ctx context.Context, cfg Config, output io.Writer) error
}

func newRootCommand(deps commandDeps) *cobra.Command {
	root := &cobra.Command{
		Use:           "pairlab",
		Short:         "Paired referential-communication experiment server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(deps.Stdout)
	root.SetErr(deps.Stderr)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the participant websocket and experimenter API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), deps.Getenv)
			if err != nil {
				return err
			}
			return deps.Serve(cmd.Context(), cfg, deps.Stdout)
		},
	}
	registerConfigFlags(serveCmd.Flags())

	validateCmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Load and check configuration and stimuli without serving",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), deps.Getenv)
			if err != nil {
				return err
			}
			return validateConfig(cfg, cmd.OutOrStdout())
		},
	}
	registerConfigFlags(validateCmd.Flags())

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.GetVersionInfo().String())
		},
	}

	root.AddCommand(serveCmd, validateCmd, versionCmd)
	return root
}

// serve runs until SIGINT or SIGTERM, or until ctx is done.
func serve(ctx context.Context, cfg Config, output io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	stop, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTracing, err := otel.SetupSDK(stop, otel.SDKOptions{
		Endpoint:           cfg.OTelEndpoint,
		ServiceVersion:     version.GetVersionInfo().Version,
		ResourceAttributes: otel.ParseResourceAttributes(cfg.OTelResources),
	})
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}

	app, err := newApplication(stop, cfg, output)
	if err != nil {
		_ = shutdownTracing(context.Background())
		return err
	}
	app.shutdown.Add("tracing", shutdownTracing)
	logger := app.logger.Category("server")
	for key, source := range cfg.Sources {
		if source != sourceDefault {
			logger.Debug("config override", map[string]string{
				"key":    key,
				"source": string(source),
			})
		}
	}

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	stopWatching := watchShutdownSignals(logger, cancel, signals)
	defer stopWatching()

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		_ = app.Close(context.Background())
		return fmt.Errorf("listen %s: %w", cfg.Addr(), err)
	}
	server := &http.Server{
		Handler:           app.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runner := &ServerRunner{Logger: logger}
	serveErr := runner.Run(stop, server, listener)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer closeCancel()
	if err := app.Close(closeCtx); err != nil && serveErr == nil {
		return err
	}
	logger.Info("pairlab stopped", nil)
	return serveErr
}
