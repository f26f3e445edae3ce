package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kyxap1/geolocator/internal/certs"
	"github.com/kyxap1/geolocator/internal/config"
	"github.com/kyxap1/geolocator/internal/handlers"
	"github.com/kyxap1/geolocator/internal/locator"
	"github.com/kyxap1/geolocator/internal/metrics"
	"github.com/kyxap1/geolocator/internal/types"
	"github.com/kyxap1/geolocator/internal/watch"
)

const version = "1.0.0"

var (
	cfg    *config.Config
	logger *logrus.Logger
)

func init() {
	// Logs go to stderr so stdout only carries results
	logger = logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	cfg = config.LoadConfig()
	setLogLevel(cfg.LogLevel)
}

func setLogLevel(name string) {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		logger.Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "geolocator [ip-or-host]",
		Short: "Look up IP geolocation using ip-api.com",
		Long: `Resolve geolocation information for an IP address or host name using the
ip-api.com service. Without an argument the public address of this machine is resolved.`,
		Args:              cobra.MaximumNArgs(1),
		PersistentPreRunE: prepare,
		RunE:              runResolve,
		SilenceUsage:      true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.ServiceURL, "service-url", cfg.ServiceURL, "Geolocation service base URL")
	flags.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "Timeout for establishing the connection")
	flags.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "Timeout for waiting on the response")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flags.StringVarP(&cfg.OutputFormat, "output", "o", cfg.OutputFormat, "Output format (text, json)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newCertCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// prepare applies flag overrides that need more than a field assignment
func prepare(cmd *cobra.Command, args []string) error {
	setLogLevel(cfg.LogLevel)
	return cfg.Validate()
}

func newLocator(m *metrics.Metrics) *locator.Client {
	return locator.NewClient(locator.Options{
		BaseURL:        cfg.ServiceURL,
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		Metrics:        m,
	}, logger)
}

// runResolve prints the record for the optional target. Lookup failures are
// reported on stderr without failing the command.
func runResolve(cmd *cobra.Command, args []string) error {
	var target string
	if len(args) > 0 {
		target = args[0]
		if strings.TrimSpace(target) == "" {
			return fmt.Errorf("target must not be blank")
		}
	}

	logger.WithField("args", args).Trace("Command line arguments")

	loc, err := newLocator(nil).Resolve(cmd.Context(), target)
	if err != nil {
		logger.WithError(err).Debug("Geolocation lookup failed")
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		return nil
	}

	return printLocation(cmd.OutOrStdout(), loc, cfg.OutputFormat)
}

func printLocation(w io.Writer, loc *types.GeoLocation, format string) error {
	if format == "json" {
		data, err := json.MarshalIndent(loc, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	_, err := fmt.Fprintln(w, loc.String())
	return err
}

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve geolocation lookups over HTTP",
		Long:  `Expose the geolocation lookup as a JSON/XML/CSV HTTP API with health and metrics endpoints.`,
		Args:  cobra.NoArgs,
		RunE:  runServer,
	}

	flags := serveCmd.Flags()
	flags.IntVarP(&cfg.Port, "port", "p", cfg.Port, "HTTP port to listen on")
	flags.IntVar(&cfg.HTTPSPort, "https-port", cfg.HTTPSPort, "HTTPS port to listen on")
	flags.BoolVar(&cfg.EnableTLS, "enable-tls", cfg.EnableTLS, "Enable TLS/HTTPS")
	addCertFlags(serveCmd)
	flags.BoolVar(&cfg.GenerateCerts, "generate-certs", cfg.GenerateCerts, "Regenerate the self-signed certificate on start")

	return serveCmd
}

func runServer(cmd *cobra.Command, args []string) error {
	logger.Info("Starting geolocator server...")

	m := newServerMetrics()
	apiHandler := handlers.NewAPIHandler(newLocator(m), logger, m)
	router := apiHandler.SetupRoutes()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var httpsServer *http.Server
	if cfg.EnableTLS {
		tlsConfig, err := loadTLSConfig()
		if err != nil {
			return err
		}
		httpsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.HTTPSPort),
			Handler:      router,
			TLSConfig:    tlsConfig,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
	}

	var wg sync.WaitGroup
	serverErrChan := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Infof("Starting HTTP server on port %d", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if httpsServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Infof("Starting HTTPS server on port %d", cfg.HTTPSPort)
			if err := httpsServer.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrChan <- fmt.Errorf("HTTPS server error: %w", err)
			}
		}()
	}

	select {
	case <-cmd.Context().Done():
		logger.Info("Received shutdown signal, shutting down gracefully...")
	case err := <-serverErrChan:
		logger.Errorf("Server error: %v", err)
		_ = gracefulShutdown(server, httpsServer, &wg)
		return err
	}

	return gracefulShutdown(server, httpsServer, &wg)
}

// newServerMetrics exposes Go runtime and process collectors next to the lookup metrics
func newServerMetrics() *metrics.Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.NewWithRegistry(reg, reg)
}

// gracefulShutdown stops both listeners and waits for their goroutines
func gracefulShutdown(server, httpsServer *http.Server, wg *sync.WaitGroup) error {
	logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("HTTP server shutdown error: %v", err)
		_ = server.Close()
	} else {
		logger.Info("HTTP server shut down gracefully")
	}

	if httpsServer != nil {
		if err := httpsServer.Shutdown(ctx); err != nil {
			logger.Errorf("HTTPS server shutdown error: %v", err)
			_ = httpsServer.Close()
		} else {
			logger.Info("HTTPS server shut down gracefully")
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("All server goroutines finished")
	case <-ctx.Done():
		logger.Warn("Timeout waiting for server goroutines to finish")
	}

	logger.Info("Graceful shutdown completed")
	return nil
}

func newWatchCmd() *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Report changes of this machine's public address",
		Long: `Resolve this machine's public address on a schedule and print the geolocation
record every time the address changes.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}

	watchCmd.Flags().StringVar(&cfg.WatchSchedule, "schedule", cfg.WatchSchedule, "Probe schedule (cron expression or @every duration)")
	return watchCmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	w, err := watch.New(newLocator(nil), cfg.WatchSchedule, cfg.ConnectTimeout+cfg.ReadTimeout, logger,
		func(prev, cur *types.GeoLocation) {
			if err := printLocation(out, cur, cfg.OutputFormat); err != nil {
				logger.WithError(err).Error("Failed to print geolocation")
			}
		})
	if err != nil {
		return err
	}

	if err := w.Start(cmd.Context()); err != nil {
		return err
	}
	<-cmd.Context().Done()

	logger.Info("Stopping watcher...")
	w.Stop()

	if last := w.Last(); last != nil {
		logger.WithFields(logrus.Fields{
			"ip":      last.Query,
			"country": last.Country,
			"city":    last.City,
		}).Info("Watcher stopped")
	} else {
		logger.Info("Watcher stopped without a successful observation")
	}
	return nil
}

func newCertCmd() *cobra.Command {
	certCmd := &cobra.Command{
		Use:   "cert",
		Short: "Certificate management",
		Long:  `Generate and inspect the self-signed certificate used by "serve --enable-tls".`,
	}

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate self-signed certificate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			certPath, keyPath := certPaths()
			if err := certs.NewManager(certPath, keyPath, logger).Generate(cfg.CertHosts, cfg.CertValidDays); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Certificate written to %s\nPrivate key written to %s\n", certPath, keyPath)
			return nil
		},
	}
	addCertFlags(generateCmd)

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show certificate information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			certPath, keyPath := certPaths()
			info, err := certs.NewManager(certPath, keyPath, logger).Info()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Certificate Information:\n")
			fmt.Fprintf(out, "  Certificate Path: %s\n", info.CertPath)
			fmt.Fprintf(out, "  Private Key Path: %s\n", info.KeyPath)
			fmt.Fprintf(out, "  Subject: %s\n", info.Subject)
			fmt.Fprintf(out, "  Issuer: %s\n", info.Issuer)
			fmt.Fprintf(out, "  Valid From: %s\n", info.NotBefore.Format(time.RFC3339))
			fmt.Fprintf(out, "  Valid Until: %s\n", info.NotAfter.Format(time.RFC3339))
			fmt.Fprintf(out, "  DNS Names: %v\n", info.DNSNames)
			fmt.Fprintf(out, "  IP Addresses: %v\n", info.IPAddresses)
			return nil
		},
	}
	addCertFlags(infoCmd)

	certCmd.AddCommand(generateCmd, infoCmd)
	return certCmd
}

// addCertFlags registers the certificate location flags shared by serve and cert
func addCertFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&cfg.CertPath, "cert-path", cfg.CertPath, "Directory holding server.crt and server.key")
	flags.StringVar(&cfg.CertFile, "cert-file", cfg.CertFile, "Path to TLS certificate file (overrides --cert-path)")
	flags.StringVar(&cfg.KeyFile, "key-file", cfg.KeyFile, "Path to TLS private key file (overrides --cert-path)")
	flags.StringVar(&cfg.CertHosts, "cert-hosts", cfg.CertHosts, "Certificate hosts (comma-separated)")
	flags.IntVar(&cfg.CertValidDays, "cert-valid-days", cfg.CertValidDays, "Certificate validity period in days")
}

func certPaths() (string, string) {
	certPath := cfg.CertFile
	keyPath := cfg.KeyFile
	if certPath == "" {
		certPath = filepath.Join(cfg.CertPath, "server.crt")
	}
	if keyPath == "" {
		keyPath = filepath.Join(cfg.CertPath, "server.key")
	}
	return certPath, keyPath
}

// loadTLSConfig generates a certificate when asked to, or when none is usable
func loadTLSConfig() (*tls.Config, error) {
	certPath, keyPath := certPaths()
	manager := certs.NewManager(certPath, keyPath, logger)

	if cfg.GenerateCerts || manager.Validate() != nil {
		if err := manager.Generate(cfg.CertHosts, cfg.CertValidDays); err != nil {
			return nil, fmt.Errorf("failed to generate certificates: %w", err)
		}
	}

	tlsConfig, err := manager.TLSConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS config: %w", err)
	}
	return tlsConfig, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "geolocator v%s\n", version)
			fmt.Fprintf(out, "Service URL: %s\n", cfg.ServiceURL)
			fmt.Fprintf(out, "Timeouts: connect %v, read %v\n", cfg.ConnectTimeout, cfg.ReadTimeout)
		},
	}
}
