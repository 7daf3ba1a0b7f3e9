package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/airea/airea/internal/ratelimit"
	"github.com/airea/airea/internal/server"
)

const banner = `
    _    ___ ____  _____    _
   / \  |_ _|  _ \| ____|  / \
  / _ \  | || |_) |  _|   / _ \
 / ___ \ | ||  _ <| |___ / ___ \
/_/   \_\___|_| \_\_____/_/   \_\
`

func newServeCmd() *cobra.Command {
	var dev bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the device gateway",
		Long:  "Start the HTTP server that authenticates devices and ingests cough events.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dev)
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging, fallback signing key)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(dev bool) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	logger, err := newLogger(os.Stderr, settings.Log, dev)
	if err != nil {
		return err
	}

	if settings.Auth.SigningKey == "" {
		if !dev {
			return errNoSigningKey
		}
		logger.Warn("auth.signing_key not set, using the development key; tokens are not secure")
	}

	store, err := openStore(settings)
	if err != nil {
		return fmt.Errorf("init device store: %w", err)
	}
	defer store.Close()
	build := currentBuild()
	logger.Info("airea starting", "version", build.Version, "commit", build.Commit, "platform", build.Platform)
	logger.Info("device store initialized", "driver", store.Dialect())

	authSvc, err := buildAuth(settings, store, dev)
	if err != nil {
		return fmt.Errorf("init auth service: %w", err)
	}

	limiter := ratelimit.NewMemoryLimiter(settings.RateLimit.Capacity, settings.RateLimit.Interval)

	srvCfg := server.Config{
		Host:               settings.Server.Host,
		Port:               settings.Server.Port,
		ShutdownTimeout:    settings.Server.ShutdownTimeout,
		CORSOrigins:        settings.Server.CORSOrigins,
		PublicRoutes:       settings.Auth.PublicRoutes,
		DeviceIDPattern:    settings.Auth.DeviceIDPattern,
		KeyIssuancePerHour: settings.RateLimit.KeyIssuancePerHour,
		BucketIdleTTL:      settings.RateLimit.IdleTTL,
		Version:            build.Version,
	}

	srv, err := server.New(srvCfg, store, authSvc, limiter, logger)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	host, port := settings.Server.Host, settings.Server.Port
	fmt.Print(banner)
	fmt.Println()
	fmt.Printf("→ airea %s\n", build.Version)
	fmt.Printf("→ Listening on http://%s:%d\n", host, port)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", host, port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", host, port)
	fmt.Printf("→ Rate limit: %d requests per %s per client\n", limiter.Capacity(), limiter.Interval())
	fmt.Println()

	return srv.ListenAndServe()
}
