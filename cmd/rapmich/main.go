// Package main provides the RapMich server entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/DerGorn/RapMich/internal/core"
	"github.com/DerGorn/RapMich/internal/genres"
	httpserver "github.com/DerGorn/RapMich/internal/http"
	"github.com/DerGorn/RapMich/internal/spotify"
	"github.com/DerGorn/RapMich/internal/store"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "rapmich",
	Short: "RapMich - pseudo-random song server",
	Long: `RapMich serves pseudo-random songs from the Spotify catalog, either scoped
to curated genres or drawn from a per-session shuffled playlist rotation, and
controls playback on the user's active device.`,
	RunE: runServer,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("server-host", "0.0.0.0", "HTTP server host")
	rootCmd.PersistentFlags().Int("server-port", 8080, "HTTP server port")
	rootCmd.PersistentFlags().String("static-dir", "", "client files served under /public (optional)")
	rootCmd.PersistentFlags().String("spotify-client-id", "", "Spotify client ID")
	rootCmd.PersistentFlags().String("spotify-client-secret", "", "Spotify client secret")
	rootCmd.PersistentFlags().String("callback-scheme", "http", "scheme of the OAuth2 callback URL (http or https)")
	rootCmd.PersistentFlags().Int("search-retry-limit", 50, "retries for empty random-search pages")
	rootCmd.PersistentFlags().Int("session-ttl-mins", 60, "session idle expiry in minutes")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix("RAPMICH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(config.Log.Level)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	cfg.Server.Host = viper.GetString("server-host")
	cfg.Server.Port = viper.GetInt("server-port")
	cfg.Server.StaticDir = viper.GetString("static-dir")

	cfg.Spotify.ClientID = viper.GetString("spotify-client-id")
	cfg.Spotify.ClientSecret = viper.GetString("spotify-client-secret")
	if scheme := viper.GetString("callback-scheme"); scheme != "" {
		cfg.Spotify.CallbackScheme = scheme
	}
	if limit := viper.GetInt("search-retry-limit"); limit > 0 {
		cfg.Spotify.SearchRetryLimit = limit
	}

	if mins := viper.GetInt("session-ttl-mins"); mins > 0 {
		cfg.Session.TTL = time.Duration(mins) * time.Minute
	}

	cfg.Log.Level = viper.GetString("log-level")

	return cfg
}

func buildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}
	return builtLogger
}

func runServer(_ *cobra.Command, _ []string) error {
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := config.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	genreList, err := genres.Load()
	if err != nil {
		return fmt.Errorf("failed to load genre list: %w", err)
	}

	logger.Info("Starting RapMich",
		zap.String("addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)),
		zap.Int("genres", len(genreList.Names())),
		zap.String("callback_scheme", config.Spotify.CallbackScheme))

	tokens := spotify.NewTokenManager(&config.Spotify, logger.Named("token"))
	client := spotify.NewClient(&config.Spotify, logger.Named("spotify"))
	picker := spotify.NewPicker(client, &config.Spotify, logger.Named("picker"))
	sessions := store.NewSessionStore(&config.Session, logger.Named("sessions"))

	server := httpserver.NewServer(config, logger.Named("http"), tokens, client, picker, genreList, sessions)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(ctx)
	})

	return g.Wait()
}
