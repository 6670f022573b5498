// Command server starts the ClipTide account API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"cliptide/internal/api"
	"cliptide/internal/auth"
	"cliptide/internal/media"
	"cliptide/internal/observability/logging"
	"cliptide/internal/server"
	"cliptide/internal/serverutil"
	"cliptide/internal/storage"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to JSON datastore")
	accessSecret := flag.String("access-secret", "", "HMAC secret for access tokens")
	refreshSecret := flag.String("refresh-secret", "", "HMAC secret for refresh tokens")
	accessTTL := flag.Duration("access-ttl", 0, "access token lifetime")
	refreshTTL := flag.Duration("refresh-ttl", 0, "refresh token lifetime")
	sessionStoreDriver := flag.String("session-store", "", "session store driver (memory, postgres, or redis)")
	sessionPostgresDSN := flag.String("session-postgres-dsn", "", "Postgres DSN for the session store")
	sessionRedisAddr := flag.String("session-redis-addr", "", "Redis address for the session store")
	sessionRedisPassword := flag.String("session-redis-password", "", "Redis password for the session store")
	sessionRedisDB := flag.Int("session-redis-db", 0, "Redis database index for the session store")
	sessionPurgeInterval := flag.Duration("session-purge-interval", 0, "interval between expired-session sweeps")
	mediaDriver := flag.String("media-driver", "", "media store driver (file or s3)")
	mediaDir := flag.String("media-dir", "", "directory for file-backed media uploads")
	mediaBaseURL := flag.String("media-base-url", "", "public URL prefix for file-backed media")
	s3Endpoint := flag.String("media-s3-endpoint", "", "S3 endpoint for media uploads")
	s3AccessKey := flag.String("media-s3-access-key", "", "S3 access key")
	s3SecretKey := flag.String("media-s3-secret-key", "", "S3 secret key")
	s3Bucket := flag.String("media-s3-bucket", "", "S3 bucket for media uploads")
	s3UseSSL := flag.Bool("media-s3-use-ssl", false, "enable TLS for S3 requests")
	s3PublicURL := flag.String("media-s3-public-url", "", "public URL prefix for S3-backed media")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (text or json)")
	corsOrigins := flag.String("cors-origins", "", "comma separated origins allowed to call the API")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	loginLimit := flag.Int("rate-login-limit", 0, "maximum login attempts per window for a single IP")
	loginWindow := flag.Duration("rate-login-window", 0, "window for counting login attempts")
	rateRedisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed login throttling")
	rateRedisPassword := flag.String("rate-redis-password", "", "Redis password for distributed login throttling")
	flag.Parse()

	logger, err := logging.New(logging.Options{
		Level:  firstNonEmpty(*logLevel, os.Getenv("CLIPTIDE_LOG_LEVEL"), "info"),
		Format: firstNonEmpty(*logFormat, os.Getenv("CLIPTIDE_LOG_FORMAT"), "text"),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "configure logging:", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStorage(firstNonEmpty(*dataPath, os.Getenv("CLIPTIDE_DATA"), "data/cliptide.json"))
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	tokens, err := auth.NewTokenService(
		[]byte(firstNonEmpty(*accessSecret, os.Getenv("CLIPTIDE_ACCESS_SECRET"))),
		[]byte(firstNonEmpty(*refreshSecret, os.Getenv("CLIPTIDE_REFRESH_SECRET"))),
		durationValue(*accessTTL, os.Getenv("CLIPTIDE_ACCESS_TTL"), 15*time.Minute, logger, "CLIPTIDE_ACCESS_TTL"),
		durationValue(*refreshTTL, os.Getenv("CLIPTIDE_REFRESH_TTL"), 7*24*time.Hour, logger, "CLIPTIDE_REFRESH_TTL"),
	)
	if err != nil {
		logger.Error("failed to configure token service", "error", err)
		os.Exit(1)
	}

	sessionStore, closeSessions, err := buildSessionStore(ctx, logger, sessionStoreConfig{
		Driver:        firstNonEmpty(*sessionStoreDriver, os.Getenv("CLIPTIDE_SESSION_STORE"), "memory"),
		PostgresDSN:   firstNonEmpty(*sessionPostgresDSN, os.Getenv("CLIPTIDE_SESSION_POSTGRES_DSN")),
		RedisAddr:     firstNonEmpty(*sessionRedisAddr, os.Getenv("CLIPTIDE_SESSION_REDIS_ADDR")),
		RedisPassword: firstNonEmpty(*sessionRedisPassword, os.Getenv("CLIPTIDE_SESSION_REDIS_PASSWORD")),
		RedisDB:       intValue(*sessionRedisDB, os.Getenv("CLIPTIDE_SESSION_REDIS_DB"), 0, logger, "CLIPTIDE_SESSION_REDIS_DB"),
	})
	if err != nil {
		logger.Error("failed to configure session store", "error", err)
		os.Exit(1)
	}
	defer closeSessions()

	sessions := auth.NewSessionManager(tokens, sessionStore)

	mediaStore, localMediaDir, err := buildMediaStore(ctx, mediaStoreConfig{
		Driver:      firstNonEmpty(*mediaDriver, os.Getenv("CLIPTIDE_MEDIA_DRIVER"), "file"),
		Dir:         firstNonEmpty(*mediaDir, os.Getenv("CLIPTIDE_MEDIA_DIR"), "data/media"),
		BaseURL:     firstNonEmpty(*mediaBaseURL, os.Getenv("CLIPTIDE_MEDIA_BASE_URL"), "/media"),
		S3Endpoint:  firstNonEmpty(*s3Endpoint, os.Getenv("CLIPTIDE_MEDIA_S3_ENDPOINT")),
		S3AccessKey: firstNonEmpty(*s3AccessKey, os.Getenv("CLIPTIDE_MEDIA_S3_ACCESS_KEY")),
		S3SecretKey: firstNonEmpty(*s3SecretKey, os.Getenv("CLIPTIDE_MEDIA_S3_SECRET_KEY")),
		S3Bucket:    firstNonEmpty(*s3Bucket, os.Getenv("CLIPTIDE_MEDIA_S3_BUCKET")),
		S3UseSSL:    boolValue(*s3UseSSL, os.Getenv("CLIPTIDE_MEDIA_S3_USE_SSL"), logger, "CLIPTIDE_MEDIA_S3_USE_SSL"),
		S3PublicURL: firstNonEmpty(*s3PublicURL, os.Getenv("CLIPTIDE_MEDIA_S3_PUBLIC_URL")),
	})
	if err != nil {
		logger.Error("failed to configure media store", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(store, sessions, mediaStore, logger)

	srv, err := server.New(handler, server.Config{
		Addr: firstNonEmpty(*addr, os.Getenv("CLIPTIDE_ADDR"), ":8080"),
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("CLIPTIDE_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("CLIPTIDE_TLS_KEY")),
		},
		RateLimit: server.RateLimitConfig{
			GlobalRPS:     floatValue(*globalRPS, os.Getenv("CLIPTIDE_RATE_GLOBAL_RPS"), logger, "CLIPTIDE_RATE_GLOBAL_RPS"),
			GlobalBurst:   intValue(*globalBurst, os.Getenv("CLIPTIDE_RATE_GLOBAL_BURST"), 0, logger, "CLIPTIDE_RATE_GLOBAL_BURST"),
			LoginLimit:    intValue(*loginLimit, os.Getenv("CLIPTIDE_RATE_LOGIN_LIMIT"), 0, logger, "CLIPTIDE_RATE_LOGIN_LIMIT"),
			LoginWindow:   durationValue(*loginWindow, os.Getenv("CLIPTIDE_RATE_LOGIN_WINDOW"), time.Minute, logger, "CLIPTIDE_RATE_LOGIN_WINDOW"),
			RedisAddr:     firstNonEmpty(*rateRedisAddr, os.Getenv("CLIPTIDE_RATE_REDIS_ADDR")),
			RedisPassword: firstNonEmpty(*rateRedisPassword, os.Getenv("CLIPTIDE_RATE_REDIS_PASSWORD")),
		},
		CORS: server.CORSConfig{
			AllowedOrigins: splitList(firstNonEmpty(*corsOrigins, os.Getenv("CLIPTIDE_CORS_ORIGINS"))),
		},
		Logger:   logger,
		MediaDir: localMediaDir,
	})
	if err != nil {
		logger.Error("failed to configure server", "error", err)
		os.Exit(1)
	}

	purgeInterval := durationValue(*sessionPurgeInterval, os.Getenv("CLIPTIDE_SESSION_PURGE_INTERVAL"), time.Hour, logger, "CLIPTIDE_SESSION_PURGE_INTERVAL")
	stopPurger := startSessionPurgeWorker(ctx, logger, sessions, purgeInterval)
	defer stopPurger()

	logger.Info("server starting", "addr", firstNonEmpty(*addr, os.Getenv("CLIPTIDE_ADDR"), ":8080"))
	if err := serverutil.Run(ctx, srv, serverutil.DefaultShutdownTimeout); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

type sessionStoreConfig struct {
	Driver        string
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func buildSessionStore(ctx context.Context, logger *slog.Logger, cfg sessionStoreConfig) (auth.SessionStore, func(), error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return auth.NewMemoryStore(), func() {}, nil
	case "postgres":
		store, err := auth.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Close(closeCtx); err != nil {
				logger.Warn("close postgres session store", "error", err)
			}
		}, nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, nil, fmt.Errorf("redis session store requires an address")
		}
		store := auth.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn("close redis session store", "error", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown session store driver %q", cfg.Driver)
	}
}

type mediaStoreConfig struct {
	Driver      string
	Dir         string
	BaseURL     string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool
	S3PublicURL string
}

// buildMediaStore returns the store plus the local directory to serve under
// /media, empty when uploads live in object storage.
func buildMediaStore(ctx context.Context, cfg mediaStoreConfig) (media.Store, string, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		store, err := media.NewFileStore(cfg.Dir, cfg.BaseURL)
		if err != nil {
			return nil, "", err
		}
		return store, cfg.Dir, nil
	case "s3":
		store, err := media.NewS3Store(ctx, media.S3Config{
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			UseSSL:        cfg.S3UseSSL,
			PublicBaseURL: cfg.S3PublicURL,
		})
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	default:
		return nil, "", fmt.Errorf("unknown media driver %q", cfg.Driver)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func durationValue(flagValue time.Duration, env string, fallback time.Duration, logger *slog.Logger, name string) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env = strings.TrimSpace(env); env != "" {
		parsed, err := time.ParseDuration(env)
		if err == nil && parsed > 0 {
			return parsed
		}
		logger.Warn("invalid duration setting", "name", name, "value", env, "error", err)
	}
	return fallback
}

func intValue(flagValue int, env string, fallback int, logger *slog.Logger, name string) int {
	if flagValue != 0 {
		return flagValue
	}
	if env = strings.TrimSpace(env); env != "" {
		parsed, err := strconv.Atoi(env)
		if err == nil {
			return parsed
		}
		logger.Warn("invalid integer setting", "name", name, "value", env, "error", err)
	}
	return fallback
}

func floatValue(flagValue float64, env string, logger *slog.Logger, name string) float64 {
	if flagValue != 0 {
		return flagValue
	}
	if env = strings.TrimSpace(env); env != "" {
		parsed, err := strconv.ParseFloat(env, 64)
		if err == nil {
			return parsed
		}
		logger.Warn("invalid float setting", "name", name, "value", env, "error", err)
	}
	return 0
}

func boolValue(flagValue bool, env string, logger *slog.Logger, name string) bool {
	if flagValue {
		return true
	}
	if env = strings.TrimSpace(env); env != "" {
		parsed, err := strconv.ParseBool(env)
		if err == nil {
			return parsed
		}
		logger.Warn("invalid boolean setting", "name", name, "value", env, "error", err)
	}
	return false
}
