package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/yozoyaa/roblox-proxy-vercel/internal/config"
	"github.com/yozoyaa/roblox-proxy-vercel/internal/server"
	"github.com/yozoyaa/roblox-proxy-vercel/pkg/aggregate"
	"github.com/yozoyaa/roblox-proxy-vercel/pkg/cache"
	"github.com/yozoyaa/roblox-proxy-vercel/pkg/logging"
	"github.com/yozoyaa/roblox-proxy-vercel/pkg/upstream"
)

func main() {
	cfg := config.MustLoad()

	logCfg := logging.DefaultConfig()
	if cfg.App.Debug {
		logCfg.Level = logging.LevelDebug
	}
	logger := logging.Setup(logCfg)

	logger.Info().
		Str("name", cfg.App.Name).
		Str("version", cfg.App.Version).
		Bool("gateway_mode", cfg.Upstream.UseGateway()).
		Msg("Starting aggregation service")

	// The CSRF token store is shared across instances when Redis is
	// configured; otherwise it is process-local.
	var tokenStore cache.TokenStore = cache.NewMemoryTokenStore()
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).
				Msg("Redis unavailable, falling back to in-memory token store")
		} else {
			tokenStore = cache.NewRedisTokenStore(redisClient)
			defer redisClient.Close()
			logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis token store enabled")
		}
	}

	getClient, postClient, err := buildClients(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create upstream clients")
	}

	negotiator := upstream.NewNegotiator(postClient, tokenStore)
	pipeline := aggregate.New(getClient, negotiator, aggregate.Endpoints{})

	defaults := aggregate.Options{
		Concurrency:       cfg.Pipeline.Concurrency,
		PageSize:          cfg.Pipeline.PageSize,
		IncludeGamepasses: true,
		IncludeClothing:   true,
		MaxPlaces:         cfg.Pipeline.MaxPlaces,
		MaxUniversePages:  cfg.Pipeline.MaxUniversePages,
		MaxInventoryPages: cfg.Pipeline.MaxInventoryPages,
	}

	handler := server.NewHandler(pipeline, defaults, logger, cfg.App.Version)
	router := server.NewRouter(handler, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Address()).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server stopped gracefully")
}

// buildClients creates the GET-side client (gateway or direct per config)
// and the POST-side client. Catalog-details POSTs always go direct: the
// forwarding gateway relays GETs only, and the CSRF token rides on headers
// its envelope does not carry.
func buildClients(cfg *config.Config) (*upstream.Client, *upstream.Client, error) {
	direct := upstream.NewDirectTransport(cfg.Upstream.APIKey, cfg.Upstream.NormalizedCookie())

	var getTransport upstream.Transport = direct
	if cfg.Upstream.UseGateway() {
		getTransport = upstream.NewGatewayTransport(cfg.Upstream.GatewayURL)
	}

	getClient, err := upstream.New(upstream.Config{Transport: getTransport})
	if err != nil {
		return nil, nil, err
	}
	postClient, err := upstream.New(upstream.Config{Transport: direct})
	if err != nil {
		return nil, nil, err
	}
	return getClient, postClient, nil
}
