package server

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	appconfig "github.com/mohammad-safakhou/ava/config"
	agentcore "github.com/mohammad-safakhou/ava/internal/agent/core"
	agenttele "github.com/mohammad-safakhou/ava/internal/agent/telemetry"
	"github.com/mohammad-safakhou/ava/internal/session/inmemory"
	"github.com/mohammad-safakhou/ava/internal/tools"
	"github.com/mohammad-safakhou/ava/internal/tools/tripdb"
	"github.com/mohammad-safakhou/ava/internal/tools/weather"
	"github.com/mohammad-safakhou/ava/internal/tools/weather/geocache"
)

// Run wires the service (top-level DI) and serves HTTP until shutdown.
func Run(cfg *appconfig.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	corsOrigins := cfg.Server.CORSOrigins
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: corsOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))
	e.Use(requestLogger(baseLogger))

	tele := agenttele.New(cfg.Telemetry)

	// Geocode cache backend: Redis when configured, process memory otherwise.
	var cache geocache.Cache = geocache.NewMemoryCache()
	if cfg.Storage.Redis.Addr != "" {
		cache = geocache.NewRedisCache(cfg.Storage.Redis.Addr, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB)
		baseLogger.Printf("geocode cache backed by redis at %s", cfg.Storage.Redis.Addr)
	}

	weatherLogger := log.New(log.Writer(), "[WEATHER] ", log.LstdFlags)
	registry := tools.NewRegistry()
	if err := registry.Register(weather.New(cfg.Tools.Weather, cache, weatherLogger).Tool()); err != nil {
		return err
	}
	if err := registry.Register(tripdb.Tool()); err != nil {
		return err
	}

	provider, err := agentcore.NewLLMProvider(cfg.LLM)
	if err != nil {
		return err
	}

	store := inmemory.NewThreadStore()
	orchLogger := log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	orch, err := agentcore.NewOrchestrator(cfg, orchLogger, provider, registry, store, tele)
	if err != nil {
		return err
	}

	ch := &CompletionsHandler{
		Runner: orch,
		Model:  cfg.LLM.Routing.Agent,
		Logger: log.New(log.Writer(), "[CHAT] ", log.LstdFlags),
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(tele.Handler()))
	e.GET("/", func(c echo.Context) error {
		return c.HTML(http.StatusOK, chatPage)
	})
	e.POST("/completions", ch.Create)

	addr := cfg.Server.Listen
	if addr == "" {
		addr = ":8000"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// requestLogger logs method, path, status and duration for every request.
func requestLogger(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			logger.Printf("%s %s completed %d in %.2fms",
				c.Request().Method, c.Request().URL.Path, status,
				float64(time.Since(start).Microseconds())/1000)
			return err
		}
	}
}
