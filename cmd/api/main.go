package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"labtrack/internal/attendance"
	"labtrack/internal/config"
	"labtrack/internal/handler"
	"labtrack/internal/pending"
	"labtrack/internal/queue"
	"labtrack/internal/roster"
	"labtrack/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	loc, err := cfg.Timezone()
	if err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var db *store.DB
	var records store.RecordStore
	switch cfg.StoreBackend {
	case "memory":
		records = store.NewMemory()
	case "postgres":
		db, err = store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		records, err = store.NewPostgresRecords(db.Client)
		if err != nil {
			return err
		}
	default:
		records = store.NewRedisRecords(redisClient.Client, "labtrack")
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "labtrack:events")
	}

	pend := pending.NewService(records, loc)
	att := attendance.NewService(records, pend, cfg.PendingWindow)
	ros := roster.NewService(records)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		var storeHealthy bool
		switch cfg.StoreBackend {
		case "memory":
			storeHealthy = true
		case "postgres":
			storeHealthy = db.Healthy(c.Request.Context())
		default:
			storeHealthy = redisHealthy
		}
		status := http.StatusOK
		if !storeHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "store": cfg.StoreBackend})
	})

	handler.New(cfg, pend, att, ros, q).Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s (store=%s, tz=%s)", cfg.HTTPPort, cfg.StoreBackend, cfg.ReferenceTZ)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}
	log.Println("server exited")
	return nil
}

// Security headers middleware.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
