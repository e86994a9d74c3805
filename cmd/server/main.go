// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/opentrusty/civicguard/internal/audit"
	"github.com/opentrusty/civicguard/internal/authz"
	"github.com/opentrusty/civicguard/internal/cache"
	"github.com/opentrusty/civicguard/internal/config"
	"github.com/opentrusty/civicguard/internal/entity"
	"github.com/opentrusty/civicguard/internal/fieldsec"
	"github.com/opentrusty/civicguard/internal/notify"
	"github.com/opentrusty/civicguard/internal/observability/logger"
	"github.com/opentrusty/civicguard/internal/observability/metrics"
	"github.com/opentrusty/civicguard/internal/observability/tracing"
	"github.com/opentrusty/civicguard/internal/rls"
	"github.com/opentrusty/civicguard/internal/rolerequest"
	"github.com/opentrusty/civicguard/internal/session"
	"github.com/opentrusty/civicguard/internal/store/memory"
	"github.com/opentrusty/civicguard/internal/store/postgres"
	transportHTTP "github.com/opentrusty/civicguard/internal/transport/http"
)

// backends are the persistence ports selected by STORE_BACKEND.
type backends struct {
	store     entity.Store
	requests  rolerequest.Repository
	profiles  authz.ProfileRepository
	roles     authz.RoleRepository
	functions authz.PermissionFunctions
	granter   rolerequest.RoleGranter
	close     func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: cfg.OTEL.ServiceName,
	})
	slog.Info("starting civicguard", logger.String("store", cfg.Store.Backend), logger.String("notify", cfg.Notify.Backend))

	ctx := context.Background()

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.OTEL.Enabled,
		ServiceName:    cfg.OTEL.ServiceName,
		ServiceVersion: cfg.OTEL.ServiceVersion,
		Endpoint:       cfg.OTEL.Endpoint,
		Insecure:       cfg.OTEL.Insecure,
		SamplingRate:   cfg.OTEL.SamplingRate,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
		tracer = &tracing.Tracer{}
	}
	defer tracer.Shutdown(ctx)

	meter, err := metrics.New(ctx, metrics.Config{Enabled: cfg.OTEL.Enabled}, cfg.OTEL.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
		os.Exit(1)
	}
	defer meter.Shutdown(ctx)
	recorder, err := metrics.NewRecorder(meter)
	if err != nil {
		slog.Error("failed to create instruments", logger.Error(err))
		os.Exit(1)
	}

	b, err := openBackends(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", logger.Error(err))
		os.Exit(1)
	}
	defer b.close()

	var rdb *redis.Client
	if cfg.NeedsRedis() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("failed to connect to redis", logger.Error(err))
			os.Exit(1)
		}
		defer rdb.Close()
	}

	var principalCache authz.Cache
	switch cfg.Cache.Backend {
	case config.BackendRedis:
		principalCache = cache.NewRedisCache(rdb, cfg.Cache.PrincipalTTL)
	case config.BackendNone:
		principalCache = cache.Noop{}
	default:
		principalCache = cache.NewMemoryCache(cfg.Cache.Size, cfg.Cache.PrincipalTTL)
	}

	sink, closeSink := openSink(cfg, b.store)
	defer closeSink()

	auditLogger := audit.NewSlogLogger()
	principals := authz.NewService(b.profiles, b.roles, b.functions, principalCache, recorder)
	engine := rls.New(rls.DefaultTable())
	fields := fieldsec.New(fieldsec.DefaultRules())
	reader := rls.NewReader(b.store, engine, fields, recorder)
	requests := rolerequest.NewService(b.requests, b.granter, principals, sink, auditLogger, recorder, rolerequest.Config{
		MaxPerWindow: cfg.RoleRequest.MaxPerWindow,
		Window:       cfg.RoleRequest.Window,
	})

	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	defer rateLimiter.Stop()

	handler := transportHTTP.NewHandler(
		session.NewJWTVerifier(cfg.Session.JWTSecret, cfg.Session.JWTIssuer),
		principals,
		engine,
		reader,
		fields,
		requests,
		auditLogger,
		transportHTTP.RouterConfig{
			RequestTimeout: cfg.Server.RequestTimeout,
			SubmitPerUser:  cfg.RateLimit.SubmitPerUser,
			SubmitWindow:   cfg.RateLimit.SubmitWindow,
			MetricsHandler: meter.Handler(),
		},
	)
	router := transportHTTP.NewRouter(handler, rateLimiter)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"), logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}

func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	if cfg.Store.Backend == config.BackendMemory {
		dir := memory.NewDirectory(memory.DefaultRolePermissions())
		slog.Warn("using in-memory store; data is lost on restart")
		return &backends{
			store:     entity.NewMemoryStore(),
			requests:  rolerequest.NewMemoryRepository(),
			profiles:  dir,
			roles:     dir,
			functions: dir,
			granter:   dir,
			close:     func() {},
		}, nil
	}

	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("connected to database")

	userRoles := postgres.NewUserRoleRepository(db)
	return &backends{
		store:     postgres.NewEntityRepository(db),
		requests:  postgres.NewRoleRequestRepository(db),
		profiles:  postgres.NewProfileRepository(db),
		roles:     userRoles,
		functions: postgres.NewPermissionFunctions(db),
		granter:   userRoles,
		close:     db.Close,
	}, nil
}

func openSink(cfg *config.Config, store entity.Store) (notify.Sink, func()) {
	switch cfg.Notify.Backend {
	case config.BackendLog:
		return notify.LogSink{}, func() {}
	case config.BackendQueue:
		client := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return notify.NewAsynqSink(client, cfg.Notify.MaxRetry), func() {
			if err := client.Close(); err != nil {
				slog.Warn("failed to close queue client", logger.Error(err))
			}
		}
	default:
		return notify.NewStoreSink(store), func() {}
	}
}
