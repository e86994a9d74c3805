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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/opentrusty/civicguard/internal/config"
	"github.com/opentrusty/civicguard/internal/entity"
	"github.com/opentrusty/civicguard/internal/notify"
	"github.com/opentrusty/civicguard/internal/observability/logger"
	"github.com/opentrusty/civicguard/internal/store/postgres"
)

// The worker drains the notification queue into the recipients' inboxes.
func main() {
	cfg, err := config.Read()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: cfg.OTEL.ServiceName + "-worker",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store entity.Store
	if cfg.Store.Backend == config.BackendPostgres {
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
			slog.Error("failed to connect to database", logger.Error(err))
			os.Exit(1)
		}
		defer db.Close()
		store = postgres.NewEntityRepository(db)
	} else {
		slog.Warn("worker running against an in-memory store; delivered notifications are not shared with the server")
		store = entity.NewMemoryStore()
	}

	worker := notify.NewWorker(notify.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		Concurrency: cfg.Notify.Concurrency,
		Handler:     notify.NewDeliverHandler(notify.NewStoreSink(store)),
	})

	slog.Info("notification worker started", logger.Component("worker"), logger.String("queue", notify.QueueNotifications))
	if err := worker.Run(ctx); err != nil {
		slog.Error("worker stopped with error", logger.Error(err))
		os.Exit(1)
	}
	slog.Info("notification worker stopped")
}
