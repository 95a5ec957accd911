package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zulandar/momotalk/internal/chat"
	"github.com/zulandar/momotalk/internal/completion"
	"github.com/zulandar/momotalk/internal/config"
	"github.com/zulandar/momotalk/internal/db"
	"github.com/zulandar/momotalk/internal/logging"
	"github.com/zulandar/momotalk/internal/store"
	"gorm.io/gorm"
)

// app is what most commands need: the loaded config and an open,
// migrated database.
type app struct {
	cfg   *config.Config
	db    *gorm.DB
	store *store.Store
}

// loadConfig reads the config file named by --config, applies log overrides
// from flags and MOMOTALK_LOG_* variables, and initialises logging.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	path := v.GetString("config")
	if path == "" {
		path = config.DefaultConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if v.IsSet("log-level") {
		cfg.Log.Level = v.GetString("log-level")
	}
	if v.IsSet("log-format") {
		cfg.Log.Format = v.GetString("log-format")
	}
	if v.IsSet("log-file") {
		cfg.Log.File = v.GetString("log-file")
	}
	if err := logging.Init(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Out:    cmd.ErrOrStderr(),
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openApp loads config, connects to the database and migrates it.
func openApp(cmd *cobra.Command, v *viper.Viper) (*app, error) {
	cfg, err := loadConfig(cmd, v)
	if err != nil {
		return nil, err
	}
	gdb, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gdb); err != nil {
		closeDB(gdb)
		return nil, err
	}
	return &app{cfg: cfg, db: gdb, store: store.New(gdb)}, nil
}

// Close releases the database connection.
func (a *app) Close() {
	closeDB(a.db)
}

func closeDB(gdb *gorm.DB) {
	if sqlDB, err := gdb.DB(); err == nil {
		sqlDB.Close()
	}
}

// completer builds the completion client. Tests replace it to avoid the
// network.
var completer = func(cfg config.CompletionConfig) completion.Completer {
	return completion.NewClient(completion.ClientOpts{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.ResolveAPIKey(),
		Timeout: cfg.Timeout(),
	})
}

// orchestrator builds the exchange orchestrator for a.
func (a *app) orchestrator() *chat.Orchestrator {
	return chat.NewOrchestrator(chat.OrchestratorOpts{
		Store:     a.store,
		Completer: completer(a.cfg.Completion),
		Model:     a.cfg.Completion.Model,
	})
}
