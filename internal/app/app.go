// Package app wires the workspace database, generator and engine together and
// adapts them, or a remote server, to the board's Store.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"taskarchitect/internal/config"
	"taskarchitect/internal/db"
	"taskarchitect/internal/engine"
	"taskarchitect/internal/generate"
	"taskarchitect/internal/migrate"
)

// Env is an opened workspace.
type Env struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Engine    engine.Engine
}

func (e *Env) Close() error {
	if e == nil || e.DB == nil {
		return nil
	}
	return e.DB.Close()
}

// Open opens and migrates the workspace database and builds the engine with
// the generator selected by cfg.
func Open(ctx context.Context, workspace string, cfg *config.Config) (*Env, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	gen, err := generate.New(ctx, GeneratorConfig(cfg.Generator))
	if err != nil {
		conn.Close()
		return nil, err
	}
	e := engine.New(conn, gen)
	e.MaxGenerated = cfg.Generator.MaxTasks
	return &Env{Workspace: workspace, Config: cfg, DB: conn, Engine: e}, nil
}

// GeneratorConfig maps the config file section onto generate.Config.
func GeneratorConfig(c config.GeneratorConfig) generate.Config {
	return generate.Config{
		Provider: c.Provider,
		Model:    c.Model,
		APIKey:   c.APIKey,
		BaseURL:  c.BaseURL,
		Latency:  c.Latency,
		Timeout:  c.Timeout,
		MaxTasks: c.MaxTasks,
	}
}
