package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DH-Cologne/ObjectsRepositoryServer/pkg/objectsrepository"
	"github.com/DH-Cologne/ObjectsRepositoryServer/pkg/objectsrepository/repo/memory"
	repopg "github.com/DH-Cologne/ObjectsRepositoryServer/pkg/objectsrepository/repo/postgres"
	reposur "github.com/DH-Cologne/ObjectsRepositoryServer/pkg/objectsrepository/repo/surreal"
)

// ServerConfig represents server configuration for the objects repository
// service. DatabaseType is derived from DATABASE_URL, never set directly:
// empty or "memory" selects the in-memory store, a postgres URL the
// PostgreSQL store, an http(s) URL the SurrealDB store.
type ServerConfig struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`

	DatabaseURL  string `env:"DATABASE_URL" env-default:""`
	DatabaseType string
	DBSchema     string `env:"DB_SCHEMA" env-default:"objects"`

	SurrealNS   string `env:"SURREAL_NS" env-default:"objectsrepository"`
	SurrealDB   string `env:"SURREAL_DB" env-default:"objects"`
	SurrealUser string `env:"SURREAL_USER" env-default:"root"`
	SurrealPass string `env:"SURREAL_PASS" env-default:"root"`

	SessionSecret string `env:"SESSION_SECRET" env-default:""`

	ResolveDepth int `env:"RESOLVE_DEPTH" env-default:"2"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*ServerConfig, error) {
	var cfg ServerConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.detectDatabaseType(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ServerConfig) detectDatabaseType() error {
	switch {
	case c.DatabaseURL == "" || c.DatabaseURL == "memory":
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
	case strings.HasPrefix(c.DatabaseURL, "postgresql://"),
		strings.HasPrefix(c.DatabaseURL, "postgres://"):
		c.DatabaseType = "postgres"
	case strings.HasPrefix(c.DatabaseURL, "http://"),
		strings.HasPrefix(c.DatabaseURL, "https://"):
		c.DatabaseType = "surreal"
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory', 'postgresql://...' or 'http://...')", c.DatabaseURL)
	}
	return nil
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.SessionSecret == "" && c.Environment == "production" {
		return errors.New("SESSION_SECRET is required in production")
	}
	if c.ResolveDepth < 0 {
		return errors.New("RESOLVE_DEPTH must not be negative")
	}
	return nil
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService(ctx context.Context) (objectsrepository.Service, error) {
	entities, accounts, err := c.buildStores(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build stores: %w", err)
	}

	return objectsrepository.New(
		objectsrepository.WithEntityStore(entities),
		objectsrepository.WithAccountStore(accounts),
		objectsrepository.WithResolveDepth(c.ResolveDepth),
	)
}

// buildStores creates the entity and account stores based on the
// configuration. Postgres and SurrealDB repositories serve both roles.
func (c *ServerConfig) buildStores(ctx context.Context) (objectsrepository.EntityStore, objectsrepository.AccountStore, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.NewEntityStore(), memory.NewAccountStore(), nil

	case "postgres":
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		schema := c.DBSchema
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if schema == "" {
				return nil
			}
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
			return err
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		repo := repopg.NewWithPool(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		return repo, repo, nil

	case "surreal":
		repo := reposur.Connect(c.DatabaseURL, c.SurrealNS, c.SurrealDB, c.SurrealUser, c.SurrealPass)
		return repo, repo, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}
