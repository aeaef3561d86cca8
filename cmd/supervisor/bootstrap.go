// Command supervisor is the CLI for the deterministic agent supervisor
// (spec.md §6 "Operator Command Interface"), mirroring the teacher's
// cmd/hector wiring style: a root command struct with one field per
// subcommand, thin Run methods that build collaborators from resolved
// configuration and delegate to pure internal/* handlers.
package main

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/archonops/supervisor/internal/audit"
	"github.com/archonops/supervisor/internal/config"
	"github.com/archonops/supervisor/internal/dispatcher"
	"github.com/archonops/supervisor/internal/model"
	"github.com/archonops/supervisor/internal/observability"
	"github.com/archonops/supervisor/internal/queue"
	"github.com/archonops/supervisor/internal/retry"
	"github.com/archonops/supervisor/internal/session"
	"github.com/archonops/supervisor/internal/statestore"
	"github.com/archonops/supervisor/internal/validation"
)

// env bundles every collaborator a subcommand might need, built once from
// resolved configuration.
type env struct {
	cfg   *config.Config
	store statestore.Store
	queue queue.Queue
}

func buildEnv(cfg *config.Config) (*env, error) {
	store, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}
	q, err := buildQueue(cfg)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, store: store, queue: q}, nil
}

func buildStore(cfg *config.Config) (statestore.Store, error) {
	switch cfg.Backend {
	case config.BackendSQL:
		db, err := openSQL(cfg.SQL)
		if err != nil {
			return nil, err
		}
		return statestore.NewSQLStore(db, cfg.SQL.Dialect, cfg.StateKey)
	default:
		client := redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			DB:   cfg.Redis.DB,
		})
		return statestore.NewRedisStore(client, cfg.StateKey), nil
	}
}

func buildQueue(cfg *config.Config) (queue.Queue, error) {
	switch cfg.Backend {
	case config.BackendSQL:
		db, err := openSQL(cfg.SQL)
		if err != nil {
			return nil, err
		}
		return queue.NewSQLQueue(db, cfg.SQL.Dialect)
	default:
		client := redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			DB:   cfg.Redis.DB,
		})
		return queue.NewRedisQueue(client, cfg.QueueKey), nil
	}
}

func openSQL(cfg config.SQLConfig) (*sql.DB, error) {
	driver := cfg.Dialect
	if driver == "sqlite" {
		driver = "sqlite3"
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	return db, nil
}

func buildDispatcher(cfg *config.Config) *dispatcher.Dispatcher {
	providers := make([]dispatcher.Provider, 0, len(cfg.Providers))
	for _, p := range orderByPriority(cfg.Providers, cfg.ProviderPriority) {
		providers = append(providers, dispatcher.Provider{
			Name:        p.Name,
			Executable:  p.Executable,
			BaseArgs:    p.BaseArgs,
			SessionFlag: p.SessionFlag,
			ModeFlag:    p.ModeFlag,
		})
	}
	return dispatcher.New(providers)
}

// orderByPriority reorders the configured providers so those named in the
// operator's priority list come first, in list order; providers the list
// does not name keep their config-file order after them.
func orderByPriority(providers []config.ProviderConfig, priority []string) []config.ProviderConfig {
	if len(priority) == 0 {
		return providers
	}
	byName := make(map[string]config.ProviderConfig, len(providers))
	for _, p := range providers {
		byName[p.Name] = p
	}
	ordered := make([]config.ProviderConfig, 0, len(providers))
	taken := make(map[string]bool, len(priority))
	for _, name := range priority {
		if p, ok := byName[name]; ok && !taken[name] {
			ordered = append(ordered, p)
			taken[name] = true
		}
	}
	for _, p := range providers {
		if !taken[p.Name] {
			ordered = append(ordered, p)
		}
	}
	return ordered
}

func buildSessionManager(cfg *config.Config) *session.Manager {
	return session.NewManager(session.ContextLimits(cfg.ProviderContextLimits), cfg.ProviderClass, cfg.SessionErrorCap)
}

func buildAuditSink(cfg *config.Config, projectID string) (*audit.Sink, error) {
	return audit.NewSink(cfg.SandboxRoot, projectID, nil)
}

func buildMetrics() *observability.Metrics {
	return observability.NewMetrics()
}

func loadCatalog(cfg *config.Config) (validation.Catalog, error) {
	return validation.LoadCatalogFile(cfg.RuleCatalogFile)
}

func buildRetryPolicy(cfg *config.Config) retry.Policy {
	return retry.NewPolicy(cfg.DefaultRetryMax, cfg.RepeatedFailureThreshold)
}

// cloneStateForAudit deep-copies a snapshot via JSON round-trip, the same
// technique internal/driver uses, so a direct CLI mutation's audit diff
// reflects the state as it actually was before the write (spec.md
// invariant 5) rather than a shared map/slice the later write also touched.
func cloneStateForAudit(s *model.SupervisorState) *model.SupervisorState {
	b, err := json.Marshal(s)
	if err != nil {
		cp := *s
		return &cp
	}
	var cp model.SupervisorState
	if err := json.Unmarshal(b, &cp); err != nil {
		fallback := *s
		return &fallback
	}
	return &cp
}
