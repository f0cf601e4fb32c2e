package cli

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/nlquery/nlquery/internal/config"
	"github.com/nlquery/nlquery/internal/db"
	"github.com/nlquery/nlquery/internal/execute"
	"github.com/nlquery/nlquery/internal/observability"
	"github.com/nlquery/nlquery/internal/pipeline"
	"github.com/nlquery/nlquery/internal/safety"
	"github.com/nlquery/nlquery/internal/schema"
	"github.com/nlquery/nlquery/internal/translate"
)

// connectError wraps failures to reach the target database so exit-code
// mapping can tell them apart from usage mistakes.
type connectError struct {
	err error
}

func (e *connectError) Error() string { return e.err.Error() }
func (e *connectError) Unwrap() error { return e.err }

// runtime is everything a command needs once configuration is resolved.
// close releases the connection pool.
type runtime struct {
	cfg          config.Config
	pool         *sql.DB
	dialect      db.Dialect
	introspector schema.Introspector
	runner       QueryRunner
}

func (r *runtime) close() {
	if r.pool != nil {
		_ = r.pool.Close()
	}
}

func loadConfig(opts *Options, dsnFlag string) (config.Config, error) {
	cfg, err := config.Load("nlquery", opts.Lookup)
	if err != nil {
		return config.Config{}, &usageError{err: err}
	}
	if strings.TrimSpace(dsnFlag) != "" {
		cfg.Database.DSN = strings.TrimSpace(dsnFlag)
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return config.Config{}, &usageError{err: fmt.Errorf("no database configured: pass --db or set NLQUERY_DATABASE_DSN")}
	}
	return cfg, nil
}

// buildRuntime opens the pool and wires the full pipeline. Injected test
// doubles from Options short-circuit the pieces they replace.
func buildRuntime(ctx context.Context, opts *Options, cfg config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg, dialect: db.DetectDialect(cfg.Database.DSN)}

	needPool := opts.Runner == nil || opts.Introspector == nil
	if needPool {
		pool, dialect, err := db.Open(ctx, db.Config{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, &connectError{err: err}
		}
		rt.pool = pool
		rt.dialect = dialect
	}

	rt.introspector = opts.Introspector
	if rt.introspector == nil {
		source := &schema.DatabaseIntrospector{DB: rt.pool, Dialect: rt.dialect}
		cache := schema.NewCache(cfg.Limits.SchemaCacheTTL)
		rt.introspector = cache.Bound(cfg.Database.DSN, source)
	}

	rt.runner = opts.Runner
	if rt.runner == nil {
		translator, err := translate.New(cfg.AI)
		if err != nil {
			rt.close()
			return nil, &usageError{err: err}
		}
		rt.runner = &pipeline.Runner{
			Introspector: rt.introspector,
			Translator:   translator,
			Executor: &execute.Executor{
				DB:       rt.pool,
				RowLimit: cfg.Limits.RowLimit,
				Timeout:  cfg.Limits.RequestTimeout,
			},
			Builder: translate.PromptBuilder{
				Dialect:      rt.dialect,
				SchemaBudget: cfg.Limits.PromptSchemaBudget,
			},
			Policy: safety.Policy{AllowMutations: cfg.Limits.AllowMutations},
			Logger: observability.NewLogger(cfg, opts.Stderr),
		}
	}
	return rt, nil
}
