// Package bootstrap wires configuration, ambient collaborators, the store and
// the core services into one Container shared by every entry point.
package bootstrap

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"fieldstock/internal/app"
	"fieldstock/internal/config"
	"fieldstock/internal/core"
	"fieldstock/internal/db"
	"fieldstock/internal/logging"
	"fieldstock/internal/metrics"
	"fieldstock/internal/notify"
	"fieldstock/internal/store/memory"
	"fieldstock/internal/store/postgres"
)

// Container holds everything the adapters need.
type Container struct {
	Config   *config.Config
	Logger   *logging.SlogLogger
	Metrics  core.MetricsCollector
	HTTP     metrics.HTTPObserver
	Registry *prometheus.Registry // nil when metrics are disabled
	Pool     *pgxpool.Pool        // nil for the memory store
	Services app.Services
	App      app.ApplicationService

	closers []func()
}

// New builds a Container from cfg. Logs go to logOut. Close releases the
// database pool and the NATS connection.
func New(ctx context.Context, cfg *config.Config, logOut io.Writer) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Container{
		Config: cfg,
		Logger: logging.New(cfg.Log.Level, cfg.Log.Format, logOut),
	}

	if cfg.Metrics.Enabled {
		c.Registry = prometheus.NewRegistry()
		prom := metrics.NewPrometheus(c.Registry, cfg.Metrics.Namespace)
		c.Metrics, c.HTTP = prom, prom
	} else {
		nop := metrics.NewNop()
		c.Metrics, c.HTTP = nop, nop
	}

	store, err := c.openStore(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}

	notifier, err := c.openNotifier()
	if err != nil {
		c.Close()
		return nil, err
	}

	thresholds := core.AlertThresholds{
		WarningRatio: decimal.NewFromFloat(cfg.Alerts.WarningRatio),
		LowRatio:     decimal.NewFromFloat(cfg.Alerts.LowRatio),
	}
	c.Services = app.NewServices(store, thresholds, core.Options{
		Logger:   c.Logger,
		Metrics:  c.Metrics,
		Notifier: notifier,
	})
	c.App = app.NewAppService(c.Services)

	c.Logger.Info("container ready", "storage", cfg.Storage, "metrics", cfg.Metrics.Enabled, "nats", cfg.NATS.URL != "")
	return c, nil
}

// Close releases external connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func (c *Container) openStore(ctx context.Context) (core.Store, error) {
	switch c.Config.Storage {
	case config.StoragePostgres:
		pool, err := db.NewPool(ctx, c.Config.Database.URL, c.Config.Database.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		c.Pool = pool
		c.closers = append(c.closers, pool.Close)
		return postgres.New(pool), nil
	default:
		return memory.New(), nil
	}
}

func (c *Container) openNotifier() (core.Notifier, error) {
	multi := notify.Multi{notify.NewLogNotifier(c.Logger)}
	if c.Config.NATS.URL == "" {
		return multi, nil
	}
	nc, err := nats.Connect(c.Config.NATS.URL, nats.Name("fieldstock"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	c.closers = append(c.closers, func() {
		if err := nc.Drain(); err != nil {
			nc.Close()
		}
	})
	return append(multi, notify.NewNATSNotifier(nc, c.Config.NATS.SubjectPrefix)), nil
}
