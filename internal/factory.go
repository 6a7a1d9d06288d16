package internal

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/vadiminshakov/cobrand/config"
	"github.com/vadiminshakov/cobrand/internal/gateway"
	"github.com/vadiminshakov/cobrand/internal/storage/kv"
	"github.com/vadiminshakov/cobrand/internal/storage/walletsnapshots"
)

// newStore opens the state backend selected in cfg. WAL state lives in its
// own subdirectory so the snapshot history can share the state dir.
func newStore(cfg config.StoreConfig) (kv.Store, error) {
	kvCfg := cfg.KV()
	if kvCfg.Backend == kv.BackendWAL {
		kvCfg.Dir = filepath.Join(cfg.Dir, "session")
	}
	store, err := kv.New(kvCfg)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s state store", cfg.Backend)
	}
	return store, nil
}

// newSnapshotLog opens the wallet history for the disk backed stores. The
// in-memory and redis backends keep no local history.
func newSnapshotLog(cfg config.StoreConfig) (*walletsnapshots.WALStore, error) {
	switch cfg.Backend {
	case kv.BackendWAL, kv.BackendFile:
		log, err := walletsnapshots.NewWALStore(filepath.Join(cfg.Dir, "wallet_snapshots"))
		if err != nil {
			return nil, errors.Wrap(err, "open wallet snapshot log")
		}
		return log, nil
	default:
		return nil, nil
	}
}

func newRegistry() (*prometheus.Registry, *gateway.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return reg, gateway.NewMetrics(reg)
}

func gatewayOptions(cfg config.Config, metrics *gateway.Metrics) []gateway.Option {
	opts := []gateway.Option{
		gateway.WithMetrics(metrics),
		gateway.WithRetry(gateway.RetryPolicy{
			MaxRetries:      cfg.Retry.MaxRetries,
			InitialInterval: cfg.Retry.InitialInterval,
		}),
	}
	if cfg.RateLimit.RPS > 0 {
		burst := cfg.RateLimit.Burst
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, gateway.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), burst)))
	}
	return opts
}
