package app

import (
	"context"
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/orderdesk/internal/credential"
)

// Run wires a session from cfg and executes the command in args. It is the
// single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config, args []string) error {
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	lg.Debug("Initializing", zap.String("base_url", cfg.BaseURL))

	s, err := NewSession(ctx, lg, cfg, store, Providers{
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create session")
	}
	defer s.Close()

	r := &runner{s: s, cfg: cfg, lg: lg, out: os.Stdout}
	return execute(ctx, r, args)
}

// openStore picks the credential store: Redis when an address is
// configured, the token file otherwise.
func openStore(cfg *Config) (credential.Store, func(), error) {
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		return credential.NewRedisStore(rdb, cfg.Redis.Key, cfg.Redis.TTL), func() { _ = rdb.Close() }, nil
	}
	path, err := cfg.tokenFile()
	if err != nil {
		return nil, nil, err
	}
	return credential.NewFileStore(path), func() {}, nil
}
