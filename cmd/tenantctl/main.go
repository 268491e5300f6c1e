// Command tenantctl is the operator CLI for the tenant directory and tenant incidents.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cidadeplus/backend/config"
	"github.com/cidadeplus/backend/pkg/database"
	"github.com/cidadeplus/backend/pkg/logger"
	"github.com/cidadeplus/backend/pkg/redis"
)

var Version = "dev"

// app lazily opens the connections a subcommand needs.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	pool   *pgxpool.Pool
	rdb    *redis.Client
	out    io.Writer
	asJSON bool
}

func (a *app) init() error {
	if a.cfg != nil {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Level, "console", "tenantctl")
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

func (a *app) db(ctx context.Context) (*pgxpool.Pool, error) {
	if err := a.init(); err != nil {
		return nil, err
	}
	if a.pool == nil {
		pool, err := database.NewPostgresPool(ctx, a.cfg.Database.DSN(), database.PoolOptions{MaxConns: 2}, a.log)
		if err != nil {
			return nil, err
		}
		a.pool = pool
	}
	return a.pool, nil
}

func (a *app) redisClient(ctx context.Context) (*redis.Client, error) {
	if err := a.init(); err != nil {
		return nil, err
	}
	if a.rdb == nil {
		rdb, err := redis.NewClient(ctx, redis.Options{Addr: a.cfg.Redis.Addr, Password: a.cfg.Redis.Password, DB: a.cfg.Redis.DB}, a.log)
		if err != nil {
			return nil, err
		}
		a.rdb = rdb
	}
	return a.rdb, nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "tenantctl",
		Short:         "Operate the city directory and tenant incidents",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&a.asJSON, "json", "j", false, "Output as JSON")

	root.AddCommand(citiesCmd(a))
	root.AddCommand(resolveCmd(a))
	root.AddCommand(incidentsCmd(a))
	root.AddCommand(cacheCmd(a))
	return root
}

func main() {
	a := &app{out: os.Stdout}
	defer a.close()

	if err := newRootCmd(a).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		a.close()
		os.Exit(1)
	}
}
