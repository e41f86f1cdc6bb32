package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/davrx/cachefront/internal/cache"
	"github.com/davrx/cachefront/internal/config"
	"github.com/davrx/cachefront/internal/logging"
)

var (
	cfgPath   string
	redisAddr string
	redisPass string
	redisDB   int
	pgDSN     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cachefront",
		Short: "cachefront - two-tier cache and paginated-query accelerator",
		Long:  "A two-tier (Redis + local) cache with pattern invalidation and a paginated-query optimizer",
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "Redis address")
	rootCmd.PersistentFlags().StringVar(&redisPass, "redis-pass", "", "Redis password")
	rootCmd.PersistentFlags().IntVar(&redisDB, "redis-db", 0, "Redis database")
	rootCmd.PersistentFlags().StringVar(&pgDSN, "pg", "", "Postgres DSN")

	rootCmd.AddCommand(
		getCmd(),
		setCmd(),
		delCmd(),
		existsCmd(),
		invalidateCmd(),
		incrCmd(),
		benchCmd(),
		daemonCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration: file, env, then flags.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if cfgPath != "" {
		loaded, err := config.LoadFromFile(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)

	if redisAddr != "" {
		cfg.Redis.Addr = redisAddr
	}
	if redisPass != "" {
		cfg.Redis.Password = redisPass
	}
	if redisDB != 0 {
		cfg.Redis.DB = redisDB
	}
	if pgDSN != "" {
		cfg.Postgres.DSN = pgDSN
	}
	return cfg, nil
}

// newCoordinator wires the two cache tiers from config.
func newCoordinator(cfg *config.Config) *cache.Coordinator {
	remote := cache.NewRemoteCache(cache.RemoteCacheConfig{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
		OpTimeout: cfg.Redis.OpTimeout,
	})
	local := cache.NewLocalCache(cfg.Cache.LocalCapacity, cfg.Cache.SweepInterval)
	return cache.NewCoordinator(remote, local, cfg.Cache.DefaultTTL)
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Fetch a cached value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			coord := newCoordinator(cfg)
			defer coord.Close()

			val, ok := coord.Get(cmd.Context(), args[0])
			if !ok {
				return fmt.Errorf("key not found: %s", args[0])
			}
			fmt.Println(string(val))
			return nil
		},
	}
}

func setCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			coord := newCoordinator(cfg)
			defer coord.Close()

			coord.Set(cmd.Context(), args[0], []byte(args[1]), ttl)
			if !coord.RemoteAvailable() {
				logging.Op().Warn("remote tier unavailable, value stored locally only")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Entry TTL (default: coordinator default)")
	return cmd
}

func delCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "del <key>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			coord := newCoordinator(cfg)
			defer coord.Close()

			coord.Delete(cmd.Context(), args[0])
			return nil
		},
	}
}

func existsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <key>",
		Short: "Check whether a key is cached",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			coord := newCoordinator(cfg)
			defer coord.Close()

			fmt.Println(strconv.FormatBool(coord.Exists(cmd.Context(), args[0])))
			return nil
		},
	}
}

func invalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <pattern>",
		Short: "Delete every key matching a glob pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			coord := newCoordinator(cfg)
			defer coord.Close()

			coord.DeletePattern(cmd.Context(), args[0])
			return nil
		},
	}
}

func incrCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "incr <key>",
		Short: "Atomically increment a counter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			coord := newCoordinator(cfg)
			defer coord.Close()

			fmt.Println(coord.Increment(cmd.Context(), args[0], ttl))
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Counter TTL, applied on creation")
	return cmd
}

func benchCmd() *cobra.Command {
	var (
		n       int
		payload int
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure round-trip set/get latency against the active tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			coord := newCoordinator(cfg)
			defer coord.Close()

			ctx := cmd.Context()
			value := make([]byte, payload)

			start := time.Now()
			for i := 0; i < n; i++ {
				key := "bench:" + strconv.Itoa(i)
				coord.Set(ctx, key, value, time.Minute)
				if _, ok := coord.Get(ctx, key); !ok {
					return fmt.Errorf("round-trip miss at iteration %d", i)
				}
			}
			elapsed := time.Since(start)
			coord.DeletePattern(ctx, "bench:*")

			tier := "local"
			if coord.RemoteAvailable() {
				tier = "remote"
			}
			fmt.Printf("%d round-trips via %s tier in %s (%.1fµs/op)\n",
				n, tier, elapsed.Round(time.Millisecond),
				float64(elapsed.Microseconds())/float64(n)/2)
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "n", 1000, "Number of set+get round trips")
	cmd.Flags().IntVar(&payload, "payload", 256, "Value size in bytes")
	return cmd
}
