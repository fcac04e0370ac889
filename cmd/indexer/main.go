package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "Cosmos block and tx watcher",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Follow networks block by block",
		RunE:  runBlocks,
	}
	addNetworkFlags(runCmd.Flags())
	runCmd.Flags().Int64("batch-size", 10, "blocks composed per batch")
	runCmd.Flags().Bool("trim", false, "drop blacklisted messages and update_client headers")

	root.AddCommand(runCmd)

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Follow txs matching event conditions",
		RunE:  runLogs,
	}
	addNetworkFlags(logsCmd.Flags())
	logsCmd.Flags().StringSlice("query", nil, "event conditions as key=value (repeatable)")
	logsCmd.Flags().Int64("range-size", 100, "heights per tx_search query")
	logsCmd.Flags().Duration("poll-interval", time.Minute, "wait between polls")
	logsCmd.Flags().Bool("trim", false, "drop blacklisted messages and update_client headers")

	root.AddCommand(logsCmd)

	rpcsCmd := &cobra.Command{
		Use:   "rpcs",
		Short: "Discover and health check the RPC endpoints of a network",
		RunE:  runRPCs,
	}
	rpcsCmd.Flags().String("network", "", "registry chain name")
	rpcsCmd.Flags().StringSlice("rpc", nil, "RPC URLs tried before registry endpoints")
	rpcsCmd.Flags().Int64("from", 0, "require endpoints to still hold this height")
	rpcsCmd.Flags().String("mode", "RAW_TXS", "RAW_TXS, INDEXED_TXS or ONLY_HEIGHTS")
	rpcsCmd.Flags().Bool("use-registry", true, "discover endpoints from the chain registry")
	rpcsCmd.Flags().StringSlice("registry-urls", nil, "chain registry base URLs")
	rpcsCmd.Flags().Duration("sync-window", 30*time.Second, "max age of an endpoint's latest block")
	rpcsCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(rpcsCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addNetworkFlags(flags *pflag.FlagSet) {
	flags.String("network", "", "single network name, overrides the networks list")
	flags.StringSlice("rpc", nil, "RPC URLs for --network (comma-separated)")
	flags.Int64("from", 0, "start height for --network, 0 means head")
	flags.String("mode", "RAW_TXS", "data to fetch for --network: RAW_TXS, INDEXED_TXS or ONLY_HEIGHTS")
	flags.Int64("lag", 0, "blocks to stay behind the head for --network")
	flags.Bool("use-registry", true, "discover endpoints from the chain registry")
	flags.StringSlice("registry-urls", nil, "chain registry base URLs")
	flags.Bool("registry-offline", false, "use the bundled chain snapshot only")
	flags.Duration("sync-window", 30*time.Second, "max age of an endpoint's latest block, 0 disables")
	flags.String("out-dir", "./data", "directory for JSONL output and checkpoints")
	flags.Bool("resume", true, "continue from the last delivered height")
	flags.String("cache.driver", "none", "cache backend: none, memory, bolt, badger, postgres, redis")
	flags.String("cache.path", "./data/cache.db", "bolt file or badger directory")
	flags.String("cache.dsn", "", "Postgres DSN")
	flags.String("cache.redis-addr", "", "Redis address")
	flags.String("cache.redis-password", "", "Redis password")
	flags.Int("cache.redis-db", 0, "Redis database")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
