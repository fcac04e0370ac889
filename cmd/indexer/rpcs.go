package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seleniumforest/cosmos-indexer/internal/config"
	"github.com/seleniumforest/cosmos-indexer/internal/pool"
)

func runRPCs(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := newDeps(cfg, logger)
	if err != nil {
		return err
	}
	var discoverer pool.Discoverer
	if deps.Chains != nil {
		discoverer = deps.Chains
	}

	out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(out, "NETWORK\tURL\tPRIORITY")
	for _, n := range cfg.Networks {
		p, err := pool.Build(ctx, pool.Config{
			Network:     n.Name,
			RPCURLs:     n.RPCURLs,
			UseRegistry: cfg.UseRegistry,
			DataToFetch: n.Mode,
			FromBlock:   n.FromBlock,
			SyncWindow:  cfg.SyncWindow,
			AllowEmpty:  true,
		}, discoverer, nil, logger)
		if err != nil {
			return err
		}
		for _, info := range p.Status() {
			fmt.Fprintf(out, "%s\t%s\t%t\n", n.Name, info.URL, info.Priority)
		}
		p.Close()
	}
	return out.Flush()
}
