package main

import (
	"context"
	"fmt"

	"github.com/hollowdb/hollow/pkg/rpc"
	"github.com/spf13/cobra"
)

var compactCmd = &cobra.Command{
	Use:   "compact DATABASE",
	Short: "Run a maintenance compaction pass over a database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		kvOnly, _ := cmd.Flags().GetBool("kv")

		c, err := rpc.Dial(cfg.Listen.Address, args[0])
		if err != nil {
			return fmt.Errorf("dial %s: %w", cfg.Listen.Address, err)
		}
		defer c.Close()

		ctx := context.Background()
		if kvOnly {
			err = c.CompactKeyValueStore(ctx)
		} else {
			err = c.Compact(ctx)
		}
		if err != nil {
			return err
		}
		fmt.Printf("compacted %q\n", args[0])
		return nil
	},
}

func init() {
	compactCmd.Flags().Bool("kv", false, "compact only the key-value sidestore")
}
