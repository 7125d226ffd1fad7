package main

import (
	"context"
	"fmt"

	"github.com/hollowdb/hollow/pkg/rpc"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect schemas registered on a running hollowd",
}

var schemaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available schemas",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		c, err := rpc.Dial(cfg.Listen.Address, "")
		if err != nil {
			return fmt.Errorf("dial %s: %w", cfg.Listen.Address, err)
		}
		defer c.Close()

		names, err := c.ListAvailableSchemas(context.Background())
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	schemaCmd.AddCommand(schemaListCmd)
}
