package main

import (
	"context"
	"fmt"

	"github.com/hollowdb/hollow/pkg/rpc"
	"github.com/spf13/cobra"
)

var databaseCmd = &cobra.Command{
	Use:   "database",
	Short: "Manage databases on a running hollowd",
}

var databaseCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a database against a registered schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		schemaName, _ := cmd.Flags().GetString("schema")
		onlyIfNeeded, _ := cmd.Flags().GetBool("only-if-needed")

		c, err := rpc.Dial(cfg.Listen.Address, "")
		if err != nil {
			return fmt.Errorf("dial %s: %w", cfg.Listen.Address, err)
		}
		defer c.Close()

		if err := c.CreateDatabase(context.Background(), args[0], schemaName, onlyIfNeeded); err != nil {
			return err
		}
		fmt.Printf("created database %q (schema %q)\n", args[0], schemaName)
		return nil
	},
}

var databaseDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a database",
	Args:  cobra.ExactArgs(1),
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

		if err := c.DeleteDatabase(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted database %q\n", args[0])
		return nil
	},
}

var databaseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open databases",
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

		names, err := c.ListDatabases(context.Background())
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
	databaseCreateCmd.Flags().String("schema", "shop.v1", "registered schema to create the database against")
	databaseCreateCmd.Flags().Bool("only-if-needed", true, "return the existing database instead of erroring if it already exists")

	databaseCmd.AddCommand(databaseCreateCmd)
	databaseCmd.AddCommand(databaseDeleteCmd)
	databaseCmd.AddCommand(databaseListCmd)
}
