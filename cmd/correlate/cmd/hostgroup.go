package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/correlate/internal/core/db"
	"github.com/solatis/correlate/internal/types"
)

var hostGroupCmd = &cobra.Command{
	Use:   "hostgroup",
	Short: "Manage the host groups conditions may reference",
}

var hostGroupAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a host group",
	RunE:  runHostGroupAdd,
}

func init() {
	rootCmd.AddCommand(hostGroupCmd)
	hostGroupCmd.AddCommand(hostGroupAddCmd)
	hostGroupAddCmd.Flags().Uint64("id", 0, "host group ID")
	hostGroupAddCmd.Flags().String("name", "", "host group name")
	hostGroupAddCmd.MarkFlagRequired("id")
	hostGroupAddCmd.MarkFlagRequired("name")
}

func runHostGroupAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	id, _ := cmd.Flags().GetUint64("id")
	name, _ := cmd.Flags().GetString("name")
	if id == 0 {
		return fmt.Errorf("--id must be positive")
	}

	database, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	store, err := db.NewStore(database)
	if err != nil {
		return err
	}
	if err := store.AddHostGroup(ctx, types.GroupID(id), name); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "host group %d added\n", id)
	return nil
}
