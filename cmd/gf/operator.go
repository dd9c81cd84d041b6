package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/oxang/groupforge/internal/authz"
	"github.com/spf13/cobra"
)

func newOperatorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "operator",
		Aliases: []string{"op"},
		Short:   "Manage authorized operators",
	}

	cmd.AddCommand(newOperatorListCmd())
	cmd.AddCommand(newOperatorAddCmd())
	cmd.AddCommand(newOperatorRevokeCmd())
	return cmd
}

func newOperatorListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List operators who passed the passphrase gate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperatorList(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Groupforge config file")
	return cmd
}

func newOperatorAddCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "add <operator-id>",
		Short: "Authorize an operator without the passphrase gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperatorAdd(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Groupforge config file")
	return cmd
}

func newOperatorRevokeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "revoke <operator-id>",
		Short: "Revoke an operator's authorization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperatorRevoke(cmd, configPath, args[0])
		},
		Args: cobra.ExactArgs(1),
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Groupforge config file")
	return cmd
}

func runOperatorList(cmd *cobra.Command, configPath string) error {
	store, err := storeFromConfig(configPath)
	if err != nil {
		return err
	}

	operators, err := store.List(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(operators) == 0 {
		fmt.Fprintln(out, "No operators authorized.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "OPERATOR ID\tAUTHORIZED AT")
	for _, op := range operators {
		fmt.Fprintf(w, "%d\t%s\n", op.OperatorID, op.AuthorizedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runOperatorAdd(cmd *cobra.Command, configPath, arg string) error {
	operatorID, err := parseOperatorID(arg)
	if err != nil {
		return err
	}

	store, err := storeFromConfig(configPath)
	if err != nil {
		return err
	}
	if err := store.Authorize(cmd.Context(), operatorID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Operator %d authorized\n", operatorID)
	return nil
}

func runOperatorRevoke(cmd *cobra.Command, configPath, arg string) error {
	operatorID, err := parseOperatorID(arg)
	if err != nil {
		return err
	}

	store, err := storeFromConfig(configPath)
	if err != nil {
		return err
	}
	if err := store.Revoke(cmd.Context(), operatorID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Operator %d revoked\n", operatorID)
	return nil
}

func parseOperatorID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("operator: bad operator id %q", arg)
	}
	return id, nil
}

func storeFromConfig(configPath string) (*authz.GormStore, error) {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, err
	}
	return authz.NewGormStore(gormDB)
}
