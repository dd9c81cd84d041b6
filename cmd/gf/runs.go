package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/oxang/groupforge/internal/models"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	var (
		configPath string
		status     string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List provisioning runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsList(cmd, configPath, status, limit)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Groupforge config file")
	cmd.Flags().StringVarP(&status, "status", "s", "", "filter by status (running, completed, failed)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "max runs to show")
	return cmd
}

func runRunsList(cmd *cobra.Command, configPath, status string, limit int) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	query := gormDB.Order("created_at DESC").Limit(limit)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var runs []models.ProvisionRun
	if err := query.Find(&runs).Error; err != nil {
		return fmt.Errorf("runs: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOPERATOR\tPHONE\tSTATUS\tCREATED\tFAILED\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%d/%d\t%d\t%s\n",
			r.ID, r.OperatorID, r.Phone, r.Status,
			r.GroupsCreated, r.Total, r.GroupsFailed,
			r.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
