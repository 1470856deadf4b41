package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/nexus/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backend health and status",
	Long: `Query the backend and display:
  - Health, version and uptime
  - The status snapshot (mode, totals, last execution time)
  - The newest activity log entries`,
	RunE: runStatus,
}

var statusTail int

func init() {
	statusCmd.Flags().IntVar(&statusTail, "tail", 5, "Log entries to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.API.Timeout+time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		printStatus("✗", fmt.Sprintf("Backend unreachable at %s", client.BaseURL()), color.FgRed)
		return err
	}
	printStatus("✓", fmt.Sprintf("Backend %v at %s", health["status"], client.BaseURL()), color.FgGreen)
	printFields(health, "status")

	status, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("fetch status: %w", err)
	}
	fmt.Println()
	fmt.Println(color.New(color.Bold).Sprint("Status"))
	printFields(status)

	logs, err := client.Logs(ctx)
	if err != nil {
		return fmt.Errorf("fetch logs: %w", err)
	}
	fmt.Println()
	fmt.Println(color.New(color.Bold).Sprintf("Activity (%d)", len(logs)))
	printEntries(logs, statusTail)
	return nil
}

func printFields(fields models.Status, skip ...string) {
	keys := make([]string, 0, len(fields))
outer:
	for k := range fields {
		for _, s := range skip {
			if k == s {
				continue outer
			}
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-20s %v\n", k+":", fields[k])
	}
}

func printEntries(logs []models.LogEntry, n int) {
	if n < len(logs) {
		logs = logs[:n]
	}
	for _, e := range logs {
		fmt.Printf("  %s %s %s\n",
			color.HiBlackString(e.Time),
			color.New(color.FgBlue, color.Bold).Sprintf("%-9s", e.Agent),
			colorForType(e.Type).Sprint(e.Message))
	}
}
