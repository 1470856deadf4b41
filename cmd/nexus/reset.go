package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the backend log and run history",
	RunE:  runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Skip the confirmation prompt")
}

func runReset(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	if !resetYes {
		fmt.Printf("Clear all logs and run history at %s? [y/N] ", client.BaseURL())
		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.API.Timeout+time.Second)
	defer cancel()
	if err := client.Reset(ctx); err != nil {
		return fmt.Errorf("reset backend: %w", err)
	}
	printStatus("✓", "Backend state cleared", color.FgGreen)
	return nil
}
