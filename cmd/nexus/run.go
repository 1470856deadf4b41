package main

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/nexus/internal/coordinator"
	"github.com/ShayCichocki/nexus/internal/runguard"
	"github.com/ShayCichocki/nexus/pkg/models"
)

var (
	runCount int
	runTail  int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the swarm once and print its progress",
	Long: `Trigger a swarm run and print stage progress as it happens.

Each stage is shown for at least pipeline.stage_dwell; the command returns
once both the stage walk and the backend call have finished.

Examples:
  nexus run               # One run
  nexus run --count 3     # Three runs back to back
  nexus run --tail 10     # Print the 10 newest log entries afterwards`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVarP(&runCount, "count", "n", 1, "Number of runs to execute back to back")
	runCmd.Flags().IntVar(&runTail, "tail", 6, "Log entries to print after each run")
}

func runRun(cmd *cobra.Command, args []string) error {
	if runCount < 1 {
		return errors.New("--count must be at least 1")
	}

	ctx, cancel := signalContext()
	defer cancel()

	coord, err := newCoordinator(nil)
	if err != nil {
		return err
	}
	if err := coord.Start(); err != nil {
		coord.Close()
		return fmt.Errorf("start coordinator: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		printProgress(coord.Events())
	}()
	// Close ends the event stream, which ends printProgress.
	defer wg.Wait()
	defer coord.Close()

	for i := 0; i < runCount; i++ {
		start := time.Now()
		err := coord.Run(ctx)
		switch {
		case errors.Is(err, runguard.ErrRunInFlight):
			printStatus("⚠", "Run already in progress", color.FgYellow)
			continue
		case err != nil:
			return fmt.Errorf("run %d: %w", i+1, err)
		}
		printStatus("✓", fmt.Sprintf("Swarm cycle %d complete in %s", i+1, time.Since(start).Round(time.Millisecond)), color.FgGreen)
		printLogs(coord, runTail)
	}
	return nil
}

// printProgress prints stage transitions until events is closed.
func printProgress(events <-chan models.Event) {
	for ev := range events {
		switch ev.Type {
		case models.EventStageActivated:
			printStatus("◉", fmt.Sprintf("%-20s %s", ev.Stage, ev.Stage.Agent()), color.FgCyan)
		case models.EventStageCompleted:
			printStatus("✓", string(ev.Stage), color.FgGreen)
		case models.EventRunFailed:
			printStatus("✗", "Run failed: "+ev.Message, color.FgRed)
		}
	}
}

func printLogs(coord *coordinator.Coordinator, n int) {
	printEntries(coord.Logs(), n)
}

func colorForType(t models.LogType) *color.Color {
	switch t {
	case models.LogTypeSuccess:
		return color.New(color.FgGreen)
	case models.LogTypeWarning:
		return color.New(color.FgYellow)
	case models.LogTypeError:
		return color.New(color.FgRed)
	default:
		return color.New(color.Reset)
	}
}
