package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vietddude/relay/internal/core/config"
	"github.com/vietddude/relay/internal/health"
)

var adminAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show dispatch and dependency status of a running relay",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&adminAddr, "admin", "", "admin server address (default derived from config)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	addr := adminAddr
	if addr == "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			slog.Error("Failed to load config", "error", err)
			os.Exit(1)
		}
		addr = fmt.Sprintf("http://localhost:%d", cfg.Admin.Port)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(addr + "/health/detailed")
	if err != nil {
		slog.Error("Failed to reach relay admin server", "addr", addr, "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var report health.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		slog.Error("Failed to decode health report", "error", err)
		os.Exit(1)
	}

	fmt.Printf("System: %s\n\n", report.SystemStatus)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)

	_, _ = fmt.Fprintln(w, "DEPENDENCY\tSTATUS\tERROR")
	for _, dep := range report.Dependencies {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", dep.Name, dep.Status, dep.Error)
	}
	_ = w.Flush()

	if len(report.Actions) > 0 {
		actions := make([]string, 0, len(report.Actions))
		for a := range report.Actions {
			actions = append(actions, a)
		}
		sort.Strings(actions)

		fmt.Println()
		_, _ = fmt.Fprintln(w, "ACTION\tBREAKER\tACTIVE\tWAITING")
		for _, a := range actions {
			snap := report.Actions[a]
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", a, snap.Breaker.State, snap.Bulkhead.Active, snap.Bulkhead.Waiting)
		}
		_ = w.Flush()
	}

	if len(report.Queues) > 0 {
		queues := make([]string, 0, len(report.Queues))
		for q := range report.Queues {
			queues = append(queues, q)
		}
		sort.Strings(queues)

		fmt.Println()
		_, _ = fmt.Fprintln(w, "QUEUE\tPENDING")
		for _, q := range queues {
			_, _ = fmt.Fprintf(w, "%s\t%d\n", q, report.Queues[q])
		}
		_ = w.Flush()
	}
}
