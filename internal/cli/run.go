package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"lens/internal/model"
)

var (
	runContract   string
	runContractID string
	runSources    string
	runTimeout    time.Duration
	runJSON       string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <query>",
	Short: "Resolve a query into canonical entities",
	Long: `Run executes the full resolution pipeline for one query:
- Extract routing features from the query via the contract vocabulary
- Plan which sources to fetch, grouped into ordered phases
- Fetch concurrently within each phase, persisting raw artifacts
- Decode, classify, and annotate records through the contract rules
- Group records that denote the same entity and merge each group
- Upsert the merged entities into the store

Example:
  lens run "padel courts in edinburgh" --contract sports.yaml --sources sources.yaml
  lens run "jazz tonight" --contract events.yaml --sources sources.yaml --json report.json`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runContract, "contract", "contract.yaml", "contract file path")
	runCmd.Flags().StringVar(&runContractID, "contract-id", "", "contract id (default: contract file name)")
	runCmd.Flags().StringVar(&runSources, "sources", "sources.yaml", "source registry path")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 3*time.Minute, "overall run timeout")
	runCmd.Flags().StringVar(&runJSON, "json", "", "write the full run report to this path")
}

func runRun(cmd *cobra.Command, args []string) error {
	rt, err := bootstrap(runContract, runContractID, runSources)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	report, err := rt.runner.Run(ctx, args[0])
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	renderReport(report)

	if runJSON != "" {
		if err := writeReportJSON(report, runJSON); err != nil {
			return err
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "Report written: %s\n", runJSON)
		}
	}
	return nil
}

func renderReport(report *model.RunReport) {
	fmt.Printf("run %s  contract %s (%s)\n", report.RunID, report.ContractID, short(report.ContractHash))
	for _, phase := range report.Phases {
		fmt.Printf("  phase %d: %d ok, %d failed (%v)\n",
			phase.Phase, phase.Succeeded, phase.Failed, phase.Elapsed.Round(time.Millisecond))
	}
	fmt.Printf("  records: %d  groups: %d  entities: %d\n",
		report.Records, report.Groups, len(report.Entities))
	for _, slug := range report.Entities {
		fmt.Printf("    %s\n", slug)
	}
	c := report.Counts
	if c.Source+c.Rule+c.Extraction+c.Persistence > 0 {
		fmt.Printf("  degraded: source=%d rule=%d extraction=%d persistence=%d\n",
			c.Source, c.Rule, c.Extraction, c.Persistence)
	}
	for _, failure := range report.Failures {
		fmt.Printf("  failed entity %q: %s\n", failure.Name, failure.Error)
	}
}

func writeReportJSON(report *model.RunReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
