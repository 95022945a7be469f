package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var (
	planContract   string
	planContractID string
	planSources    string
)

// planCmd represents the plan command
var planCmd = &cobra.Command{
	Use:   "plan <query>",
	Short: "Show the execution plan for a query without fetching",
	Long: `Plan runs feature extraction and routing only: it prints which
sources would be fetched and in which phases, without touching the network
or the store.

Example:
  lens plan "padel courts in edinburgh" --contract sports.yaml --sources sources.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().StringVar(&planContract, "contract", "contract.yaml", "contract file path")
	planCmd.Flags().StringVar(&planContractID, "contract-id", "", "contract id (default: contract file name)")
	planCmd.Flags().StringVar(&planSources, "sources", "sources.yaml", "source registry path")
}

func runPlan(cmd *cobra.Command, args []string) error {
	rt, err := bootstrap(planContract, planContractID, planSources)
	if err != nil {
		return err
	}
	defer rt.close()

	p, f, err := rt.runner.Plan(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("query: %q\n", f.Query)
	fmt.Printf("geo intent: %v", f.HasGeoIntent)
	if len(f.GeoTerms) > 0 {
		fmt.Printf(" (%s)", strings.Join(f.GeoTerms, ", "))
	}
	fmt.Println()
	if len(f.KeywordHits) > 0 {
		lists := make([]string, 0, len(f.KeywordHits))
		for name := range f.KeywordHits {
			lists = append(lists, name)
		}
		sort.Strings(lists)
		for _, name := range lists {
			fmt.Printf("keywords[%s]: %s\n", name, strings.Join(f.KeywordHits[name], ", "))
		}
	}
	fmt.Println()
	fmt.Print(p.Render())
	return nil
}
