package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"lens/internal/contract"
	"lens/internal/model"
	"lens/internal/source"
)

var (
	contractFile    string
	contractIDFlag  string
	contractSources string
)

// contractCmd represents the contract command
var contractCmd = &cobra.Command{
	Use:   "contract",
	Short: "Validate and inspect contract files",
	Long: `A contract carries every piece of domain interpretation: the
vocabulary, routing rules, mapping rules, module definitions, and the
canonical value registry. Loading runs seven validation gates; any failure
rejects the contract before a single fetch happens.`,
}

var contractValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run all validation gates against a contract",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := source.LoadRegistry(contractSources)
		if err != nil {
			return err
		}
		id := contractIDFlag
		if id == "" {
			id = contractIDFromPath(contractFile)
		}
		c, err := contract.LoadFile(contractFile, id, registry.IDs())
		if err != nil {
			var gateErr *contract.GateError
			if errors.As(err, &gateErr) {
				return fmt.Errorf("contract rejected at gate %d (%s): %w",
					gateErr.Gate, gateErr.Ref, gateErr.Err)
			}
			return err
		}
		fmt.Printf("contract %s valid (hash %s)\n", c.ID, short(c.Hash))
		return nil
	},
}

var contractShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Summarize a validated contract",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := source.LoadRegistry(contractSources)
		if err != nil {
			return err
		}
		id := contractIDFlag
		if id == "" {
			id = contractIDFromPath(contractFile)
		}
		c, err := contract.LoadFile(contractFile, id, registry.IDs())
		if err != nil {
			return err
		}

		fmt.Printf("contract: %s\nhash: %s\n\n", c.ID, c.Hash)
		fmt.Printf("routing rules:   %d\n", len(c.Doc.RoutingRules))
		fmt.Printf("mapping rules:   %d\n", len(c.Doc.MappingRules))
		fmt.Printf("modules:         %d\n", len(c.Doc.ModuleDefinitions))
		fmt.Printf("registry values: %d\n\n", len(c.Doc.CanonicalRegistry))

		byDimension := make(map[string][]string)
		for _, entry := range c.Doc.CanonicalRegistry {
			byDimension[entry.Dimension] = append(byDimension[entry.Dimension], entry.Value)
		}
		for _, dim := range model.DimensionNames() {
			values := byDimension[dim]
			sort.Strings(values)
			fmt.Printf("%s (%d):\n", dim, len(values))
			for _, v := range values {
				fmt.Printf("  %s\n", v)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(contractCmd)
	contractCmd.AddCommand(contractValidateCmd)
	contractCmd.AddCommand(contractShowCmd)

	contractCmd.PersistentFlags().StringVar(&contractFile, "contract", "contract.yaml", "contract file path")
	contractCmd.PersistentFlags().StringVar(&contractIDFlag, "contract-id", "", "contract id (default: contract file name)")
	contractCmd.PersistentFlags().StringVar(&contractSources, "sources", "sources.yaml", "source registry path")
}
