package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lens/internal/store"
)

var (
	entitiesStorePath string
	entitiesJSON      bool
)

// entitiesCmd represents the entities command
var entitiesCmd = &cobra.Command{
	Use:   "entities [slug]",
	Short: "List stored entities or show one by slug",
	Long: `Without arguments, entities lists every stored entity in slug order.
With a slug argument it prints that entity's full merged record as JSON.

Example:
  lens entities
  lens entities meadows-tennis-courts-edinburgh`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEntities,
}

func init() {
	rootCmd.AddCommand(entitiesCmd)

	entitiesCmd.Flags().StringVar(&entitiesStorePath, "store", "", "entity store path (default: storage.path from config)")
	entitiesCmd.Flags().BoolVar(&entitiesJSON, "json", false, "print the listing as JSON")
}

func runEntities(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	path := entitiesStorePath
	if path == "" {
		path = cfg.Storage.Path
	}

	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if len(args) == 1 {
		entity, err := st.Get(ctx, args[0])
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no entity stored under slug %q", args[0])
		}
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(entity, "", "  ")
		if err != nil {
			return fmt.Errorf("encode entity: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	entities, err := st.List(ctx)
	if err != nil {
		return err
	}
	if entitiesJSON {
		data, err := json.MarshalIndent(entities, "", "  ")
		if err != nil {
			return fmt.Errorf("encode entities: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}
	for _, e := range entities {
		fmt.Printf("%s  class=%s  sources=%s  updated=%s\n",
			e.Slug,
			e.Merged.Class,
			strings.Join(e.Merged.Provenance.ContributingSources, ","),
			e.UpdatedAt.Format(time.RFC3339))
	}
	if len(entities) == 0 {
		fmt.Println("no entities stored")
	}
	return nil
}
