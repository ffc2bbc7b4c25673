package main

import (
	"context"
	"fmt"
	"io"

	"github.com/Sternrassler/storefront/internal/config"
	"github.com/Sternrassler/storefront/pkg/listing"
	"github.com/spf13/cobra"
)

func newCategoriesCmd(root *rootOptions) *cobra.Command {
	var hideEmpty bool

	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List the categories offered by the listing API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("hide-empty") {
				cfg.Listing.HideEmptyCategories = hideEmpty
			}
			return runCategories(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&hideEmpty, "hide-empty", false, "skip categories without products")

	return cmd
}

// runCategories prints one "id<TAB>name" line per category shown in the filter bar.
func runCategories(ctx context.Context, cfg *config.Config, out io.Writer) error {
	client, redisClient, err := newCatalogClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()
	if redisClient != nil {
		defer redisClient.Close()
	}

	categories, err := client.ListCategories(ctx)
	if err != nil {
		return err
	}

	chips := listing.Chips(ctx, categories, client, listing.ChipOptions{
		Current:   listing.DefaultQuery(),
		HideEmpty: cfg.Listing.HideEmptyCategories,
	})

	for _, chip := range chips {
		c, ok := listing.FindCategory(categories, chip.Name)
		if !ok {
			continue
		}
		if _, err := fmt.Fprintf(out, "%d\t%s\n", c.ID, c.Name); err != nil {
			return err
		}
	}
	return nil
}
