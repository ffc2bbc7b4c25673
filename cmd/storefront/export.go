package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Sternrassler/storefront/internal/config"
	"github.com/Sternrassler/storefront/pkg/catalog"
	"github.com/Sternrassler/storefront/pkg/listing"
	"github.com/Sternrassler/storefront/pkg/pagination"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Export formats.
const (
	FormatJSON   = "json"   // one indented array
	FormatNDJSON = "ndjson" // one product per line
)

type exportOptions struct {
	category string
	format   string
	output   string
}

func newExportCmd(root *rootOptions) *cobra.Command {
	opts := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every product of the catalog or one category",
		Long: `export walks the whole product collection in parallel offset/limit windows
and writes the products in collection order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.format != FormatJSON && opts.format != FormatNDJSON {
				return fmt.Errorf("unknown format %q (want %s or %s)", opts.format, FormatJSON, FormatNDJSON)
			}

			cfg, err := root.load()
			if err != nil {
				return err
			}

			items, err := runExport(cmd.Context(), cfg, opts)
			if err != nil {
				return err
			}

			if opts.output == "" || opts.output == "-" {
				return writeItems(cmd.OutOrStdout(), opts.format, items)
			}
			return writeFile(opts.output, opts.format, items)
		},
	}

	cmd.Flags().StringVar(&opts.category, "category", "", "export one category by name")
	cmd.Flags().StringVar(&opts.format, "format", FormatJSON, "output format: json or ndjson")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "-", "output file, - for stdout")

	return cmd
}

// runExport collects every product of the selected category in collection order.
func runExport(ctx context.Context, cfg *config.Config, opts *exportOptions) ([]catalog.Item, error) {
	client, redisClient, err := newCatalogClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	if redisClient != nil {
		defer redisClient.Close()
	}

	categoryID := 0
	if opts.category != "" && !listing.DefaultQuery().WithCategory(opts.category).IsAll() {
		categories, err := client.ListCategories(ctx)
		if err != nil {
			return nil, err
		}
		c, ok := listing.FindCategory(categories, opts.category)
		if !ok {
			return nil, fmt.Errorf("%w: %q", listing.ErrUnknownCategory, opts.category)
		}
		categoryID = c.ID
	}

	start := time.Now()
	fetcher := pagination.NewBatchFetcher(pagination.Config{
		MaxConcurrency: cfg.Export.Concurrency,
		PageSize:       cfg.Export.PageSize,
	})

	items, err := fetcher.FetchAll(ctx, client.Products(categoryID))
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	log.Info().
		Str("category", opts.category).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Export complete")
	return items, nil
}

// writeFile writes items to a temporary file next to path and renames it into
// place, so path only ever holds a complete export.
func writeFile(path, format string, items []catalog.Item) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	if err := writeItems(f, format, items); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	return os.Rename(f.Name(), path)
}

func writeItems(out io.Writer, format string, items []catalog.Item) error {
	if items == nil {
		items = []catalog.Item{}
	}

	enc := json.NewEncoder(out)
	if format == FormatNDJSON {
		for _, item := range items {
			if err := enc.Encode(item); err != nil {
				return err
			}
		}
		return nil
	}

	enc.SetIndent("", "  ")
	return enc.Encode(items)
}
