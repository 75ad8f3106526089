package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/lehigh-university-libraries/portfolio/internal/alttext"
	"github.com/lehigh-university-libraries/portfolio/internal/catalog"
	"github.com/lehigh-university-libraries/portfolio/internal/export"
	"github.com/lehigh-university-libraries/portfolio/internal/gallery"
	"github.com/lehigh-university-libraries/portfolio/internal/images"
	"github.com/lehigh-university-libraries/portfolio/internal/lazyimage"
	"github.com/lehigh-university-libraries/portfolio/internal/models"
	"github.com/spf13/cobra"
)

func newImagesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images",
		Short: "Manage the persisted image catalog",
		Long: `Inspect and edit the image catalog the server persists.

Categories are ` + categoryList() + `. Use "all" to match every category.`,
	}

	cmd.AddCommand(newImagesListCmd(opts))
	cmd.AddCommand(newImagesUploadCmd(opts))
	cmd.AddCommand(newImagesRemoveCmd(opts))
	cmd.AddCommand(newImagesExportCmd(opts))
	cmd.AddCommand(newImagesImportCmd(opts))
	cmd.AddCommand(newImagesDescribeCmd(opts))
	cmd.AddCommand(newImagesVerifyCmd(opts))

	return cmd
}

func categoryList() string {
	names := make([]string, 0, len(models.Categories()))
	for _, c := range models.Categories() {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}

func newImagesListCmd(opts *rootOptions) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog images",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := openCatalog(opts.cfg)
			if err != nil {
				return err
			}
			records, err := manager.ListByCategory(category)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tTYPE\tSIZE\tUPLOADED")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", r.ID, r.Name, r.Category, r.Type, r.Size, r.UploadedAt)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", models.FilterAll, "Category filter")

	return cmd
}

func newImagesUploadCmd(opts *rootOptions) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Add image files to the catalog",
		Example: `  # Add two project screenshots
  portfolio images upload -c projects shot1.png shot2.webp`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := openCatalog(opts.cfg)
			if err != nil {
				return err
			}

			blobs := make([]catalog.Blob, 0, len(args))
			for _, path := range args {
				blob, err := catalog.NewFileBlob(path)
				if err != nil {
					return err
				}
				blobs = append(blobs, blob)
			}

			report, err := manager.Upload(cmd.Context(), blobs, category)
			if report == nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range report.Added {
				fmt.Fprintf(out, "added %s %s (%s)\n", r.ID, r.Name, r.Category)
			}
			for _, name := range report.Skipped {
				fmt.Fprintf(out, "skipped %s: not an image\n", name)
			}
			for _, f := range report.Failed {
				fmt.Fprintf(out, "failed %s\n", f.Error())
			}
			if err != nil {
				return err
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d file(s) could not be read", len(report.Failed))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", models.FilterAll, "Category for the new images (all maps to other)")

	return cmd
}

func newImagesRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID...",
		Short: "Remove images from the catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := openCatalog(opts.cfg)
			if err != nil {
				return err
			}
			for _, id := range args {
				removed, err := manager.Remove(id)
				if err != nil {
					return err
				}
				if removed {
					fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", id)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "no image with id %s\n", id)
				}
			}
			return nil
		},
	}
}

func newImagesExportCmd(opts *rootOptions) *cobra.Command {
	var (
		category string
		format   string
		output   string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a snapshot of the catalog",
		Example: `  # Export gallery images as parquet
  portfolio images export -c gallery -f parquet -o gallery.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := openCatalog(opts.cfg)
			if err != nil {
				return err
			}
			records, err := manager.ListByCategory(category)
			if err != nil {
				return err
			}

			if output == "" {
				return export.Write(cmd.OutOrStdout(), format, category, records)
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			if err := export.Write(f, format, category, records); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to close %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d image(s) to %s\n", len(records), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", models.FilterAll, "Category filter")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: "+strings.Join(export.Formats, ", "))
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")

	return cmd
}

func newImagesImportCmd(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Restore images from an exported snapshot",
		Long: `Adds the records of a snapshot written by "images export" to the catalog,
keeping their ids. Records already in the catalog are left untouched.
The format defaults to the file extension.`,
		Example: `  # Restore a parquet backup
  portfolio images import gallery.parquet`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if format == "" {
				format = formatFromPath(path)
			}

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open snapshot: %w", err)
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return fmt.Errorf("failed to stat snapshot: %w", err)
			}
			records, err := export.Read(f, info.Size(), format)
			if err != nil {
				return err
			}

			manager, err := openCatalog(opts.cfg)
			if err != nil {
				return err
			}
			report, err := manager.Import(records)
			if report == nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range report.Added {
				fmt.Fprintf(out, "imported %s %s (%s)\n", r.ID, r.Name, r.Category)
			}
			for _, id := range report.Existing {
				fmt.Fprintf(out, "exists %s\n", id)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Snapshot format: "+strings.Join(export.Formats, ", "))

	return cmd
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".parquet":
		return "parquet"
	default:
		return "json"
	}
}

func newImagesDescribeCmd(opts *rootOptions) *cobra.Command {
	var (
		provider string
		model    string
	)

	cmd := &cobra.Command{
		Use:   "describe ID",
		Short: "Suggest alt text for an image using a vision model",
		Long: `Sends the stored image to a vision-capable LLM and prints a suggested
alt text. Providers: ` + strings.Join(alttext.Providers, ", ") + `.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := openCatalog(opts.cfg)
			if err != nil {
				return err
			}
			record, err := manager.Get(args[0])
			if err != nil {
				return err
			}

			if provider == "" {
				provider = opts.cfg.AltText.Provider
			}
			if model == "" {
				model = opts.cfg.AltText.Model
			}
			if model == "" {
				model = alttext.DefaultModel(provider)
			}

			p, err := alttext.New(provider)
			if err != nil {
				return err
			}
			suggestion, err := alttext.Suggest(cmd.Context(), p, record, model)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), suggestion)
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "LLM provider (default ALTTEXT_PROVIDER or ollama)")
	cmd.Flags().StringVar(&model, "model", "", "Model name (default depends on provider)")

	return cmd
}

func newImagesVerifyCmd(opts *rootOptions) *cobra.Command {
	var (
		category string
		baseURL  string
		verify   gallery.VerifyOptions
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Render the gallery with lazy loaders and check every image loads",
		Long: `Lays the catalog out as a gallery grid, attaches a deferred loader to
each tile, scrolls the simulated viewport to the bottom, and reports the
final state of every loader.

With --base-url the loaders fetch from a running server's raw endpoint,
otherwise they decode the embedded image data.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := openCatalog(opts.cfg)
			if err != nil {
				return err
			}
			records, err := manager.ListByCategory(category)
			if err != nil {
				return err
			}

			verify.BaseURL = baseURL
			verify.RootMargin = lazyimage.Margin(opts.cfg.Loader.RootMargin)
			verify.Threshold = opts.cfg.Loader.Threshold
			verify.LocalHosts = opts.cfg.Loader.LocalHosts

			outcomes, err := gallery.Verify(cmd.Context(), records, images.NewFetcher(), verify)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPRIORITY\tSTATE\tERROR")
			for _, o := range outcomes {
				msg := ""
				if o.Err != nil {
					msg = o.Err.Error()
				}
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", o.ID, o.Name, o.Priority, o.State, msg)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			summary := gallery.Summary(outcomes)
			parts := make([]string, 0, len(summary))
			for state, n := range summary {
				parts = append(parts, fmt.Sprintf("%s=%d", state, n))
			}
			sort.Strings(parts)
			fmt.Fprintf(cmd.OutOrStdout(), "%d image(s): %s\n", len(outcomes), strings.Join(parts, " "))

			if err := gallery.Failed(outcomes); err != nil {
				return errors.Join(errors.New("gallery verification failed"), err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", models.FilterAll, "Category filter")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Fetch through a running server, e.g. http://localhost:8888")
	cmd.Flags().IntVar(&verify.Columns, "columns", 3, "Gallery columns")
	cmd.Flags().IntVar(&verify.PriorityRows, "priority-rows", 1, "Rows loaded immediately as above-the-fold content")
	cmd.Flags().Float64Var(&verify.ViewportHeight, "viewport-height", 720, "Simulated viewport height in pixels")

	return cmd
}
