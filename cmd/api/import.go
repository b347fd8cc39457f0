package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/sheet-tracker/backend/internal/importer"
	"github.com/sheet-tracker/backend/internal/infrastructure"
	"github.com/sheet-tracker/backend/internal/repository"
	"github.com/sheet-tracker/backend/internal/service"
)

func newImportCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <file.csv|file.json>",
		Short: "Validate a problem file and add it to the catalog",
		Long: `Runs a .csv or .json file through the same row validation as the admin
upload. Every row error is printed; any error rejects the whole file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			return runImport(cmd, a, args[0], dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and preview without writing")
	return cmd
}

func runImport(cmd *cobra.Command, a *app, path string, dryRun bool) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	validator := importer.NewValidator(a.config.Catalog.SheetTypes)
	result, err := validator.Parse(filepath.Base(path), "", file)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printPreview(out, result)
	if !result.OK() {
		return errors.New("import rejected: fix the rows above and retry")
	}
	if dryRun {
		fmt.Fprintln(out, "Dry run: nothing written")
		return nil
	}

	if err := a.database.AutoMigrate(); err != nil {
		return err
	}
	metrics, err := infrastructure.NewMetrics(metricnoop.NewMeterProvider().Meter("import"))
	if err != nil {
		return err
	}
	problemRepo := repository.NewProblemRepository(a.database.DB)
	if a.config.Redis.Enabled {
		// keep a running server's cached catalog in step with the import
		redisClient, err := infrastructure.NewRedisClient(cmd.Context(), &a.config.Redis, a.logger)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		problemRepo = repository.NewCachedProblemRepository(problemRepo, redisClient, a.config.Redis.CacheTTL, a.logger)
	}
	catalog := service.NewCatalogService(
		problemRepo,
		a.sectionFallback(),
		tracenoop.NewTracerProvider().Tracer("import"),
		a.logger,
		metrics,
	)

	n, err := catalog.Import(cmd.Context(), result)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Imported %d problems\n", n)
	return nil
}

func printPreview(out io.Writer, result importer.Result) {
	fmt.Fprintf(out, "%d valid rows, %d errors\n", len(result.Data), len(result.Errors))
	for _, e := range result.Errors {
		fmt.Fprintf(out, "  ✗ %s\n", e)
	}
	for _, in := range result.Data {
		fmt.Fprintf(out, "  ✓ [%s] %s / %s (%s)\n", in.SheetType, in.Topic, in.Title, in.Difficulty)
	}
}
