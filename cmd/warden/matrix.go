package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/warden/pkg/warden/config"
	"github.com/jamesainslie/warden/pkg/warden/matrix"
)

var (
	matrixDefinition string
	matrixOutputDir  string
	matrixImage      string
	matrixParallel   int
	matrixTiers      []int
	matrixScenarios  []string
	matrixMock       bool
	matrixNoHistory  bool
)

var matrixCmd = &cobra.Command{
	Use:   "matrix",
	Short: "Run the scenario matrix across memory tiers",
	Long: `Matrix provisions one container per cell of the (memory tier, scenario,
config mode) cross product, runs the scenario inside it, and writes a CSV
of per-cell results. Baseline cells run the stock configuration; computed
cells run the tier-derived one.

A failing cell is recorded and the run continues. Exit status is 1 when
any cell failed, 2 when the run could not be set up at all.`,
	RunE: runMatrix,
}

func init() {
	matrixCmd.Flags().StringVar(&matrixDefinition, "definition", "", "matrix definition YAML (default: built-in full matrix)")
	matrixCmd.Flags().StringVar(&matrixOutputDir, "output-dir", "", "directory for the results CSV")
	matrixCmd.Flags().StringVar(&matrixImage, "image", "", "worker container image")
	matrixCmd.Flags().IntVar(&matrixParallel, "parallel", 0, "max cells in flight")
	matrixCmd.Flags().IntSliceVar(&matrixTiers, "tiers", nil, "memory tiers in MB (overrides definition)")
	matrixCmd.Flags().StringSliceVar(&matrixScenarios, "scenarios", nil, "scenarios to run (overrides definition)")
	matrixCmd.Flags().BoolVar(&matrixMock, "mock", false, "run against the in-memory provisioner instead of Docker")
	matrixCmd.Flags().BoolVar(&matrixNoHistory, "no-history", false, "skip persisting the run")
	rootCmd.AddCommand(matrixCmd)
}

func runMatrix(cmd *cobra.Command, args []string) error {
	def, err := loadMatrixDefinition()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var prov matrix.Provisioner
	if matrixMock {
		prov = matrix.NewMockProvisioner()
	} else {
		docker, err := matrix.NewDockerProvisioner(ctx, def.Image)
		if err != nil {
			return setupErr(err)
		}
		defer docker.Close()
		prov = docker
	}

	harness := matrix.NewHarness(def, prov, cfg.ToPolicy())
	results, summary, runErr := harness.Run(ctx)

	outDir := matrixOutputDir
	if outDir == "" {
		outDir = cfg.Matrix.OutputDir
	}
	csvPath := filepath.Join(outDir, fmt.Sprintf("matrix-%s.csv", time.Now().Format("20060102-150405")))
	if err := matrix.WriteCSVFile(csvPath, results); err != nil {
		return err
	}

	if !matrixNoHistory {
		if err := persistRun(results, summary); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not persist run: %v\n", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d cells: %d passed, %d failed, %d skipped (%.0f%% pass rate)\n",
		summary.Total, summary.Passed, summary.Failed, summary.Skipped, summary.PassRate()*100)
	fmt.Fprintf(cmd.OutOrStdout(), "results: %s\n", csvPath)

	return runErr
}

// loadMatrixDefinition resolves the definition from flags and config, flags
// winning over the file.
func loadMatrixDefinition() (matrix.Definition, error) {
	path := matrixDefinition
	if path == "" {
		path = cfg.Matrix.DefinitionPath
	}

	def := matrix.DefaultDefinition()
	if path != "" {
		loaded, err := matrix.LoadDefinition(path)
		if err != nil {
			return def, err
		}
		def = loaded
	}

	if len(matrixTiers) > 0 {
		def.TiersMB = matrixTiers
	}
	if len(matrixScenarios) > 0 {
		def.Scenarios = def.Scenarios[:0]
		for _, sc := range matrixScenarios {
			def.Scenarios = append(def.Scenarios, matrix.Scenario(sc))
		}
	}
	if matrixParallel > 0 {
		def.Parallel = matrixParallel
	} else if cfg.Matrix.Parallel > 0 && matrixDefinition == "" {
		def.Parallel = cfg.Matrix.Parallel
	}
	if matrixImage != "" {
		def.Image = matrixImage
	} else if cfg.Matrix.Image != "" && def.Image == "" {
		def.Image = cfg.Matrix.Image
	}

	if err := def.Validate(); err != nil {
		return def, err
	}
	return def, nil
}

func persistRun(results []matrix.Result, summary matrix.Summary) error {
	if err := config.EnsureDataDir(); err != nil {
		return err
	}
	store, err := matrix.OpenStore(config.DefaultHistoryPath())
	if err != nil {
		return err
	}
	defer store.Close()

	_, err = store.SaveRun(results, summary)
	return err
}
