package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/warden/pkg/warden/output"
	"github.com/jamesainslie/warden/pkg/warden/policy"
	"github.com/jamesainslie/warden/pkg/warden/probe"
)

var tuneFormat string

var tuneCmd = &cobra.Command{
	Use:   "tune",
	Short: "Detect resources and print the derived worker configuration",
	Long: `Tune probes available memory and CPU cores, buckets the result into a
memory tier, and prints the worker configuration for that tier. Detection
failures fall back to conservative defaults rather than erroring.

The same inputs always produce the same configuration.`,
	RunE: runTune,
}

func init() {
	tuneCmd.Flags().StringVarP(&tuneFormat, "output", "o", "pretty",
		"output format: "+formatList())
	rootCmd.AddCommand(tuneCmd)
}

func formatList() string {
	names := output.Available()
	list := ""
	for i, name := range names {
		if i > 0 {
			list += ", "
		}
		list += name
	}
	return list
}

func runTune(cmd *cobra.Command, args []string) error {
	formatter, err := output.Get(tuneFormat)
	if err != nil {
		return setupErr(err)
	}

	snap := probe.Probe(probe.System())
	pol := cfg.ToPolicy()
	report := &output.Report{
		Snapshot: snap,
		Config:   policy.Calculate(snap, pol),
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, report); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}
	cmd.OutOrStdout().Write(buf.Bytes())
	return nil
}
