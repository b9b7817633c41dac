// Copyright (c) 2026 The fourprobe developers. All rights reserved.
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gotmc/fourprobe/lib/chart"
	"github.com/gotmc/fourprobe/lib/measure"
)

var plotCmd = &cobra.Command{
	Use:   "plot FILE.csv",
	Short: "Plot average resistance vs. temperature from a data file",
	Long: `Plot renders a data file written by run as FILE.png next to it. The
columns are picked from the file's header; --x and --y override them.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlot,
}

func init() {
	plotCmd.Flags().String("x", "", "x column name")
	plotCmd.Flags().String("y", "", "y column name")
	rootCmd.AddCommand(plotCmd)
}

func runPlot(cmd *cobra.Command, args []string) error {
	path := args[0]
	header, err := chart.Header(path)
	if err != nil {
		return err
	}
	x, _ := cmd.Flags().GetString("x")
	y, _ := cmd.Flags().GetString("y")

	schema, ok := chart.Detect(header)
	if !ok && (x == "" || y == "") {
		return fmt.Errorf("%s: unknown column layout, set --x and --y", path)
	}
	if !ok {
		schema = measure.Schema{Temperature: x, Resistance: y}
	}
	opts := chart.DefaultOptions(schema)
	if x != "" {
		opts.X = x
	}
	if y != "" {
		opts.Y = y
	}
	image, err := chart.Plot(path, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), image)
	return nil
}
