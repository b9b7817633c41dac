// Copyright (c) 2026 The fourprobe developers. All rights reserved.
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gotmc/fourprobe/lib/chart"
	"github.com/gotmc/fourprobe/lib/config"
	"github.com/gotmc/fourprobe/lib/connutil"
	"github.com/gotmc/fourprobe/lib/control"
	"github.com/gotmc/fourprobe/lib/datalog"
	"github.com/gotmc/fourprobe/lib/instrument"
	"github.com/gotmc/fourprobe/lib/measure"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Measure resistance vs. temperature until stopped",
	Long: `Run measures a forward/reverse resistance pair and the temperature
every --wait, appending a row to the data file each cycle.

Type q and Enter (or press Ctrl-C) to stop, p and Enter to save a plot.
Settings not given as flags, in the config file or in FOURPROBE_*
variables are asked for interactively.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	busFlags(runCmd.Flags())
	sessionFlags(runCmd.Flags())
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) (err error) {
	cfg, log, closeLog, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeLog(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	prompter := config.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
	prompter.Guide()
	sess := cfg.Session
	if !sess.Complete() {
		if err := prompter.Fill(&sess); err != nil {
			return fmt.Errorf("reading settings: %w", err)
		}
	}
	sess.File = datalog.CSVName(sess.File)
	if err := sess.Validate(); err != nil {
		return err
	}
	policy, err := sess.Policy()
	if err != nil {
		return err
	}
	if sess.AboveHighCurrent() {
		log.Warn().
			Str("current", sess.Current).
			Float64("limit_a", config.HighCurrent).
			Msg("source current above the recommended limit")
	}

	conns, cleanup, err := connutil.Setup(cfg.Bus, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cleanup(); cerr != nil {
			log.Error().Err(cerr).Msg("cleanup failed")
		}
	}()

	return measureLoop(cmd.Context(), sess, policy, conns, prompter.Reader(), log)
}

// newStrategy builds the measurement arrangement the session asks for.
func newStrategy(sess config.Session, c *connutil.Conns, clk clock.Clock) (measure.Strategy, error) {
	cur, err := sess.CurrentSetting()
	if err != nil {
		return nil, err
	}
	smu := instrument.NewK2400(c.Sourcemeter)
	therm := instrument.NewThermometer(c.Thermometer)
	switch sess.Variant {
	case config.FourWire:
		return &measure.FourWire{
			SMU:     smu,
			Therm:   therm,
			Current: cur,
			Settle:  sess.Settle,
			Clock:   clk,
		}, nil
	case config.SourceCurrent:
		return &measure.SourceCurrent{
			SMU:           smu,
			NVM:           instrument.NewK2182(c.Nanovoltmeter),
			Therm:         therm,
			Current:       cur,
			Channel:       sess.Channel,
			Settle:        sess.Settle,
			PolarityDelay: sess.PolarityDelay,
			Clock:         clk,
		}, nil
	}
	return nil, fmt.Errorf("unknown variant %q", sess.Variant)
}

// measureLoop sets the instruments up, creates the data file and runs the
// control loop with console and OS signals wired in.
func measureLoop(ctx context.Context, sess config.Session, policy control.FailurePolicy,
	c *connutil.Conns, console io.Reader, log zerolog.Logger) error {
	clk := clock.New()
	strat, err := newStrategy(sess, c, clk)
	if err != nil {
		return err
	}
	if err := strat.Setup(); err != nil {
		return fmt.Errorf("%s setup: %w", strat.Name(), err)
	}
	df, err := datalog.Create(sess.File, strat.Schema())
	if err != nil {
		return err
	}
	log.Info().Str("file", df.Path()).Str("current", sess.Current).Str("variant", strat.Name()).Msg("data file created")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	signals := make(chan control.Signal, 4)
	go func() {
		if err := control.Keyboard(ctx, console, signals); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("console input closed")
		}
	}()
	go control.Notify(ctx, cancel, signals)

	loop := &control.Loop{
		Strategy: strat,
		Data:     df,
		Plot: func() error {
			image, err := chart.Plot(df.Path(), chart.DefaultOptions(df.Schema()))
			if err != nil {
				return err
			}
			log.Info().Str("image", image).Msg("plot saved")
			return nil
		},
		Wait:   sess.Wait,
		Policy: policy,
		Clock:  clk,
		Log:    log,
	}
	sum, err := loop.Run(ctx, signals)
	log.Info().
		Int("cycles", sum.Cycles).
		Int("rows", sum.Rows).
		Int("zero_filled", sum.ZeroFilled).
		Int("skipped", sum.Skipped).
		Int("plots", sum.Plots).
		Int("plot_errors", sum.PlotErrors).
		Str("file", df.Path()).
		Msg("run finished")
	return err
}
