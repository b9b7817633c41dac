// Copyright (c) 2026 The fourprobe developers. All rights reserved.
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package main

import (
	"context"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gotmc/fourprobe/lib/config"
	"github.com/gotmc/fourprobe/lib/logging"
)

const version = "0.1.0"

var (
	cfgFile string
	v       = viper.New()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fourprobe",
	Short: "Four-probe resistance vs. temperature logger",
	Long: `fourprobe measures sample resistance with current reversal while the
temperature changes, logging every cycle to a CSV file. It talks to a
thermometer, a Keithley 2400 sourcemeter and (optionally) a Keithley 2182
nanovoltmeter through a Prologix GPIB-USB controller.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command line. It is called by main.main().
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-file", "", "also append logs to this file")
	pf.Bool("log-pretty", true, "human-readable console logs instead of JSON")
	mustBind("log.level", pf.Lookup("log-level"))
	mustBind("log.file", pf.Lookup("log-file"))
	mustBind("log.pretty", pf.Lookup("log-pretty"))

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// loadConfig reads defaults, the config file, the environment and the
// bound flags, and builds the logger.
func loadConfig(w io.Writer) (*config.Config, zerolog.Logger, func() error, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	log, closeLog, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		File:   cfg.Log.File,
	}, w)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	return cfg, log, closeLog, nil
}
