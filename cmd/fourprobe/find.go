// Copyright (c) 2026 The fourprobe developers. All rights reserved.
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gotmc/fourprobe/lib/find"
)

var findCmd = &cobra.Command{
	Use:   "find",
	Short: "List USB serial devices, marking GPIB controllers",
	Args:  cobra.NoArgs,
	RunE:  runFind,
}

func init() {
	rootCmd.AddCommand(findCmd)
}

func runFind(cmd *cobra.Command, args []string) error {
	ttys, err := find.AllUsbTtys()
	if err != nil {
		return err
	}
	if len(ttys) == 0 {
		return fmt.Errorf("no usb ttys found")
	}
	controller := find.AnyFilter(find.PrologixFilter, find.ArduinoFilter)
	for i := range ttys {
		mark := " "
		if controller(&ttys[i]) {
			mark = "*"
		}
		t := ttys[i]
		fmt.Fprintf(cmd.OutOrStdout(), "%s /dev/%s\t%s/%s %s %s serial %s\n",
			mark, t.Dev, t.IDv, t.IDp, t.Mfg, t.Prod, t.Serial)
	}
	return nil
}
