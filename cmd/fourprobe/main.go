// Copyright (c) 2026 The fourprobe developers. All rights reserved.
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Command fourprobe logs four-probe resistance against temperature from a
// bench of GPIB instruments behind a Prologix GPIB-USB controller.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
