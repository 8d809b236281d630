// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Run with `go run ./tools/state-cli`

func main() {
	app := &cli.App{
		Name:      "State Store Toolbox",
		HelpName:  "state",
		Usage:     "A set of utilities to inspect and maintain state store directories",
		Copyright: "(c) 2024 Fantom Foundation",
		Flags: []cli.Flag{
			&configFileFlag,
			&backendFlag,
			&logFileFlag,
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			&getInfoCommand,
			&verifyCommand,
			&backupCommand,
			&syncCommand,
			&dumpCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(ctx *cli.Context) error {
	if file := ctx.String(logFileFlag.Name); file != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   file,
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}
	return nil
}
