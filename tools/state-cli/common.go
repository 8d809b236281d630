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
	"runtime/pprof"

	"github.com/lihao628/massa/database"
	"github.com/urfave/cli/v2"
)

var (
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "a YAML file with store parameters",
	}
	backendFlag = cli.StringFlag{
		Name:  "backend",
		Usage: "the storage engine, one of leveldb or pebble",
	}
	cpuProfilingFlag = cli.StringFlag{
		Name:  "cpu-profile",
		Usage: "enable the recording of a CPU profile",
	}
	logFileFlag = cli.StringFlag{
		Name:  "log-file",
		Usage: "write log output to the given file, rotated by size",
	}
)

// getConfig derives the parameters of the store in the given directory from
// the configuration file and the command line flags.
func getConfig(ctx *cli.Context, dir string) (database.Config, error) {
	config := database.DefaultConfig(dir)
	if file := ctx.String(configFileFlag.Name); file != "" {
		loaded, err := database.LoadConfig(file)
		if err != nil {
			return database.Config{}, err
		}
		config = loaded
		config.Path = dir
	}
	if backend := ctx.String(backendFlag.Name); backend != "" {
		config.Backend = database.BackendType(backend)
	}
	return config, config.Validate()
}

// open opens the slot-versioned store in the given directory.
func open(ctx *cli.Context, dir string) (*database.SlotStore, error) {
	config, err := getConfig(ctx, dir)
	if err != nil {
		return nil, err
	}
	log.Printf("Opening %v state in %v ...", config.Backend, dir)
	return database.OpenSlotStore(config)
}

// closeStore closes the store, reporting a failure through err unless an
// earlier failure is pending.
func closeStore(store *database.SlotStore, dir string, err *error) {
	log.Printf("Closing state in %v ...", dir)
	if closeError := store.Close(); closeError != nil {
		if *err == nil {
			*err = closeError
		} else {
			log.Printf("Failure closing DB: %v", closeError)
		}
	}
}

func StartCPUProfile(profileName string) error {
	f, err := os.Create(profileName)
	if err != nil {
		return fmt.Errorf("could not create CPU profile: %s", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		return fmt.Errorf("could not start CPU profile: %s", err)
	}
	return nil
}

func StopCPUProfile() {
	pprof.StopCPUProfile()
}
