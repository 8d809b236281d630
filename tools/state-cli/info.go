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

	"github.com/lihao628/massa/backend"
	"github.com/lihao628/massa/database"
	"github.com/urfave/cli/v2"
)

var (
	dbDirectoryFlag = cli.StringFlag{
		Name:     "dir",
		Usage:    "the targeted directory",
		Required: true,
	}
)

var getInfoCommand = cli.Command{
	Action: getInfo,
	Name:   "info",
	Usage:  "prints summary information about a state store directory",
	Flags: []cli.Flag{
		&dbDirectoryFlag,
	},
}

var verifyCommand = cli.Command{
	Action: verify,
	Name:   "verify",
	Usage:  "recomputes the state hash and compares it to the persisted one",
	Flags: []cli.Flag{
		&dbDirectoryFlag,
		&cpuProfilingFlag,
	},
}

var backupCommand = cli.Command{
	Action: backup,
	Name:   "backup",
	Usage:  "creates a backup of a state store next to its directory",
	Flags: []cli.Flag{
		&dbDirectoryFlag,
	},
}

func getInfo(ctx *cli.Context) (err error) {
	dir := ctx.String(dbDirectoryFlag.Name)
	store, err := open(ctx, dir)
	if err != nil {
		return err
	}
	defer closeStore(store, dir, &err)

	slot, err := store.GetChangeID()
	if err != nil {
		return
	}
	fmt.Printf("Change ID: %v\n", slot)

	hash, err := store.GetXofHash()
	if err != nil {
		return
	}
	fmt.Printf("State hash: %v\n", hash.ShortString())

	for _, space := range []backend.Space{backend.StateSpace, backend.VersioningSpace} {
		count, err := countKeys(store, space)
		if err != nil {
			return err
		}
		fmt.Printf("Keys in %v: %d\n", space, count)
	}
	fmt.Printf("Memory usage:\n%v", store.GetMemoryFootprint())
	return nil
}

func countKeys(store *database.SlotStore, space backend.Space) (int, error) {
	count := 0
	err := store.IteratePrefix(space, nil, func(_, _ []byte) bool {
		count++
		return true
	})
	return count, err
}

func verify(ctx *cli.Context) (err error) {
	profileTarget := ctx.String(cpuProfilingFlag.Name)
	if len(profileTarget) != 0 {
		if err := StartCPUProfile(profileTarget); err != nil {
			return err
		}
		defer StopCPUProfile()
	}

	dir := ctx.String(dbDirectoryFlag.Name)
	store, err := open(ctx, dir)
	if err != nil {
		return err
	}
	defer closeStore(store, dir, &err)

	persisted, err := store.GetXofHash()
	if err != nil {
		return
	}
	log.Printf("Computing state hash ...")
	computed, err := store.ComputeStateHash()
	if err != nil {
		return
	}
	fmt.Printf("Persisted state hash: %v\n", persisted.ShortString())
	fmt.Printf("Computed state hash:  %v\n", computed.ShortString())
	if persisted != computed {
		return fmt.Errorf("verification failed, hashes are not equivalent")
	}
	return nil
}

func backup(ctx *cli.Context) (err error) {
	dir := ctx.String(dbDirectoryFlag.Name)
	store, err := open(ctx, dir)
	if err != nil {
		return err
	}
	defer closeStore(store, dir, &err)

	slot, err := store.GetChangeID()
	if err != nil {
		return
	}
	path, err := store.BackupDB(slot)
	if err != nil {
		return
	}
	fmt.Printf("Created backup at %v in %v\n", slot, path)
	return nil
}
