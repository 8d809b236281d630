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

	"github.com/lihao628/massa/backend"
	"github.com/urfave/cli/v2"
)

var (
	spaceFlag = cli.StringFlag{
		Name:  "space",
		Usage: "the space to print, one of state, versioning or metadata",
		Value: backend.StateSpace.String(),
	}
	prefixFlag = cli.StringFlag{
		Name:  "prefix",
		Usage: "only print keys starting with this prefix",
	}
)

var dumpCommand = cli.Command{
	Action: dump,
	Name:   "dump",
	Usage:  "prints the key/value pairs of a space",
	Flags: []cli.Flag{
		&dbDirectoryFlag,
		&spaceFlag,
		&prefixFlag,
	},
}

func dump(ctx *cli.Context) (err error) {
	space, err := backend.ParseSpace(ctx.String(spaceFlag.Name))
	if err != nil {
		return err
	}
	dir := ctx.String(dbDirectoryFlag.Name)
	store, err := open(ctx, dir)
	if err != nil {
		return err
	}
	defer closeStore(store, dir, &err)

	return store.IteratePrefix(space, []byte(ctx.String(prefixFlag.Name)), func(key, value []byte) bool {
		fmt.Printf("%q: %x\n", key, value)
		return true
	})
}
