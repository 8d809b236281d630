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
	"context"
	"fmt"
	"log"
	"time"

	"github.com/lihao628/massa/backend"
	"github.com/lihao628/massa/common"
	"github.com/lihao628/massa/common/interrupt"
	"github.com/lihao628/massa/database"
	"github.com/lihao628/massa/stream"
	"github.com/urfave/cli/v2"
)

var (
	dbSourceDirFlag = cli.StringFlag{
		Name:     "src-dir",
		Usage:    "the source of the synchronization",
		Required: true,
	}
	dbTargetDirFlag = cli.StringFlag{
		Name:     "trg-dir",
		Usage:    "the target of the synchronization, must be empty",
		Required: true,
	}
)

var syncCommand = cli.Command{
	Action: sync,
	Name:   "sync",
	Usage:  "streams the content of one state store directory into an empty one",
	Flags: []cli.Flag{
		&dbSourceDirFlag,
		&dbTargetDirFlag,
		&cpuProfilingFlag,
	},
}

func sync(ctx *cli.Context) (err error) {
	profileTarget := ctx.String(cpuProfilingFlag.Name)
	if len(profileTarget) != 0 {
		if err := StartCPUProfile(profileTarget); err != nil {
			return err
		}
		defer StopCPUProfile()
	}

	srcDir := ctx.String(dbSourceDirFlag.Name)
	source, err := open(ctx, srcDir)
	if err != nil {
		return err
	}
	defer closeStore(source, srcDir, &err)

	trgDir := ctx.String(dbTargetDirFlag.Name)
	target, err := open(ctx, trgDir)
	if err != nil {
		return err
	}
	defer closeStore(target, trgDir, &err)

	config, err := getConfig(ctx, srcDir)
	if err != nil {
		return err
	}
	codec := stream.NewCodec[common.Slot](common.SlotSerializer{ThreadCount: config.ThreadCount}, stream.DefaultLimits(config.MaxNewElements))

	log.Printf("Synching states ...")
	start := time.Now()
	if err := syncStores(interrupt.Register(ctx.Context), source, target, codec); err != nil {
		return err
	}
	log.Printf("Synching took %.1f seconds", time.Since(start).Seconds())

	sourceHash, err := source.GetXofHash()
	if err != nil {
		return
	}
	fmt.Printf("Source state hash: %v\n", sourceHash.ShortString())
	targetHash, err := target.RecomputeHash()
	if err != nil {
		return
	}
	fmt.Printf("Target state hash: %v\n", targetHash.ShortString())

	if sourceHash != targetHash {
		return fmt.Errorf("sync failed, hashes are not equivalent")
	}
	return nil
}

// syncStores streams the content of the source into the empty target. All
// messages pass through their wire encoding. Canceling the context stops the
// streaming between two batches.
func syncStores(ctx context.Context, source, target *database.SlotStore, codec *stream.Codec[common.Slot]) error {
	empty := true
	for _, space := range []backend.Space{backend.StateSpace, backend.VersioningSpace} {
		err := target.IteratePrefix(space, nil, func(_, _ []byte) bool {
			empty = false
			return false
		})
		if err != nil {
			return err
		}
	}
	if !empty {
		return fmt.Errorf("sync target is not empty")
	}

	request := stream.Request[common.Slot]{}
	batches := 0
	for {
		if interrupt.IsCancelled(ctx) {
			return interrupt.ErrCanceled
		}
		data, err := codec.EncodeRequest(&request)
		if err != nil {
			return err
		}
		data, err = serve(source, codec, data)
		if err != nil {
			return err
		}
		response, err := codec.DecodeResponse(data)
		if err != nil {
			return err
		}
		if request.StateStep.IsFinished() && request.VersioningStep.IsFinished() && response.IsFinal() {
			log.Printf("Received %d batches", batches)
			return nil
		}

		stateStep, versioningStep, err := target.WriteBatchBootstrapClient(response.State, response.Versioning)
		if err != nil {
			return err
		}
		batches++
		changeID := response.State.ChangeID
		request = stream.Request[common.Slot]{
			StateStep:      stateStep,
			VersioningStep: versioningStep,
			LastChangeID:   &changeID,
		}
	}
}

// serve answers an encoded bootstrap request the way a serving node does.
func serve(source *database.SlotStore, codec *stream.Codec[common.Slot], data []byte) ([]byte, error) {
	request, err := codec.DecodeRequest(data)
	if err != nil {
		return nil, err
	}
	state, err := source.GetStateBatchToStream(request.StateStep, request.LastChangeID)
	if err != nil {
		return nil, err
	}
	versioning, err := source.GetVersioningBatchToStream(request.VersioningStep, request.LastChangeID)
	if err != nil {
		return nil, err
	}
	return codec.EncodeResponse(&stream.Response[common.Slot]{State: state, Versioning: versioning})
}
