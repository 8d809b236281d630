// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package interrupt

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lihao628/massa/common"
)

const ErrCanceled = common.ConstError("interrupted")

// IsCancelled returns true if the given context has been canceled.
func IsCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Register returns a context canceled on SIGINT or SIGTERM, allowing long
// running operations to stop between two atomic steps and close their stores
// cleanly.
func Register(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(c)
		select {
		case <-c:
			log.Println("Interrupted, stopping after the current step")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
