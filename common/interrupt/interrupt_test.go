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
	"syscall"
	"testing"
	"time"
)

func TestRegister_InterruptCancelsContext(t *testing.T) {
	ctx := Register(context.Background())
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGINT); err != nil {
		t.Fatalf("failed to send SIGINT: %v", err)
	}
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Errorf("context not canceled by interrupt")
	}
}

func TestIsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	if IsCancelled(ctx) {
		t.Fatal("context was not canceled but func returned true")
	}
	cancel()
	if !IsCancelled(ctx) {
		t.Fatalf("context was canceled but func returned false")
	}
}
