// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lihao628/massa/backend"
	"github.com/lihao628/massa/common"
	"github.com/lihao628/massa/stream"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func elementsOf(batch *stream.Batch[version]) map[string]string {
	res := map[string]string{}
	batch.NewElements.ForEach(func(key, value []byte) {
		res[string(key)] = string(value)
	})
	return res
}

// updatesOf renders updates as "value" or "-" for deletions.
func updatesOf(batch *stream.Batch[version]) map[string]string {
	res := map[string]string{}
	batch.UpdatesOnPreviousElements.ForEach(func(key []byte, change common.Change) {
		if change.Deleted {
			res[string(key)] = "-"
		} else {
			res[string(key)] = string(change.Value)
		}
	})
	return res
}

func getStateBatch(t *testing.T, store *Store[version], step stream.Step, last *version) stream.Batch[version] {
	t.Helper()
	batch, err := store.GetStateBatchToStream(step, last)
	if err != nil {
		t.Fatalf("failed to produce batch for %v: %v", step, err)
	}
	return batch
}

func TestStream_TwoBatchScenario(t *testing.T) {
	config := newTestConfig()
	config.MaxNewElements = 1
	a := openTestStore(t, config)
	write(t, a, 1, changes("k1=v1"), nil)
	write(t, a, 2, changes("k2=v2"), nil)

	first := getStateBatch(t, a, stream.StartedStep(), nil)
	if got, want := elementsOf(&first), map[string]string{"k1": "v1"}; !sameContent(got, want) {
		t.Errorf("unexpected new elements, wanted %v, got %v", want, got)
	}
	if first.UpdatesOnPreviousElements.Len() != 0 || first.ChangeID != 2 {
		t.Errorf("unexpected first batch %v", &first)
	}

	second := getStateBatch(t, a, stream.OngoingStep([]byte("k1")), ptr[version](2))
	if got, want := elementsOf(&second), map[string]string{"k2": "v2"}; !sameContent(got, want) {
		t.Errorf("unexpected new elements, wanted %v, got %v", want, got)
	}
	if second.UpdatesOnPreviousElements.Len() != 0 || second.ChangeID != 2 {
		t.Errorf("unexpected second batch %v", &second)
	}

	b := openTestStore(t, newTestConfig())
	empty := stream.Batch[version]{ChangeID: first.ChangeID}
	step, _, err := b.WriteBatchBootstrapClient(first, empty)
	if err != nil {
		t.Fatalf("failed to apply first batch: %v", err)
	}
	if !step.Equal(stream.OngoingStep([]byte("k1"))) {
		t.Errorf("unexpected step after first batch: %v", step)
	}
	step, _, err = b.WriteBatchBootstrapClient(second, empty)
	if err != nil {
		t.Fatalf("failed to apply second batch: %v", err)
	}
	if !step.Equal(stream.OngoingStep([]byte("k2"))) {
		t.Errorf("unexpected step after second batch: %v", step)
	}

	if got, want := content(t, b, backend.StateSpace), content(t, a, backend.StateSpace); !sameContent(got, want) {
		t.Errorf("stores differ, wanted %v, got %v", want, got)
	}
	if getHash(t, a) != getHash(t, b) {
		t.Errorf("store hashes differ")
	}
	if getChangeID(t, b) != 2 {
		t.Errorf("unexpected change ID of bootstrapped store: %d", getChangeID(t, b))
	}
}

func TestStream_StartedStepHasNoUpdates(t *testing.T) {
	store := openTestStore(t, newTestConfig())
	write(t, store, 1, changes("a=1"), nil)
	write(t, store, 2, changes("a=2"), nil)
	for _, last := range []*version{nil, ptr[version](1)} {
		batch := getStateBatch(t, store, stream.StartedStep(), last)
		if batch.UpdatesOnPreviousElements.Len() != 0 {
			t.Errorf("started step received updates: %v", updatesOf(&batch))
		}
	}
}

func TestStream_TimeErrors(t *testing.T) {
	config := newTestConfig()
	config.MaxHistoryLength = 3
	store := openTestStore(t, config)
	for i := version(1); i <= 6; i++ {
		write(t, store, i, changes(fmt.Sprintf("k%d=v", i)), nil)
	}

	tests := map[string]struct {
		step stream.Step
		last *version
	}{
		"missing last change ID": {stream.OngoingStep([]byte("k1")), nil},
		"finished without ID":    {stream.FinishedStep(), nil},
		"future change ID":       {stream.OngoingStep([]byte("k1")), ptr[version](7)},
		"evicted change ID":      {stream.OngoingStep([]byte("k1")), ptr[version](2)},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := store.GetStateBatchToStream(test.step, test.last); !errors.Is(err, ErrTime) {
				t.Errorf("expected time error, got %v", err)
			}
		})
	}
	if got := testutil.ToFloat64(store.metrics.timeErrors); got != float64(len(tests)) {
		t.Errorf("unexpected number of recorded time errors: %v", got)
	}

	// The oldest retained change ID is still covered.
	batch := getStateBatch(t, store, stream.OngoingStep([]byte("k9")), ptr[version](4))
	if got, want := updatesOf(&batch), map[string]string{"k5": "v", "k6": "v"}; !sameContent(got, want) {
		t.Errorf("unexpected updates, wanted %v, got %v", want, got)
	}
}

func TestStream_EmptyHistoryIsTimeError(t *testing.T) {
	store := openTestStore(t, newTestConfig())
	write(t, store, 1, changes("a=1"), nil)
	if err := store.Reset(3); err != nil {
		t.Fatalf("failed to reset store: %v", err)
	}
	if _, err := store.GetStateBatchToStream(stream.FinishedStep(), ptr[version](1)); !errors.Is(err, ErrTime) {
		t.Errorf("expected time error, got %v", err)
	}
}

func TestStream_CurrentChangeIDHasNoUpdates(t *testing.T) {
	store := openTestStore(t, newTestConfig())
	write(t, store, 1, changes("a=1"), nil)
	write(t, store, 2, changes("a=2"), nil)
	batch := getStateBatch(t, store, stream.FinishedStep(), ptr[version](2))
	if !batch.IsEmpty() || batch.ChangeID != 2 {
		t.Errorf("unexpected batch %v", &batch)
	}
}

func TestStream_UpdatesAreRestrictedToCursor(t *testing.T) {
	store := openTestStore(t, newTestConfig())
	write(t, store, 1, changes("a=1", "c=1", "e=1"), nil)
	write(t, store, 2, changes("a=2", "-c", "d=2", "e=2"), nil)

	batch := getStateBatch(t, store, stream.OngoingStep([]byte("c")), ptr[version](1))
	if got, want := updatesOf(&batch), map[string]string{"a": "2", "c": "-"}; !sameContent(got, want) {
		t.Errorf("unexpected updates, wanted %v, got %v", want, got)
	}
	if got, want := elementsOf(&batch), map[string]string{"d": "2", "e": "2"}; !sameContent(got, want) {
		t.Errorf("unexpected new elements, wanted %v, got %v", want, got)
	}
}

func TestStream_LaterUpdatesOverwriteEarlierOnes(t *testing.T) {
	store := openTestStore(t, newTestConfig())
	write(t, store, 1, changes("a=1", "b=1"), nil)
	write(t, store, 2, changes("a=2", "-b"), nil)
	write(t, store, 3, changes("a=3", "b=3"), nil)
	write(t, store, 4, changes("-a"), nil)

	batch := getStateBatch(t, store, stream.FinishedStep(), ptr[version](1))
	if got, want := updatesOf(&batch), map[string]string{"a": "-", "b": "3"}; !sameContent(got, want) {
		t.Errorf("unexpected updates, wanted %v, got %v", want, got)
	}
	if batch.NewElements.Len() != 0 {
		t.Errorf("finished step received new elements")
	}
}

func TestStream_ScanStartsAfterCursorAndIsBounded(t *testing.T) {
	config := newTestConfig()
	config.MaxNewElements = 2
	store := openTestStore(t, config)
	write(t, store, 1, changes("a=1", "b=2", "c=3", "d=4", "e=5"), nil)

	batch := getStateBatch(t, store, stream.OngoingStep([]byte("b")), ptr[version](1))
	if got, want := elementsOf(&batch), map[string]string{"c": "3", "d": "4"}; !sameContent(got, want) {
		t.Errorf("unexpected new elements, wanted %v, got %v", want, got)
	}
	// A cursor between keys continues at the next key.
	batch = getStateBatch(t, store, stream.OngoingStep([]byte("bb")), ptr[version](1))
	if got, want := elementsOf(&batch), map[string]string{"c": "3", "d": "4"}; !sameContent(got, want) {
		t.Errorf("unexpected new elements, wanted %v, got %v", want, got)
	}
	batch = getStateBatch(t, store, stream.OngoingStep([]byte("e")), ptr[version](1))
	if batch.NewElements.Len() != 0 {
		t.Errorf("cursor at last key should yield no new elements, got %v", elementsOf(&batch))
	}
}

func TestStream_MetadataCanNotBeStreamed(t *testing.T) {
	store := openTestStore(t, newTestConfig())
	if _, err := store.GetBatchToStream(backend.MetadataSpace, stream.StartedStep(), nil); !errors.Is(err, backend.ErrUnknownSpace) {
		t.Errorf("expected unknown space error, got %v", err)
	}
}

func TestStream_VersioningSpaceIsStreamedIndependently(t *testing.T) {
	store := openTestStore(t, newTestConfig())
	write(t, store, 1, changes("s=1"), changes("v1=a", "v2=b"))
	write(t, store, 2, changes("s=2"), changes("v1=c"))

	batch, err := store.GetVersioningBatchToStream(stream.OngoingStep([]byte("v1")), ptr[version](1))
	if err != nil {
		t.Fatalf("failed to produce batch: %v", err)
	}
	if got, want := updatesOf(&batch), map[string]string{"v1": "c"}; !sameContent(got, want) {
		t.Errorf("unexpected updates, wanted %v, got %v", want, got)
	}
	if got, want := elementsOf(&batch), map[string]string{"v2": "b"}; !sameContent(got, want) {
		t.Errorf("unexpected new elements, wanted %v, got %v", want, got)
	}
}

func TestStream_ConsumerRejectsLowerChangeID(t *testing.T) {
	store := openTestStore(t, newTestConfig())
	batch := stream.Batch[version]{NewElements: common.NewElements(), ChangeID: 5}
	batch.NewElements.Put([]byte("a"), []byte("1"))
	if _, _, err := store.WriteBatchBootstrapClient(batch, stream.Batch[version]{ChangeID: 5}); err != nil {
		t.Fatalf("failed to apply batch: %v", err)
	}
	batch.ChangeID = 4
	if _, _, err := store.WriteBatchBootstrapClient(batch, stream.Batch[version]{ChangeID: 4}); !errors.Is(err, ErrInvalidChangeID) {
		t.Errorf("expected invalid change ID error, got %v", err)
	}
}

func TestStream_ConsumerPrefersNewElements(t *testing.T) {
	store := openTestStore(t, newTestConfig())
	batch := stream.Batch[version]{
		NewElements:               common.NewElements(),
		UpdatesOnPreviousElements: changes("a=old", "b=1"),
		ChangeID:                  1,
	}
	batch.NewElements.Put([]byte("a"), []byte("new"))
	stateStep, versioningStep, err := store.WriteBatchBootstrapClient(batch, stream.Batch[version]{ChangeID: 1})
	if err != nil {
		t.Fatalf("failed to apply batch: %v", err)
	}
	if got, want := content(t, store, backend.StateSpace), map[string]string{"a": "new", "b": "1"}; !sameContent(got, want) {
		t.Errorf("unexpected state, wanted %v, got %v", want, got)
	}
	if !stateStep.Equal(stream.OngoingStep([]byte("a"))) || !versioningStep.IsFinished() {
		t.Errorf("unexpected steps %v and %v", stateStep, versioningStep)
	}
	checkHashIsConsistent(t, store)
}

// bootstrap streams the content of the server into the client, invoking
// modify between batches.
func bootstrap(t *testing.T, server, client *Store[version], modify func(round int)) {
	t.Helper()
	stateStep, versioningStep := stream.StartedStep(), stream.StartedStep()
	var last *version
	for round := 0; round < 1000; round++ {
		state := getStateBatch(t, server, stateStep, last)
		versioning, err := server.GetVersioningBatchToStream(versioningStep, last)
		if err != nil {
			t.Fatalf("failed to produce versioning batch: %v", err)
		}
		if stateStep.IsFinished() && versioningStep.IsFinished() && state.IsEmpty() && versioning.IsEmpty() {
			return
		}
		stateStep, versioningStep, err = client.WriteBatchBootstrapClient(state, versioning)
		if err != nil {
			t.Fatalf("failed to apply batches: %v", err)
		}
		last = ptr(state.ChangeID)
		if modify != nil {
			modify(round)
		}
	}
	t.Fatalf("bootstrap did not converge")
}

func TestStream_FullRoundTripReproducesStore(t *testing.T) {
	config := newTestConfig()
	config.MaxNewElements = 7
	server := openTestStore(t, config)
	state := common.NewChanges()
	versioning := common.NewChanges()
	for i := 0; i < 100; i++ {
		state.Put([]byte(fmt.Sprintf("key-%03d", i)), []byte(fmt.Sprintf("value-%d", i)))
	}
	for i := 0; i < 10; i++ {
		versioning.Put([]byte(fmt.Sprintf("vote-%d", i)), []byte("yes"))
	}
	write(t, server, 1, state, versioning)

	client := openTestStore(t, newTestConfig())
	bootstrap(t, server, client, nil)

	for _, space := range []backend.Space{backend.StateSpace, backend.VersioningSpace} {
		if got, want := content(t, client, space), content(t, server, space); !sameContent(got, want) {
			t.Errorf("content of %v differs", space)
		}
	}
	if getHash(t, client) != getHash(t, server) {
		t.Errorf("hashes differ")
	}
	recomputed, err := client.RecomputeHash()
	if err != nil {
		t.Fatalf("failed to recompute hash: %v", err)
	}
	if recomputed != getHash(t, server) {
		t.Errorf("recomputed hash differs from server hash")
	}
}

func TestStream_RoundTripWhileServerKeepsWriting(t *testing.T) {
	config := newTestConfig()
	config.MaxNewElements = 5
	server := openTestStore(t, config)
	initial := common.NewChanges()
	for i := 0; i < 40; i++ {
		initial.Put([]byte(fmt.Sprintf("key-%03d", 2*i)), []byte("initial"))
	}
	write(t, server, 1, initial, changes("vote-a=1"))

	next := version(2)
	client := openTestStore(t, newTestConfig())
	bootstrap(t, server, client, func(round int) {
		if round >= 20 {
			return
		}
		// Touch keys before and after the receiver's cursor.
		diff := changes(
			fmt.Sprintf("key-%03d=round-%d", round, round),
			fmt.Sprintf("key-%03d=round-%d", 79-round, round),
			fmt.Sprintf("-key-%03d", 2*((round*7)%40)),
		)
		write(t, server, next, diff, changes(fmt.Sprintf("vote-%d=%d", round%3, round)))
		next++
	})

	for _, space := range []backend.Space{backend.StateSpace, backend.VersioningSpace} {
		if got, want := content(t, client, space), content(t, server, space); !sameContent(got, want) {
			t.Errorf("content of %v differs:\nwanted %v\ngot    %v", space, want, got)
		}
	}
	if getHash(t, client) != getHash(t, server) {
		t.Errorf("hashes differ")
	}
	if getChangeID(t, client) != getChangeID(t, server) {
		t.Errorf("change IDs differ, wanted %d, got %d", getChangeID(t, server), getChangeID(t, client))
	}
	checkHashIsConsistent(t, client)
}

func TestStream_BootstrapConvergesWithConcurrentWriter(t *testing.T) {
	config := newTestConfig()
	config.MaxNewElements = 3
	config.MaxHistoryLength = 10_000
	server := openTestStore(t, config)
	initial := common.NewChanges()
	for i := 0; i < 50; i++ {
		initial.Put([]byte(fmt.Sprintf("key-%03d", 2*i)), []byte("initial"))
	}
	write(t, server, 1, initial, changes("vote-a=1"))

	const writes = 300
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < writes; i++ {
			state := changes(
				fmt.Sprintf("key-%03d=w%d", (i*13)%100, i),
				fmt.Sprintf("-key-%03d", (i*7)%100),
			)
			versioning := changes(fmt.Sprintf("vote-%d=%d", i%5, i))
			if err := server.WriteBatch(state, versioning, ptr(version(i+2))); err != nil {
				t.Errorf("failed to write at %d: %v", i+2, err)
				return
			}
		}
	}()

	// the writer must be finished before the stores are closed
	fatal := func(format string, args ...any) {
		t.Helper()
		<-done
		t.Fatalf(format, args...)
	}

	client := openTestStore(t, newTestConfig())
	stateStep, versioningStep := stream.StartedStep(), stream.StartedStep()
	var last *version
	converged := false
	for round := 0; round < 100_000 && !converged; round++ {
		stopped := false
		select {
		case <-done:
			stopped = true
		default:
		}
		state, err := server.GetBatchToStream(backend.StateSpace, stateStep, last)
		if err != nil {
			fatal("failed to produce state batch: %v", err)
		}
		versioning, err := server.GetBatchToStream(backend.VersioningSpace, versioningStep, last)
		if err != nil {
			fatal("failed to produce versioning batch: %v", err)
		}
		if stopped && stateStep.IsFinished() && versioningStep.IsFinished() &&
			state.IsEmpty() && versioning.IsEmpty() && last != nil && *last == state.ChangeID {
			converged = true
			break
		}
		stateStep, versioningStep, err = client.WriteBatchBootstrapClient(state, versioning)
		if err != nil {
			fatal("failed to apply batches: %v", err)
		}
		last = ptr(state.ChangeID)
	}
	<-done
	if !converged {
		t.Fatalf("bootstrap did not converge")
	}

	for _, space := range []backend.Space{backend.StateSpace, backend.VersioningSpace} {
		if got, want := content(t, client, space), content(t, server, space); !sameContent(got, want) {
			t.Errorf("content of %v differs:\nwanted %v\ngot    %v", space, want, got)
		}
	}
	if getHash(t, client) != getHash(t, server) {
		t.Errorf("hashes differ")
	}
	if got, want := getChangeID(t, client), version(writes+1); got != want {
		t.Errorf("unexpected change ID, wanted %d, got %d", want, got)
	}
	checkHashIsConsistent(t, client)
	checkHashIsConsistent(t, server)
}
