// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package stream

import (
	"bytes"
	"fmt"
)

// StepKind enumerates the phases of streaming a single space.
type StepKind uint8

const (
	// Started means nothing has been received yet.
	Started StepKind = iota
	// Ongoing means all keys up to and including the cursor key were received.
	Ongoing
	// Finished means the full space was received. The cursor key, if
	// present, is the last key received.
	Finished
)

func (k StepKind) String() string {
	switch k {
	case Started:
		return "started"
	case Ongoing:
		return "ongoing"
	case Finished:
		return "finished"
	}
	return fmt.Sprintf("unknown(%d)", uint8(k))
}

// Step is the cursor of a streaming session for one space. The zero value
// is the Started step.
type Step struct {
	kind   StepKind
	key    []byte
	hasKey bool
}

// StartedStep returns the cursor of a session that has not received anything.
func StartedStep() Step {
	return Step{kind: Started}
}

// OngoingStep returns the cursor of a session that received all keys up to
// and including the given key.
func OngoingStep(lastKey []byte) Step {
	return Step{kind: Ongoing, key: bytes.Clone(lastKey), hasKey: true}
}

// FinishedStep returns the cursor of a completed session without a last key.
func FinishedStep() Step {
	return Step{kind: Finished}
}

// FinishedAt returns the cursor of a completed session whose last received
// key is known.
func FinishedAt(lastKey []byte) Step {
	return Step{kind: Finished, key: bytes.Clone(lastKey), hasKey: true}
}

func (s Step) Kind() StepKind {
	return s.kind
}

// Key returns the cursor key, if the step carries one.
func (s Step) Key() ([]byte, bool) {
	return s.key, s.hasKey
}

func (s Step) IsStarted() bool {
	return s.kind == Started
}

func (s Step) IsFinished() bool {
	return s.kind == Finished
}

func (s Step) Equal(other Step) bool {
	return s.kind == other.kind && s.hasKey == other.hasKey && bytes.Equal(s.key, other.key)
}

func (s Step) String() string {
	if !s.hasKey {
		return s.kind.String()
	}
	return fmt.Sprintf("%v(%x)", s.kind, s.key)
}
