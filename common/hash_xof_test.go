// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package common

import "testing"

func TestHashKeyValue_IsDeterministic(t *testing.T) {
	a := HashKeyValue([]byte("key"), []byte("value"))
	b := HashKeyValue([]byte("key"), []byte("value"))
	if a != b {
		t.Errorf("digest of the same pair differs")
	}
	if a == InitialHashXof {
		t.Errorf("digest should not be the initial hash")
	}
}

func TestHashKeyValue_SplitIsUnambiguous(t *testing.T) {
	a := HashKeyValue([]byte("ke"), []byte("yvalue"))
	b := HashKeyValue([]byte("key"), []byte("value"))
	if a == b {
		t.Errorf("different key/value splits should produce different digests")
	}
}

func TestHashXof_XorIsCommutativeAndSelfInverse(t *testing.T) {
	x := HashKeyValue([]byte("a"), []byte("1"))
	y := HashKeyValue([]byte("b"), []byte("2"))

	xy := InitialHashXof
	xy.Xor(&x)
	xy.Xor(&y)

	yx := InitialHashXof
	yx.Xor(&y)
	yx.Xor(&x)

	if xy != yx {
		t.Errorf("combination depends on order")
	}

	xy.Xor(&y)
	if xy != x {
		t.Errorf("removing a digest should restore the previous hash")
	}
	xy.Xor(&x)
	if xy != InitialHashXof {
		t.Errorf("removing all digests should restore the initial hash")
	}
}

func TestHashXofFromBytes(t *testing.T) {
	h := HashKeyValue([]byte("a"), []byte("b"))
	got, err := HashXofFromBytes(h[:])
	if err != nil {
		t.Fatalf("failed to parse hash: %v", err)
	}
	if got != h {
		t.Errorf("parsed hash differs")
	}
	if _, err := HashXofFromBytes(h[:10]); err == nil {
		t.Errorf("short input should be rejected")
	}
}
