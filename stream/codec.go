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

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/lihao628/massa/common"
)

const ErrMalformedMessage = common.ConstError("malformed stream message")

// Limits bounds the size of decoded messages. A zero field disables the
// corresponding check.
type Limits struct {
	MaxNewElements int
	MaxUpdates     int
	MaxKeyLength   int
	MaxValueLength int
}

// DefaultLimits returns limits matching a sender configured to ship at most
// maxNewElements new pairs per batch.
func DefaultLimits(maxNewElements int) Limits {
	return Limits{
		MaxNewElements: maxNewElements,
		MaxUpdates:     1_000_000,
		MaxKeyLength:   255,
		MaxValueLength: 10 * 1024 * 1024,
	}
}

// Codec converts bootstrap messages to and from their RLP wire format. Keys
// of elements and updates are encoded in strictly ascending order, which
// decoding enforces.
type Codec[C any] struct {
	serializer common.ChangeIDSerializer[C]
	limits     Limits
}

func NewCodec[C any](serializer common.ChangeIDSerializer[C], limits Limits) *Codec[C] {
	return &Codec[C]{serializer: serializer, limits: limits}
}

type wireStep struct {
	Kind   uint8
	HasKey bool
	Key    []byte
}

type wirePair struct {
	Key   []byte
	Value []byte
}

type wireChange struct {
	Key     []byte
	Deleted bool
	Value   []byte
}

type wireBatch struct {
	NewElements []wirePair
	Updates     []wireChange
	ChangeID    []byte
}

type wireRequest struct {
	StateStep       wireStep
	VersioningStep  wireStep
	HasLastChangeID bool
	LastChangeID    []byte
}

type wireResponse struct {
	State      wireBatch
	Versioning wireBatch
}

func (c *Codec[C]) EncodeStep(step Step) ([]byte, error) {
	return rlp.EncodeToBytes(toWireStep(step))
}

func (c *Codec[C]) DecodeStep(data []byte) (Step, error) {
	var msg wireStep
	if err := rlp.DecodeBytes(data, &msg); err != nil {
		return Step{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return c.fromWireStep(msg)
}

func (c *Codec[C]) EncodeBatch(batch *Batch[C]) ([]byte, error) {
	return rlp.EncodeToBytes(c.toWireBatch(batch))
}

func (c *Codec[C]) DecodeBatch(data []byte) (Batch[C], error) {
	var msg wireBatch
	if err := rlp.DecodeBytes(data, &msg); err != nil {
		return Batch[C]{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return c.fromWireBatch(msg)
}

func (c *Codec[C]) EncodeRequest(request *Request[C]) ([]byte, error) {
	msg := wireRequest{
		StateStep:      toWireStep(request.StateStep),
		VersioningStep: toWireStep(request.VersioningStep),
	}
	if request.LastChangeID != nil {
		msg.HasLastChangeID = true
		msg.LastChangeID = c.serializer.ToBytes(*request.LastChangeID)
	}
	return rlp.EncodeToBytes(msg)
}

func (c *Codec[C]) DecodeRequest(data []byte) (Request[C], error) {
	var msg wireRequest
	if err := rlp.DecodeBytes(data, &msg); err != nil {
		return Request[C]{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	var res Request[C]
	var err error
	if res.StateStep, err = c.fromWireStep(msg.StateStep); err != nil {
		return Request[C]{}, err
	}
	if res.VersioningStep, err = c.fromWireStep(msg.VersioningStep); err != nil {
		return Request[C]{}, err
	}
	if msg.HasLastChangeID {
		id, err := c.serializer.FromBytes(msg.LastChangeID)
		if err != nil {
			return Request[C]{}, fmt.Errorf("%w: invalid change ID: %v", ErrMalformedMessage, err)
		}
		res.LastChangeID = &id
	} else if len(msg.LastChangeID) > 0 {
		return Request[C]{}, fmt.Errorf("%w: unexpected change ID", ErrMalformedMessage)
	}
	return res, nil
}

func (c *Codec[C]) EncodeResponse(response *Response[C]) ([]byte, error) {
	return rlp.EncodeToBytes(wireResponse{
		State:      c.toWireBatch(&response.State),
		Versioning: c.toWireBatch(&response.Versioning),
	})
}

func (c *Codec[C]) DecodeResponse(data []byte) (Response[C], error) {
	var msg wireResponse
	if err := rlp.DecodeBytes(data, &msg); err != nil {
		return Response[C]{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	state, err := c.fromWireBatch(msg.State)
	if err != nil {
		return Response[C]{}, fmt.Errorf("state batch: %w", err)
	}
	versioning, err := c.fromWireBatch(msg.Versioning)
	if err != nil {
		return Response[C]{}, fmt.Errorf("versioning batch: %w", err)
	}
	return Response[C]{State: state, Versioning: versioning}, nil
}

func toWireStep(step Step) wireStep {
	key, hasKey := step.Key()
	return wireStep{Kind: uint8(step.Kind()), HasKey: hasKey, Key: key}
}

func (c *Codec[C]) fromWireStep(msg wireStep) (Step, error) {
	if err := c.checkKey(msg.Key); err != nil {
		return Step{}, err
	}
	switch StepKind(msg.Kind) {
	case Started:
		if msg.HasKey || len(msg.Key) > 0 {
			return Step{}, fmt.Errorf("%w: started step with key", ErrMalformedMessage)
		}
		return StartedStep(), nil
	case Ongoing:
		if !msg.HasKey {
			return Step{}, fmt.Errorf("%w: ongoing step without key", ErrMalformedMessage)
		}
		return OngoingStep(msg.Key), nil
	case Finished:
		if msg.HasKey {
			return FinishedAt(msg.Key), nil
		}
		if len(msg.Key) > 0 {
			return Step{}, fmt.Errorf("%w: unexpected key in finished step", ErrMalformedMessage)
		}
		return FinishedStep(), nil
	}
	return Step{}, fmt.Errorf("%w: unknown step kind %d", ErrMalformedMessage, msg.Kind)
}

func (c *Codec[C]) toWireBatch(batch *Batch[C]) wireBatch {
	res := wireBatch{
		NewElements: make([]wirePair, 0, batch.NewElements.Len()),
		Updates:     make([]wireChange, 0, batch.UpdatesOnPreviousElements.Len()),
		ChangeID:    c.serializer.ToBytes(batch.ChangeID),
	}
	batch.NewElements.ForEach(func(key, value []byte) {
		res.NewElements = append(res.NewElements, wirePair{Key: key, Value: value})
	})
	batch.UpdatesOnPreviousElements.ForEach(func(key []byte, change common.Change) {
		res.Updates = append(res.Updates, wireChange{Key: key, Deleted: change.Deleted, Value: change.Value})
	})
	return res
}

func (c *Codec[C]) fromWireBatch(msg wireBatch) (Batch[C], error) {
	if c.limits.MaxNewElements > 0 && len(msg.NewElements) > c.limits.MaxNewElements {
		return Batch[C]{}, fmt.Errorf("%w: %d new elements exceed limit of %d", ErrMalformedMessage, len(msg.NewElements), c.limits.MaxNewElements)
	}
	if c.limits.MaxUpdates > 0 && len(msg.Updates) > c.limits.MaxUpdates {
		return Batch[C]{}, fmt.Errorf("%w: %d updates exceed limit of %d", ErrMalformedMessage, len(msg.Updates), c.limits.MaxUpdates)
	}
	id, err := c.serializer.FromBytes(msg.ChangeID)
	if err != nil {
		return Batch[C]{}, fmt.Errorf("%w: invalid change ID: %v", ErrMalformedMessage, err)
	}

	elements := common.NewElements()
	for i, pair := range msg.NewElements {
		if err := c.checkPair(pair.Key, pair.Value); err != nil {
			return Batch[C]{}, err
		}
		if i > 0 && bytes.Compare(msg.NewElements[i-1].Key, pair.Key) >= 0 {
			return Batch[C]{}, fmt.Errorf("%w: element key %x out of order", ErrMalformedMessage, pair.Key)
		}
		elements.Put(pair.Key, pair.Value)
	}

	updates := common.NewChanges()
	for i, update := range msg.Updates {
		if err := c.checkPair(update.Key, update.Value); err != nil {
			return Batch[C]{}, err
		}
		if i > 0 && bytes.Compare(msg.Updates[i-1].Key, update.Key) >= 0 {
			return Batch[C]{}, fmt.Errorf("%w: update key %x out of order", ErrMalformedMessage, update.Key)
		}
		if update.Deleted {
			if len(update.Value) > 0 {
				return Batch[C]{}, fmt.Errorf("%w: deletion of %x carries a value", ErrMalformedMessage, update.Key)
			}
			updates.Delete(update.Key)
		} else {
			updates.Put(update.Key, update.Value)
		}
	}
	return Batch[C]{NewElements: elements, UpdatesOnPreviousElements: updates, ChangeID: id}, nil
}

func (c *Codec[C]) checkKey(key []byte) error {
	if c.limits.MaxKeyLength > 0 && len(key) > c.limits.MaxKeyLength {
		return fmt.Errorf("%w: key length %d exceeds limit of %d", ErrMalformedMessage, len(key), c.limits.MaxKeyLength)
	}
	return nil
}

func (c *Codec[C]) checkPair(key, value []byte) error {
	if err := c.checkKey(key); err != nil {
		return err
	}
	if c.limits.MaxValueLength > 0 && len(value) > c.limits.MaxValueLength {
		return fmt.Errorf("%w: value length %d exceeds limit of %d", ErrMalformedMessage, len(value), c.limits.MaxValueLength)
	}
	return nil
}
