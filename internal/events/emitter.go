package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/fystack/storage-inspector/internal/decoder"
	"github.com/fystack/storage-inspector/pkg/infra"
	"github.com/fystack/storage-inspector/pkg/storage"
	"github.com/fystack/storage-inspector/pkg/storage/codec"
	"github.com/fystack/storage-inspector/pkg/storage/slot"
)

const SnapshotEventType = "snapshot"

// SnapshotEvent is the published form of one decode pass.
type SnapshotEvent struct {
	Type      string            `json:"type"`
	Contract  string            `json:"contract"`
	Address   string            `json:"address"`
	Array     string            `json:"array"`
	Block     string            `json:"block,omitempty"`
	Length    string            `json:"length"`
	AreaSlot  string            `json:"area_slot,omitempty"`
	From      uint64            `json:"from"`
	Elements  []*codec.Element  `json:"elements"`
	Errors    []ElementErrorDTO `json:"errors,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

type ElementErrorDTO struct {
	Index   uint64 `json:"index"`
	Slot    string `json:"slot,omitempty"`
	Message string `json:"message"`
}

type Emitter interface {
	EmitSnapshot(ctx context.Context, contract string, result *decoder.Result) error
	Close()
}

type emitter struct {
	publisher infra.Publisher
	subject   string
	now       func() time.Time
}

func NewEmitter(publisher infra.Publisher, subject string) Emitter {
	return &emitter{
		publisher: publisher,
		subject:   subject,
		now:       time.Now,
	}
}

func (e *emitter) EmitSnapshot(ctx context.Context, contract string, result *decoder.Result) error {
	event := NewSnapshotEvent(contract, result, e.now())
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	var opts *infra.PublishOptions
	if result.Block != nil {
		// a pinned snapshot never changes, so republishing it is a no-op
		opts = &infra.PublishOptions{IdempotencyKey: SnapshotKey(result)}
	}
	return e.publisher.Publish(ctx, e.subject, data, opts)
}

func (e *emitter) Close() {
	if e.publisher != nil {
		e.publisher.Close()
	}
}

func NewSnapshotEvent(contract string, result *decoder.Result, at time.Time) SnapshotEvent {
	event := SnapshotEvent{
		Type:      SnapshotEventType,
		Contract:  contract,
		Address:   result.Contract.Hex(),
		Array:     result.Array,
		Length:    result.Length.String(),
		From:      result.From,
		Elements:  result.Elements,
		Timestamp: at.UTC().Unix(),
	}
	if event.Elements == nil {
		event.Elements = []*codec.Element{}
	}
	if result.Block != nil {
		event.Block = result.Block.String()
	}
	if result.AreaSlot != nil {
		event.AreaSlot = slot.Key(result.AreaSlot).Hex()
	}
	if len(result.Errors) > 0 {
		event.Errors = lo.Map(result.Errors, func(e *storage.ElementError, _ int) ElementErrorDTO {
			dto := ElementErrorDTO{Index: e.Index, Message: e.Err.Error()}
			if e.Slot != nil {
				dto.Slot = slot.Key(e.Slot).Hex()
			}
			return dto
		})
	}
	return event
}

// SnapshotKey identifies a pinned snapshot: address, array, block and range start.
func SnapshotKey(result *decoder.Result) string {
	block := "latest"
	if result.Block != nil {
		block = result.Block.String()
	}
	return fmt.Sprintf("%s:%s:%s:%d:%d", result.Contract.Hex(), result.Array, block, result.From, len(result.Elements))
}
