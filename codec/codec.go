// Package codec implements the poll-based buffer-exchange codec device on
// top of libav's send/receive API.
package codec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avpump/logger"
	"github.com/xaionaro-go/avpump/types"
	"github.com/xaionaro-go/xsync"
)

var (
	ErrClosed  = errors.New("codec is closed")
	ErrStopped = errors.New("codec is stopped")
)

type ErrInvalidSlot struct {
	Slot   types.SlotIndex
	Reason string
}

func (e ErrInvalidSlot) Error() string {
	return fmt.Sprintf("invalid slot %s: %s", e.Slot, e.Reason)
}

type slotState int

const (
	slotStateFree = slotState(iota)
	slotStateDequeued
	slotStateQueued
)

type queuedInput struct {
	Slot     types.SlotIndex
	Info     types.BufferInfo
	DataSent bool
}

type heldOutput struct {
	Data []byte
	Info types.BufferInfo
}

// Codec emulates fixed pools of input and output buffers over an engine.
// Dequeue calls never block: the engine is driven synchronously from them.
type Codec struct {
	Name string

	locker xsync.Mutex
	engine engine

	inputBuffers   [][]byte
	inputStates    []slotState
	outputBuffers  [][]byte
	outputStates   []slotState
	outputSlotSize int

	pendingInputs  []queuedInput
	held           *heldOutput
	formatReported bool
	eosQueued      bool
	eosDelivered   bool
	draining       bool
	drained        bool
	stopped        bool
	closed         bool
}

func newCodec(
	name string,
	e engine,
	cfg SlotsConfig,
) *Codec {
	cfg = cfg.withDefaults()
	c := &Codec{
		Name:           name,
		engine:         e,
		inputBuffers:   make([][]byte, cfg.InputSlots),
		inputStates:    make([]slotState, cfg.InputSlots),
		outputSlotSize: cfg.OutputSlotSize,
	}
	for idx := range c.inputBuffers {
		c.inputBuffers[idx] = make([]byte, cfg.MaxInputSize)
	}
	c.allocOutputBuffers(cfg.OutputSlots)
	return c
}

func (c *Codec) allocOutputBuffers(count int) {
	c.outputBuffers = make([][]byte, count)
	c.outputStates = make([]slotState, count)
	for idx := range c.outputBuffers {
		c.outputBuffers[idx] = make([]byte, c.outputSlotSize)
	}
}

func (c *Codec) String() string {
	return fmt.Sprintf("Codec(%s)", c.Name)
}

func (c *Codec) checkUsableLocked() error {
	switch {
	case c.closed:
		return ErrClosed
	case c.stopped:
		return ErrStopped
	}
	return nil
}

func (c *Codec) DequeueInputSlot(
	ctx context.Context,
	_ time.Duration,
) (_ret types.SlotIndex, _status types.DequeueStatus, _err error) {
	logger.Tracef(ctx, "DequeueInputSlot[%s]", c.Name)
	defer func() { logger.Tracef(ctx, "/DequeueInputSlot[%s]: %s %s %v", c.Name, _ret, _status, _err) }()

	_ret, _status = types.SlotIndexNone, types.DequeueStatusWouldBlock
	c.locker.Do(ctx, func() {
		if _err = c.checkUsableLocked(); _err != nil {
			return
		}
		if _err = c.feedLocked(ctx); _err != nil {
			return
		}
		if c.eosQueued {
			return
		}
		for idx, state := range c.inputStates {
			if state != slotStateFree {
				continue
			}
			c.inputStates[idx] = slotStateDequeued
			_ret, _status = types.SlotIndex(idx), types.DequeueStatusSlot
			return
		}
	})
	return
}

func (c *Codec) QueueInputSlot(
	ctx context.Context,
	slot types.SlotIndex,
	info types.BufferInfo,
) (_err error) {
	logger.Tracef(ctx, "QueueInputSlot[%s]: %s %s", c.Name, slot, info)
	defer func() { logger.Tracef(ctx, "/QueueInputSlot[%s]: %s: %v", c.Name, slot, _err) }()

	return xsync.DoR1(ctx, &c.locker, func() error {
		if err := c.checkUsableLocked(); err != nil {
			return err
		}
		if int(slot) < 0 || int(slot) >= len(c.inputStates) {
			return ErrInvalidSlot{Slot: slot, Reason: "out of the input pool"}
		}
		if c.inputStates[slot] != slotStateDequeued {
			return ErrInvalidSlot{Slot: slot, Reason: "the input slot was not dequeued"}
		}
		if c.eosQueued {
			return fmt.Errorf("end of stream was already queued")
		}
		if _, err := info.Payload(c.inputBuffers[slot]); err != nil {
			return fmt.Errorf("invalid buffer info: %w", err)
		}
		c.inputStates[slot] = slotStateQueued
		c.pendingInputs = append(c.pendingInputs, queuedInput{Slot: slot, Info: info})
		if info.IsEndOfStream() {
			c.eosQueued = true
		}
		return c.feedLocked(ctx)
	})
}

// feedLocked passes the queued inputs to the engine in order, until the
// engine refuses one.
func (c *Codec) feedLocked(ctx context.Context) error {
	for len(c.pendingInputs) > 0 {
		in := &c.pendingInputs[0]
		if !in.DataSent {
			if in.Info.Size > 0 {
				data := c.inputBuffers[in.Slot][in.Info.Offset : in.Info.Offset+in.Info.Size]
				flags := in.Info.Flags.Remove(types.BufferFlagEndOfStream)
				err := c.engine.SendInput(ctx, data, in.Info.PresentationTimeMicros, flags)
				switch {
				case err == nil:
				case errors.Is(err, astiav.ErrEagain):
					return nil
				default:
					return fmt.Errorf("unable to send input %s: %w", in.Info, err)
				}
			}
			in.DataSent = true
			c.inputStates[in.Slot] = slotStateFree
		}
		if in.Info.IsEndOfStream() {
			err := c.engine.Drain(ctx)
			switch {
			case err == nil:
				logger.Debugf(ctx, "%s: draining", c)
				c.draining = true
			case errors.Is(err, astiav.ErrEagain):
				return nil
			default:
				return fmt.Errorf("unable to drain: %w", err)
			}
		}
		c.pendingInputs = c.pendingInputs[1:]
	}
	return nil
}

func (c *Codec) DequeueOutputSlot(
	ctx context.Context,
	_ time.Duration,
	info *types.BufferInfo,
) (_ret types.SlotIndex, _status types.DequeueStatus, _err error) {
	logger.Tracef(ctx, "DequeueOutputSlot[%s]", c.Name)
	defer func() { logger.Tracef(ctx, "/DequeueOutputSlot[%s]: %s %s %v", c.Name, _ret, _status, _err) }()

	_ret, _status = types.SlotIndexNone, types.DequeueStatusWouldBlock
	c.locker.Do(ctx, func() {
		if _err = c.checkUsableLocked(); _err != nil {
			return
		}
		if _err = c.feedLocked(ctx); _err != nil {
			return
		}
		if c.held == nil {
			if _err = c.receiveLocked(ctx); _err != nil || c.held == nil {
				return
			}
		}
		if !c.formatReported {
			c.formatReported = true
			_status = types.DequeueStatusFormatChanged
			return
		}
		if len(c.held.Data) > c.outputSlotSize {
			for _, state := range c.outputStates {
				if state != slotStateFree {
					// the pool cannot be replaced while the caller owns a buffer of it
					return
				}
			}
			c.outputSlotSize = len(c.held.Data)
			c.allocOutputBuffers(len(c.outputBuffers))
			logger.Debugf(ctx, "%s: output buffers regrown to %d bytes", c, c.outputSlotSize)
			_status = types.DequeueStatusBuffersChanged
			return
		}
		for idx, state := range c.outputStates {
			if state != slotStateFree {
				continue
			}
			buf := c.outputBuffers[idx]
			n := copy(buf, c.held.Data)
			info.Set(0, n, c.held.Info.PresentationTimeMicros, c.held.Info.Flags)
			if info.IsEndOfStream() {
				c.eosDelivered = true
			}
			c.outputStates[idx] = slotStateDequeued
			c.held = nil
			_ret, _status = types.SlotIndex(idx), types.DequeueStatusSlot
			return
		}
	})
	return
}

func (c *Codec) receiveLocked(ctx context.Context) error {
	if c.drained {
		if c.eosDelivered {
			return nil
		}
		c.held = &heldOutput{Info: types.BufferInfo{Flags: types.BufferFlags(types.BufferFlagEndOfStream)}}
		return nil
	}
	data, info, err := c.engine.ReceiveOutput(ctx)
	switch {
	case err == nil:
		c.held = &heldOutput{Data: data, Info: info}
		return nil
	case errors.Is(err, astiav.ErrEagain):
		return nil
	case errors.Is(err, io.EOF):
		if !c.draining {
			return fmt.Errorf("the engine reached the end of the stream before it was asked to drain")
		}
		logger.Debugf(ctx, "%s: drained", c)
		c.drained = true
		return c.receiveLocked(ctx)
	default:
		return fmt.Errorf("unable to receive output: %w", err)
	}
}

func (c *Codec) ReleaseOutputSlot(
	ctx context.Context,
	slot types.SlotIndex,
	render bool,
) (_err error) {
	logger.Tracef(ctx, "ReleaseOutputSlot[%s]: %s %t", c.Name, slot, render)
	defer func() { logger.Tracef(ctx, "/ReleaseOutputSlot[%s]: %s: %v", c.Name, slot, _err) }()

	return xsync.DoR1(ctx, &c.locker, func() error {
		if c.closed {
			return ErrClosed
		}
		if int(slot) < 0 || int(slot) >= len(c.outputStates) {
			return ErrInvalidSlot{Slot: slot, Reason: "out of the output pool"}
		}
		if c.outputStates[slot] != slotStateDequeued {
			return ErrInvalidSlot{Slot: slot, Reason: "the output slot was not dequeued"}
		}
		c.outputStates[slot] = slotStateFree
		return nil
	})
}

func (c *Codec) OutputFormat(
	ctx context.Context,
) (_ret *types.Format, _err error) {
	logger.Tracef(ctx, "OutputFormat[%s]", c.Name)
	defer func() { logger.Tracef(ctx, "/OutputFormat[%s]: %s %v", c.Name, _ret, _err) }()

	return xsync.DoR2(ctx, &c.locker, func() (*types.Format, error) {
		if c.closed {
			return nil, ErrClosed
		}
		if !c.formatReported {
			return nil, fmt.Errorf("the output format is not known before the format change is reported")
		}
		return c.engine.OutputFormat(ctx)
	})
}

func (c *Codec) InputBuffers(ctx context.Context) [][]byte {
	return xsync.DoR1(ctx, &c.locker, func() [][]byte {
		return c.inputBuffers
	})
}

func (c *Codec) OutputBuffers(ctx context.Context) [][]byte {
	return xsync.DoR1(ctx, &c.locker, func() [][]byte {
		return c.outputBuffers
	})
}

// Stop makes every following dequeue fail. It is idempotent.
func (c *Codec) Stop(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Stop[%s]", c.Name)
	defer func() { logger.Debugf(ctx, "/Stop[%s]: %v", c.Name, _err) }()

	c.locker.Do(ctx, func() {
		c.stopped = true
		c.pendingInputs = nil
		c.held = nil
	})
	return nil
}

// Close releases the engine. It is idempotent.
func (c *Codec) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close[%s]", c.Name)
	defer func() { logger.Debugf(ctx, "/Close[%s]: %v", c.Name, _err) }()

	return xsync.DoR1(ctx, &c.locker, func() error {
		if c.closed {
			return nil
		}
		c.closed = true
		c.stopped = true
		c.pendingInputs = nil
		c.held = nil
		return c.engine.Close(ctx)
	})
}
