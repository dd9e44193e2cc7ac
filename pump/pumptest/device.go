package pumptest

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xaionaro-go/avpump/types"
)

type queuedBuffer struct {
	data []byte
	info types.BufferInfo
}

// Device is a CodecDevice that turns every queued input into one output,
// in order, through Process.
type Device struct {
	Name        string
	InputSlots  int
	OutputSlots int
	InputSize   int
	OutputSize  int
	Format      *types.Format

	// Process maps an input payload into an output payload; identity if nil.
	Process func([]byte) []byte

	// WouldBlockEvery makes every N-th dequeue call report WouldBlock.
	WouldBlockEvery int

	// BuffersChangedAfter replaces the output pool after that many outputs.
	BuffersChangedAfter int

	// FormatChangedAgainAfter reports a second FormatChanged after that
	// many outputs.
	FormatChangedAgainAfter int

	// CodecConfig, if set, is delivered as a codec config buffer right
	// after the format.
	CodecConfig []byte

	// SkipFormatChanged makes the device deliver data without ever
	// reporting its format.
	SkipFormatChanged bool

	// OnQueueInput is called for every accepted input.
	OnQueueInput func(info types.BufferInfo)

	QueuedInputs     []types.BufferInfo
	DeliveredOutputs []types.BufferInfo
	Released         int
	StopCount        int
	CloseCount       int

	inputBuffers  [][]byte
	outputBuffers [][]byte
	inputFree     []types.SlotIndex
	inputTaken    map[types.SlotIndex]bool
	outputFree    []types.SlotIndex
	outputTaken   map[types.SlotIndex]bool
	queue         []queuedBuffer
	dequeueCalls  int

	formatSent         bool
	formatSentAgain    bool
	codecConfigSent    bool
	buffersChangedSent bool
	closed             bool
}

func NewDevice(name string, format *types.Format) *Device {
	d := &Device{
		Name:        name,
		InputSlots:  4,
		OutputSlots: 4,
		InputSize:   1024,
		OutputSize:  1024,
		Format:      format,
	}
	return d
}

func (d *Device) String() string {
	return d.Name
}

func (d *Device) init() {
	if d.inputBuffers != nil {
		return
	}
	d.inputBuffers = allocBuffers(d.InputSlots, d.InputSize)
	d.outputBuffers = allocBuffers(d.OutputSlots, d.OutputSize)
	d.inputTaken = map[types.SlotIndex]bool{}
	d.outputTaken = map[types.SlotIndex]bool{}
	for i := 0; i < d.InputSlots; i++ {
		d.inputFree = append(d.inputFree, types.SlotIndex(i))
	}
	for i := 0; i < d.OutputSlots; i++ {
		d.outputFree = append(d.outputFree, types.SlotIndex(i))
	}
}

func allocBuffers(count, size int) [][]byte {
	result := make([][]byte, count)
	for i := range result {
		result[i] = make([]byte, size)
	}
	return result
}

func (d *Device) shouldBlock() bool {
	d.dequeueCalls++
	return d.WouldBlockEvery > 0 && d.dequeueCalls%d.WouldBlockEvery == 0
}

func (d *Device) DequeueInputSlot(
	_ context.Context,
	_ time.Duration,
) (types.SlotIndex, types.DequeueStatus, error) {
	d.init()
	if d.closed {
		return types.SlotIndexNone, types.UndefinedDequeueStatus, fmt.Errorf("%s is closed", d.Name)
	}
	if d.shouldBlock() || len(d.inputFree) == 0 {
		return types.SlotIndexNone, types.DequeueStatusWouldBlock, nil
	}
	slot := d.inputFree[0]
	d.inputFree = d.inputFree[1:]
	d.inputTaken[slot] = true
	return slot, types.DequeueStatusSlot, nil
}

func (d *Device) QueueInputSlot(
	_ context.Context,
	slot types.SlotIndex,
	info types.BufferInfo,
) error {
	d.init()
	if !d.inputTaken[slot] {
		return fmt.Errorf("%s: input slot %s was not dequeued", d.Name, slot)
	}
	payload, err := info.Payload(d.inputBuffers[slot])
	if err != nil {
		return fmt.Errorf("%s: %w", d.Name, err)
	}
	d.queue = append(d.queue, queuedBuffer{data: bytes.Clone(payload), info: info})
	d.QueuedInputs = append(d.QueuedInputs, info)
	delete(d.inputTaken, slot)
	d.inputFree = append(d.inputFree, slot)
	if d.OnQueueInput != nil {
		d.OnQueueInput(info)
	}
	return nil
}

func (d *Device) DequeueOutputSlot(
	_ context.Context,
	_ time.Duration,
	info *types.BufferInfo,
) (types.SlotIndex, types.DequeueStatus, error) {
	d.init()
	if d.closed {
		return types.SlotIndexNone, types.UndefinedDequeueStatus, fmt.Errorf("%s is closed", d.Name)
	}
	if d.shouldBlock() || len(d.queue) == 0 {
		return types.SlotIndexNone, types.DequeueStatusWouldBlock, nil
	}
	if !d.formatSent && !d.SkipFormatChanged {
		d.formatSent = true
		return types.SlotIndexNone, types.DequeueStatusFormatChanged, nil
	}
	delivered := len(d.DeliveredOutputs)
	if d.BuffersChangedAfter > 0 && delivered == d.BuffersChangedAfter && !d.buffersChangedSent {
		d.buffersChangedSent = true
		d.outputBuffers = allocBuffers(d.OutputSlots, d.OutputSize)
		return types.SlotIndexNone, types.DequeueStatusBuffersChanged, nil
	}
	if d.FormatChangedAgainAfter > 0 && delivered == d.FormatChangedAgainAfter && !d.formatSentAgain {
		d.formatSentAgain = true
		return types.SlotIndexNone, types.DequeueStatusFormatChanged, nil
	}
	if len(d.outputFree) == 0 {
		return types.SlotIndexNone, types.DequeueStatusWouldBlock, nil
	}
	slot := d.outputFree[0]

	var (
		data  []byte
		flags types.BufferFlags
		pts   int64
	)
	if d.CodecConfig != nil && !d.codecConfigSent {
		d.codecConfigSent = true
		data = d.CodecConfig
		flags = types.BufferFlags(types.BufferFlagCodecConfig)
	} else {
		item := d.queue[0]
		d.queue = d.queue[1:]
		data = item.data
		if len(data) > 0 && d.Process != nil {
			data = d.Process(data)
		}
		flags = item.info.Flags
		pts = item.info.PresentationTimeMicros
	}
	if len(data) > len(d.outputBuffers[slot]) {
		return types.SlotIndexNone, types.UndefinedDequeueStatus, fmt.Errorf("%s: output of %d bytes does not fit", d.Name, len(data))
	}

	d.outputFree = d.outputFree[1:]
	d.outputTaken[slot] = true
	copy(d.outputBuffers[slot], data)
	info.Set(0, len(data), pts, flags)
	if !flags.Has(types.BufferFlagCodecConfig) {
		d.DeliveredOutputs = append(d.DeliveredOutputs, *info)
	}
	return slot, types.DequeueStatusSlot, nil
}

func (d *Device) ReleaseOutputSlot(
	_ context.Context,
	slot types.SlotIndex,
	_ bool,
) error {
	d.init()
	if !d.outputTaken[slot] {
		return fmt.Errorf("%s: output slot %s was not dequeued", d.Name, slot)
	}
	delete(d.outputTaken, slot)
	d.outputFree = append(d.outputFree, slot)
	d.Released++
	return nil
}

func (d *Device) OutputFormat(context.Context) (*types.Format, error) {
	if !d.formatSent {
		return nil, fmt.Errorf("%s: the output format is not known yet", d.Name)
	}
	return d.Format, nil
}

func (d *Device) InputBuffers(context.Context) [][]byte {
	d.init()
	return d.inputBuffers
}

func (d *Device) OutputBuffers(context.Context) [][]byte {
	d.init()
	return d.outputBuffers
}

// OutputSlotsInUse returns how many output slots are held by the caller.
func (d *Device) OutputSlotsInUse() int {
	return len(d.outputTaken)
}

func (d *Device) Stop(context.Context) error {
	d.StopCount++
	return nil
}

func (d *Device) Close(context.Context) error {
	d.CloseCount++
	d.closed = true
	return nil
}
