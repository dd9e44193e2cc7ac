package pump

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"
	"github.com/xaionaro-go/avpump/internal"
	"github.com/xaionaro-go/avpump/logger"
	"github.com/xaionaro-go/avpump/muxer"
	"github.com/xaionaro-go/avpump/types"
)

const (
	stageSource  = "source"
	stageDecoder = "decoder"
	stageEncoder = "encoder"
	stageMuxer   = "muxer"
)

// extractToDecoder moves one sample from the Source into a decoder input slot.
func (s *Scheduler) extractToDecoder(ctx context.Context) (bool, error) {
	if s.sourceEOS || !s.gateOpen() {
		return false, nil
	}

	slot, ok, err := s.dequeueInputSlot(ctx, stageDecoder, s.Decoder, &s.decoderInput)
	if err != nil || !ok {
		return false, err
	}

	// the source reports a failure only through ReadSample, so it is called
	// even after Advance returned false
	n, err := s.Source.ReadSample(ctx, s.decoderInput[slot])
	switch {
	case errors.Is(err, io.EOF):
		return true, s.queueSourceEndOfStream(ctx, slot)
	case err != nil:
		return false, ErrIO{Op: "read sample", Err: err}
	}

	info := types.BufferInfo{
		Size:                   n,
		PresentationTimeMicros: s.Source.SampleTime(),
		Flags:                  s.Source.SampleFlags(),
	}
	info.Flags = info.Flags.Remove(types.BufferFlagEndOfStream)
	if err := s.Decoder.QueueInputSlot(ctx, slot, info); err != nil {
		return false, ErrDevice{Stage: stageDecoder, Op: "queue an input slot", Err: err}
	}
	s.Stats.Extracted.Inc()
	logger.Tracef(ctx, "[0] extracted %s into decoder slot %s", info, slot)

	if !s.Source.Advance(ctx) {
		logger.Debugf(ctx, "[0] no more samples in the source")
	}
	return true, nil
}

func (s *Scheduler) queueSourceEndOfStream(ctx context.Context, slot types.SlotIndex) error {
	info := types.BufferInfo{Flags: types.BufferFlags(types.BufferFlagEndOfStream)}
	if err := s.Decoder.QueueInputSlot(ctx, slot, info); err != nil {
		return ErrDevice{Stage: stageDecoder, Op: "queue the end-of-stream marker", Err: err}
	}
	s.sourceEOS = true
	logger.Debugf(ctx, "[0] queued the end-of-stream marker into decoder slot %s", slot)
	return nil
}

// decoderToPending takes one decoded buffer and parks it as the pending slot.
func (s *Scheduler) decoderToPending(ctx context.Context) (bool, error) {
	if s.pendingSlot.IsValid() || s.decodeEOS || !s.gateOpen() {
		return false, nil
	}

	var info types.BufferInfo
	slot, status, err := s.Decoder.DequeueOutputSlot(ctx, s.Config.PollTimeout, &info)
	if err != nil {
		return false, ErrDevice{Stage: stageDecoder, Op: "dequeue an output slot", Err: err}
	}

	switch status {
	case types.DequeueStatusWouldBlock:
		return false, nil
	case types.DequeueStatusBuffersChanged:
		logger.Debugf(ctx, "[1] decoder output buffers changed")
		s.decoderOutput = s.Decoder.OutputBuffers(ctx)
		return true, nil
	case types.DequeueStatusFormatChanged:
		format, err := s.Decoder.OutputFormat(ctx)
		if err != nil {
			return false, ErrDevice{Stage: stageDecoder, Op: "get the output format", Err: err}
		}
		s.decoderFormat = format
		logger.Debugf(ctx, "[1] decoder output format: %s", format)
		return true, nil
	case types.DequeueStatusSlot:
	default:
		return false, ErrProtocolViolation{Stage: stageDecoder, Reason: fmt.Sprintf("unexpected dequeue status %s", status)}
	}

	if info.IsCodecConfig() {
		logger.Tracef(ctx, "[1] dropping a codec config buffer %s", info)
		if err := s.Decoder.ReleaseOutputSlot(ctx, slot, false); err != nil {
			return false, ErrDevice{Stage: stageDecoder, Op: "release an output slot", Err: err}
		}
		return true, nil
	}

	if err := s.checkSlot(stageDecoder, slot, s.decoderOutput); err != nil {
		return false, err
	}
	internal.Assert(ctx, !s.pendingSlot.IsValid(), "a decoded slot is already pending", s.pendingSlot)
	s.pendingSlot = slot
	s.pendingInfo = info
	logger.Tracef(ctx, "[1] decoded %s in slot %s", info, slot)
	return true, nil
}

// pendingToEncoder transforms the pending decoded buffer into an encoder input slot.
func (s *Scheduler) pendingToEncoder(ctx context.Context) (bool, error) {
	if !s.pendingSlot.IsValid() {
		return false, nil
	}

	slot, ok, err := s.dequeueInputSlot(ctx, stageEncoder, s.Encoder, &s.encoderInput)
	if err != nil || !ok {
		return false, err
	}

	info := s.pendingInfo
	var data []byte
	if info.Size > 0 {
		payload, err := info.Payload(s.decoderOutput[s.pendingSlot])
		if err != nil {
			return false, ErrProtocolViolation{Stage: stageDecoder, Reason: "invalid output buffer info", Err: err}
		}
		data, err = s.Config.Transform.Apply(ctx, payload)
		if err != nil {
			return false, fmt.Errorf("unable to apply %s: %w", s.Config.Transform, err)
		}
		if len(data) != len(payload) {
			return false, fmt.Errorf("%s changed the payload size from %d to %d", s.Config.Transform, len(payload), len(data))
		}
	}

	dst := s.encoderInput[slot]
	if len(data) > len(dst) {
		return false, ErrProtocolViolation{
			Stage:  stageEncoder,
			Reason: fmt.Sprintf("input buffer is too small: %d < %d", len(dst), len(data)),
		}
	}
	copy(dst, data)

	encInfo := types.BufferInfo{
		Size:                   len(data),
		PresentationTimeMicros: info.PresentationTimeMicros,
		Flags:                  info.Flags,
	}
	if err := s.Encoder.QueueInputSlot(ctx, slot, encInfo); err != nil {
		return false, ErrDevice{Stage: stageEncoder, Op: "queue an input slot", Err: err}
	}
	if err := s.Decoder.ReleaseOutputSlot(ctx, s.pendingSlot, false); err != nil {
		return false, ErrDevice{Stage: stageDecoder, Op: "release an output slot", Err: err}
	}
	logger.Tracef(ctx, "[2] moved decoder slot %s into encoder slot %s: %s", s.pendingSlot, slot, encInfo)
	s.pendingSlot = types.SlotIndexNone

	if encInfo.IsEndOfStream() {
		logger.Debugf(ctx, "[2] the end-of-stream marker reached the encoder")
		s.decodeEOS = true
	}
	if encInfo.Size > 0 {
		s.Stats.Decoded.Inc()
	}
	return true, nil
}

// encoderToMuxer writes one encoded buffer to the muxer.
func (s *Scheduler) encoderToMuxer(ctx context.Context) (bool, error) {
	if s.pipelineEOS || !s.gateOpen() {
		return false, nil
	}

	var info types.BufferInfo
	slot, status, err := s.Encoder.DequeueOutputSlot(ctx, s.Config.PollTimeout, &info)
	if err != nil {
		return false, ErrDevice{Stage: stageEncoder, Op: "dequeue an output slot", Err: err}
	}

	switch status {
	case types.DequeueStatusWouldBlock:
		return false, nil
	case types.DequeueStatusBuffersChanged:
		logger.Debugf(ctx, "[3] encoder output buffers changed")
		s.encoderOutput = s.Encoder.OutputBuffers(ctx)
		return true, nil
	case types.DequeueStatusFormatChanged:
		return true, s.registerEncoderFormat(ctx)
	case types.DequeueStatusSlot:
	default:
		return false, ErrProtocolViolation{Stage: stageEncoder, Reason: fmt.Sprintf("unexpected dequeue status %s", status)}
	}

	release := func() error {
		if err := s.Encoder.ReleaseOutputSlot(ctx, slot, false); err != nil {
			return ErrDevice{Stage: stageEncoder, Op: "release an output slot", Err: err}
		}
		return nil
	}

	if info.IsCodecConfig() {
		logger.Tracef(ctx, "[3] dropping a codec config buffer %s", info)
		return true, release()
	}

	if !s.Muxer.IsStarted() {
		return false, errors.Join(
			ErrProtocolViolation{Stage: stageMuxer, Reason: "an encoded sample is ready, but the muxer is not started", Err: muxer.ErrNotStarted},
			release(),
		)
	}

	if err := s.checkSlot(stageEncoder, slot, s.encoderOutput); err != nil {
		return false, err
	}
	payload, err := info.Payload(s.encoderOutput[slot])
	if err != nil {
		return false, errors.Join(
			ErrProtocolViolation{Stage: stageEncoder, Reason: "invalid output buffer info", Err: err},
			release(),
		)
	}

	if err := s.Muxer.WriteSample(ctx, s.trackIndex, payload, info); err != nil {
		if errors.Is(err, muxer.ErrNotStarted) {
			err = ErrProtocolViolation{Stage: stageMuxer, Reason: "write before start", Err: err}
		} else {
			err = ErrDevice{Stage: stageMuxer, Op: "write a sample", Err: err}
		}
		return false, errors.Join(err, release())
	}
	if info.Size > 0 {
		s.Stats.Encoded.Inc()
		s.Stats.Written.Inc()
		s.Stats.WrittenBytes.Add(uint64(info.Size))
	}
	logger.Tracef(ctx, "[3] wrote %s from encoder slot %s", info, slot)

	if info.IsEndOfStream() {
		logger.Debugf(ctx, "[3] the end-of-stream marker reached the muxer")
		s.pipelineEOS = true
	}
	return true, release()
}

func (s *Scheduler) registerEncoderFormat(ctx context.Context) error {
	if s.encoderFormatKnown {
		return ErrProtocolViolation{Stage: stageEncoder, Reason: "output format changed again"}
	}

	format, err := s.Encoder.OutputFormat(ctx)
	if err != nil {
		return ErrDevice{Stage: stageEncoder, Op: "get the output format", Err: err}
	}
	if format == nil {
		return ErrProtocolViolation{Stage: stageEncoder, Reason: "format changed, but no output format is set"}
	}
	dump := *format
	dump.Native = nil
	logger.Debugf(ctx, "[3] encoder output format: %s", spew.Sdump(dump))

	trackIndex, err := s.Muxer.RegisterTrack(ctx, s.Config.MediaType.Get(), format)
	if err != nil {
		return ErrDevice{Stage: stageMuxer, Op: "register a track", Err: err}
	}
	s.encoderFormat = format
	s.encoderFormatKnown = true
	s.trackIndex = trackIndex
	logger.Debugf(ctx, "[3] registered the %s track #%d; muxer started: %t", s.Config.MediaType.Get(), trackIndex, s.Muxer.IsStarted())
	return nil
}

// dequeueInputSlot asks the device for an input slot; false means it would block.
func (s *Scheduler) dequeueInputSlot(
	ctx context.Context,
	stage string,
	device CodecDevice,
	buffers *[][]byte,
) (types.SlotIndex, bool, error) {
	slot, status, err := device.DequeueInputSlot(ctx, s.Config.PollTimeout)
	if err != nil {
		return types.SlotIndexNone, false, ErrDevice{Stage: stage, Op: "dequeue an input slot", Err: err}
	}
	switch status {
	case types.DequeueStatusWouldBlock:
		return types.SlotIndexNone, false, nil
	case types.DequeueStatusSlot:
	default:
		return types.SlotIndexNone, false, ErrProtocolViolation{Stage: stage, Reason: fmt.Sprintf("unexpected input dequeue status %s", status)}
	}

	if !slot.IsValid() || int(slot) >= len(*buffers) {
		*buffers = device.InputBuffers(ctx)
	}
	if err := s.checkSlot(stage, slot, *buffers); err != nil {
		return types.SlotIndexNone, false, err
	}
	return slot, true, nil
}

func (s *Scheduler) checkSlot(stage string, slot types.SlotIndex, buffers [][]byte) error {
	if !slot.IsValid() || int(slot) >= len(buffers) {
		return ErrProtocolViolation{
			Stage:  stage,
			Reason: fmt.Sprintf("slot %s is out of the buffer pool of size %d", slot, len(buffers)),
		}
	}
	return nil
}
