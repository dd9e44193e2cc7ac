// slot.go defines the slot handles and dequeue outcomes of the buffer-exchange contract.

package types

import (
	"fmt"
)

// SlotIndex is a handle into a device buffer pool. It is only valid between
// its dequeue and the matching queue/release call.
type SlotIndex int

const SlotIndexNone = SlotIndex(-1)

func (s SlotIndex) IsValid() bool {
	return s >= 0
}

func (s SlotIndex) String() string {
	if !s.IsValid() {
		return "none"
	}
	return fmt.Sprintf("#%d", int(s))
}

type DequeueStatus int

const (
	UndefinedDequeueStatus = DequeueStatus(iota)
	DequeueStatusSlot
	DequeueStatusWouldBlock
	DequeueStatusBuffersChanged
	DequeueStatusFormatChanged
	EndOfDequeueStatus
)

func (s DequeueStatus) String() string {
	switch s {
	case UndefinedDequeueStatus:
		return "<undefined>"
	case DequeueStatusSlot:
		return "slot"
	case DequeueStatusWouldBlock:
		return "would_block"
	case DequeueStatusBuffersChanged:
		return "buffers_changed"
	case DequeueStatusFormatChanged:
		return "format_changed"
	default:
		return fmt.Sprintf("DequeueStatus(%d)", int(s))
	}
}
