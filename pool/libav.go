package pool

import (
	"github.com/asticode/go-astiav"
)

var (
	Packets = NewPool(
		astiav.AllocPacket,
		func(p *astiav.Packet) { p.Unref() },
		func(p *astiav.Packet) { p.Free() },
	)
	Frames = NewPool(
		astiav.AllocFrame,
		func(f *astiav.Frame) { f.Unref() },
		func(f *astiav.Frame) { f.Free() },
	)
)
