package avpump

import (
	"context"
	"sync"

	"github.com/xaionaro-go/avpump/logger"
)

type closeChan struct {
	name      string
	closeOnce sync.Once
	c         chan struct{}
}

func newCloseChan(name string) *closeChan {
	return &closeChan{
		name: name,
		c:    make(chan struct{}),
	}
}

func (c *closeChan) Chan() <-chan struct{} {
	return c.c
}

func (c *closeChan) Close(ctx context.Context) {
	c.closeOnce.Do(func() {
		logger.Debugf(ctx, "closing the '%s' chan", c.name)
		close(c.c)
	})
}

func (c *closeChan) IsClosed() bool {
	select {
	case <-c.c:
		return true
	default:
		return false
	}
}
