package transform

import (
	"bytes"
	"context"
)

type Identity struct{}

var _ Transform = Identity{}

func (Identity) String() string {
	return "Identity"
}

func (Identity) Apply(_ context.Context, src []byte) ([]byte, error) {
	return bytes.Clone(src), nil
}
