//go:build !(linux && cgo)

package capture

import (
	"context"
	"fmt"

	"github.com/Erikcwill/sussuros-foundry/internal/core"
)

// Microphone has no hardware backend on this platform; capture always fails
// and sessions stay receive-only (mediadevices drivers are wired on Linux).
type Microphone struct{}

func NewMicrophone() (*Microphone, error) {
	return &Microphone{}, nil
}

func (m *Microphone) Capture(ctx context.Context) (core.MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: no capture backend on this platform", core.ErrDeviceUnavailable)
}
