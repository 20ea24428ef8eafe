package recorder

import "context"

// Capture is an in-progress recording on the device.
type Capture interface {
	Pause() error
	Resume() error
	// Level reports the current input amplitude in [0,1].
	Level() float64
	// Finish stops capture and returns the local URI of the artifact.
	Finish(ctx context.Context) (string, error)
	// Abort stops capture and deletes anything written.
	Abort() error
}

// Device starts captures. Start fails when the microphone is unavailable or
// permission was denied.
type Device interface {
	Start(ctx context.Context) (Capture, error)
}

// DeviceFunc adapts a function to Device.
type DeviceFunc func(ctx context.Context) (Capture, error)

func (f DeviceFunc) Start(ctx context.Context) (Capture, error) {
	return f(ctx)
}
