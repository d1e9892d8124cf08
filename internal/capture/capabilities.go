// Package capture orchestrates the verified-capture pipeline: liveness
// verification, confirmatory site photograph and location acquisition,
// producing one immutable attendance event.
package capture

import (
	"context"
	"errors"
	"image"
)

// ErrCameraCancelled is returned by a Camera when the user dismisses the
// capture UI. The pipeline treats it as a whole-attempt abort.
var ErrCameraCancelled = errors.New("camera capture cancelled by user")

// ExpressionHappy is the expression key the liveness check scores against.
const ExpressionHappy = "happy"

// FrameSource yields successive video frames from the front-facing camera
// preview. NextFrame blocks until a frame is available or ctx is done.
type FrameSource interface {
	NextFrame(ctx context.Context) (image.Image, error)
}

// Detection is one detected face region with classified expression scores in
// the range [0, 1].
type Detection struct {
	Box         image.Rectangle
	Expressions map[string]float64
}

// Score returns the classified score of one expression, zero when absent.
func (d Detection) Score(expression string) float64 {
	return d.Expressions[expression]
}

// FaceDetector runs face-region detection and landmark/expression
// classification on a single frame. An empty result means no face was found;
// that is not an error.
type FaceDetector interface {
	Detect(ctx context.Context, frame image.Image) ([]Detection, error)
}

// Camera invokes the device camera for a single confirmatory capture.
// Implementations return ErrCameraCancelled when the user backs out.
type Camera interface {
	Capture(ctx context.Context) (image.Image, error)
}

// Position is one geolocation fix.
type Position struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64 // meters, 0 when the platform does not report it
}

// PositionOptions mirror the platform geolocation request options.
type PositionOptions struct {
	HighAccuracy bool
}

// Locator acquires the current device position. The pipeline bounds the wait
// through ctx; implementations must honor cancellation.
type Locator interface {
	CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error)
}

// Capabilities bundles the device integrations the pipeline consumes. All
// four are collaborator interfaces owned by the embedding platform shell.
type Capabilities struct {
	Frames   FrameSource
	Detector FaceDetector
	Camera   Camera
	Locator  Locator
}
