// Package capture provides the single-flight attendance capture state machine.
package capture

import (
	"bytes"
	"context"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	apperrors "github.com/fieldclock/fieldclock/internal/errors"
	"github.com/fieldclock/fieldclock/internal/logging"
	"github.com/fieldclock/fieldclock/internal/models"
	"github.com/fieldclock/fieldclock/internal/status"
	"github.com/fieldclock/fieldclock/internal/store"
)

// State is one step of the capture pipeline.
type State string

const (
	StateIdle             State = "Idle"
	StateSiteSelected     State = "SiteSelected"
	StateLivenessCheck    State = "LivenessCheck"
	StateFaceAccepted     State = "FaceAccepted"
	StateSitePhotoCapture State = "SitePhotoCapture"
	StateGeotagging       State = "Geotagging"
	StatePersisted        State = "Persisted"
	StateAborted          State = "Aborted"
)

// timestampLayout renders an ISO-8601 instant with millisecond precision,
// matching what the remote schema stores.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Config holds the tunable constants of the pipeline.
type Config struct {
	// SampleInterval is the video-frame sampling period of the liveness check.
	SampleInterval time.Duration
	// HappyThreshold is the expression score above which a frame is accepted.
	HappyThreshold float64
	// LocationTimeout bounds the wait for a high-accuracy location fix.
	LocationTimeout time.Duration
	// PhotoQuality is the JPEG quality both photos are encoded at.
	PhotoQuality int
}

// withDefaults fills zero fields with the values the original capture flow
// used: 500ms sampling, 0.7 acceptance threshold, 10s location wait, JPEG 70.
func (c Config) withDefaults() Config {
	if c.SampleInterval <= 0 {
		c.SampleInterval = 500 * time.Millisecond
	}
	if c.HappyThreshold <= 0 {
		c.HappyThreshold = 0.7
	}
	if c.LocationTimeout <= 0 {
		c.LocationTimeout = 10 * time.Second
	}
	if c.PhotoQuality <= 0 {
		c.PhotoQuality = 70
	}
	return c
}

// Pipeline is the cooperative capture state machine. At most one run is in
// flight at a time; between Idle and Persisted it produces at most one event
// and writes nothing to the store before the final insert.
type Pipeline struct {
	store store.EventStore
	caps  Capabilities
	cfg   Config
	log   *logging.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

// New creates a capture pipeline over an owned event store and the device
// capabilities of the embedding shell.
func New(eventStore store.EventStore, caps Capabilities, cfg Config) *Pipeline {
	return &Pipeline{
		store: eventStore,
		caps:  caps,
		cfg:   cfg.withDefaults(),
		log:   logging.Get().WithComponent("capture"),
		state: StateIdle,
	}
}

// State returns the current pipeline state for display.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Cancel aborts the run in flight, if any. Safe to call at any time; the
// machine discards all pipeline-local capture data and returns to Idle.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

// Run executes one capture attempt end to end: liveness check, site photo,
// geotag, persist. It refuses to start without a resolvable identity and a
// non-empty site selection, and refuses while another run is in flight.
// On any failure the whole attempt aborts and the store is left untouched.
func (p *Pipeline) Run(ctx context.Context, identity models.Identity, site models.Site) (*models.AttendanceEvent, error) {
	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrValidation, "capture already in progress")
	}
	if identity.ID == "" {
		p.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrValidation, "no resolvable identity")
	}
	if site.ID == "" || site.Name == "" {
		p.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrValidation, "no site selected")
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.state = StateSiteSelected
	p.mu.Unlock()

	event, err := p.run(runCtx, identity, site)

	cancel()
	p.mu.Lock()
	p.state = StateIdle
	p.cancel = nil
	p.mu.Unlock()

	return event, err
}

// run drives the state transitions after SiteSelected. Captured data lives
// only in locals until the single insert at the end.
func (p *Pipeline) run(ctx context.Context, identity models.Identity, site models.Site) (*models.AttendanceEvent, error) {
	p.setState(StateLivenessCheck)
	frame, err := p.awaitLiveFace(ctx)
	if err != nil {
		return nil, p.abort(err)
	}

	p.setState(StateFaceAccepted)
	facePhoto, err := p.encodeJPEG(frame)
	if err != nil {
		return nil, p.abort(apperrors.Wrap(apperrors.ErrCapture, "failed to encode face photo", err))
	}

	p.setState(StateSitePhotoCapture)
	siteImage, err := p.caps.Camera.Capture(ctx)
	if err != nil {
		return nil, p.abort(apperrors.Wrap(apperrors.ErrCapture, "site photo capture failed", err))
	}
	sitePhoto, err := p.encodeJPEG(siteImage)
	if err != nil {
		return nil, p.abort(apperrors.Wrap(apperrors.ErrCapture, "failed to encode site photo", err))
	}

	p.setState(StateGeotagging)
	locCtx, locCancel := context.WithTimeout(ctx, p.cfg.LocationTimeout)
	position, err := p.caps.Locator.CurrentPosition(locCtx, PositionOptions{HighAccuracy: true})
	locCancel()
	if err != nil {
		return nil, p.abort(apperrors.Wrap(apperrors.ErrLocation, "failed to acquire location fix", err))
	}

	// Kind is derived against the store at assembly time, not at pipeline
	// start, to minimize staleness. It is never accepted as external input.
	last, err := p.store.LastEvent(identity.ID)
	if err != nil {
		return nil, p.abort(err)
	}
	next := status.Derive(last).NextKind

	event := &models.AttendanceEvent{
		IdentityID:    identity.ID,
		IdentityLabel: identity.Label,
		SiteID:        site.ID,
		SiteLabel:     site.Name,
		OccurredAt:    time.Now().UTC().Format(timestampLayout),
		Kind:          next,
		Latitude:      position.Latitude,
		Longitude:     position.Longitude,
		FacePhoto:     facePhoto,
		SitePhoto:     sitePhoto,
		SyncState:     models.SyncPending,
	}

	if _, err := p.store.Insert(event); err != nil {
		return nil, p.abort(err)
	}

	p.setState(StatePersisted)
	p.log.Info("attendance event persisted", map[string]interface{}{
		"local_id": event.LocalID,
		"identity": event.IdentityID,
		"kind":     string(event.Kind),
	})
	return event, nil
}

// awaitLiveFace samples frames on the configured interval until the first
// detected face scores above the happy threshold. There is no automatic
// timeout; the loop runs until acceptance or cancellation. The first
// qualifying frame wins and sampling stops immediately.
func (p *Pipeline) awaitLiveFace(ctx context.Context) (image.Image, error) {
	ticker := time.NewTicker(p.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, apperrors.Wrap(apperrors.ErrCapture, "capture cancelled", ctx.Err())
		case <-ticker.C:
		}

		frame, err := p.caps.Frames.NextFrame(ctx)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCapture, "frame source failed", err)
		}

		detections, err := p.caps.Detector.Detect(ctx, frame)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCapture, "face detection failed", err)
		}
		if len(detections) == 0 {
			continue
		}

		best := detections[0]
		if best.Score(ExpressionHappy) > p.cfg.HappyThreshold {
			return frame, nil
		}
	}
}

// encodeJPEG compresses a captured image for local persistence.
func (p *Pipeline) encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.cfg.PhotoQuality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// abort records the absorbing Aborted state and surfaces the cause. All
// pipeline-local capture data is discarded by the caller returning.
func (p *Pipeline) abort(err error) error {
	p.setState(StateAborted)
	p.log.Warn("capture aborted", map[string]interface{}{
		"code":  string(apperrors.CodeOf(err)),
		"cause": err.Error(),
	})
	return err
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}
