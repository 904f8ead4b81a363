package server

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/session"
)

// DefaultJPEGQuality is used when the dashboard is created with quality 0.
const DefaultJPEGQuality = 80

// subscriberBuffer is how many statuses a slow subscriber may lag behind before
// updates are dropped for it.
const subscriberBuffer = 16

// Dashboard is the browser-facing session.Display. It keeps the latest
// annotated frame as JPEG and fans statuses out to subscribers.
type Dashboard struct {
	quality int

	mu        sync.RWMutex
	jpeg      []byte
	seq       uint64
	frameCh   chan struct{}
	status    session.Status
	hasStatus bool
	subs      map[chan session.Status]struct{}
}

// NewDashboard creates a Dashboard encoding frames at the given JPEG quality.
func NewDashboard(quality int) *Dashboard {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &Dashboard{
		quality: quality,
		frameCh: make(chan struct{}),
		subs:    make(map[chan session.Status]struct{}),
	}
}

// ShowFrame encodes frame as JPEG and publishes it to stream clients.
// The Mat is not retained.
func (d *Dashboard) ShowFrame(frame *gocv.Mat) {
	if frame == nil || frame.Empty() {
		return
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *frame, []int{int(gocv.IMWriteJpegQuality), d.quality})
	if err != nil {
		logging.Named("dashboard").Warnw("jpeg encode failed", "error", err)
		return
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	d.mu.Lock()
	d.jpeg = data
	d.seq++
	close(d.frameCh)
	d.frameCh = make(chan struct{})
	d.mu.Unlock()
}

// ShowStatus records status as the latest and forwards it to subscribers.
// Subscribers that are not keeping up miss updates rather than blocking the loop.
func (d *Dashboard) ShowStatus(status session.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.status = status
	d.hasStatus = true
	for ch := range d.subs {
		select {
		case ch <- status:
		default:
		}
	}
}

// Status returns the latest status, if any was shown.
func (d *Dashboard) Status() (session.Status, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status, d.hasStatus
}

// Frame returns the latest JPEG, its sequence number and a channel closed when
// a newer frame arrives. The sequence is zero before the first frame.
func (d *Dashboard) Frame() ([]byte, uint64, <-chan struct{}) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.jpeg, d.seq, d.frameCh
}

// Subscribe registers for status updates. The returned cancel func must be
// called to unregister; it closes the channel.
func (d *Dashboard) Subscribe() (<-chan session.Status, func()) {
	ch := make(chan session.Status, subscriberBuffer)

	d.mu.Lock()
	d.subs[ch] = struct{}{}
	d.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, ch)
			d.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the number of active status subscribers.
func (d *Dashboard) Subscribers() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}
