package trip

import (
	"context"
	"sync"
	"time"

	"fleet-tracking-system/models"
)

// DeviceGeolocator is a Geolocator fed from outside: the driver's browser
// pushes its permission state, fixes and fix errors, and the geolocator
// hands them to pending requests and live watches.
type DeviceGeolocator struct {
	now func() time.Time

	mu         sync.Mutex
	permission PermissionState
	last       *models.PositionFix
	waiters    map[chan deviceResult]struct{}
	watches    map[int]*deviceWatch
	nextID     int
}

type deviceResult struct {
	fix models.PositionFix
	err error
}

func NewDeviceGeolocator() *DeviceGeolocator {
	return &DeviceGeolocator{
		now:        time.Now,
		permission: PermissionPrompt,
		waiters:    make(map[chan deviceResult]struct{}),
		watches:    make(map[int]*deviceWatch),
	}
}

func (d *DeviceGeolocator) Permission(context.Context) (PermissionState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.permission, nil
}

// SetPermission records the browser's permission state. Revoking it fails
// any pending position request.
func (d *DeviceGeolocator) SetPermission(p PermissionState) {
	d.mu.Lock()
	d.permission = p
	var waiters []chan deviceResult
	if p == PermissionDenied {
		waiters = d.takeWaiters()
	}
	d.mu.Unlock()

	for _, w := range waiters {
		w <- deviceResult{err: &PositionError{Code: CodePermissionDenied}}
	}
}

// PushFix delivers a fix from the device. A fix implies granted permission.
func (d *DeviceGeolocator) PushFix(fix models.PositionFix) {
	if fix.Timestamp.IsZero() {
		fix.Timestamp = d.now()
	}

	d.mu.Lock()
	d.permission = PermissionGranted
	d.last = &fix
	waiters := d.takeWaiters()
	watches := d.liveWatches()
	d.mu.Unlock()

	for _, w := range waiters {
		w <- deviceResult{fix: fix}
	}
	for _, w := range watches {
		w.deliver(fix)
	}
}

// PushError reports a failed fix on the device.
func (d *DeviceGeolocator) PushError(code ErrorCode) {
	err := &PositionError{Code: code}

	d.mu.Lock()
	if code == CodePermissionDenied {
		d.permission = PermissionDenied
	}
	waiters := d.takeWaiters()
	watches := d.liveWatches()
	d.mu.Unlock()

	for _, w := range waiters {
		w <- deviceResult{err: err}
	}
	for _, w := range watches {
		w.fail(err)
	}
}

// CurrentPosition returns the last fix if it is no older than
// opts.MaximumAge, otherwise it waits up to opts.Timeout for the next one.
func (d *DeviceGeolocator) CurrentPosition(ctx context.Context, opts PositionOptions) (models.PositionFix, error) {
	d.mu.Lock()
	if d.permission == PermissionDenied {
		d.mu.Unlock()
		return models.PositionFix{}, &PositionError{Code: CodePermissionDenied}
	}
	if d.last != nil && opts.MaximumAge > 0 && d.now().Sub(d.last.Timestamp) <= opts.MaximumAge {
		fix := *d.last
		d.mu.Unlock()
		return fix, nil
	}
	ch := make(chan deviceResult, 1)
	d.waiters[ch] = struct{}{}
	d.mu.Unlock()

	var timeout <-chan time.Time
	if opts.Timeout > 0 {
		t := time.NewTimer(opts.Timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case res := <-ch:
		return res.fix, res.err
	case <-timeout:
		d.dropWaiter(ch)
		return models.PositionFix{}, &PositionError{Code: CodeTimeout}
	case <-ctx.Done():
		d.dropWaiter(ch)
		return models.PositionFix{}, ctx.Err()
	}
}

func (d *DeviceGeolocator) Watch(opts PositionOptions, onFix func(models.PositionFix), onErr func(error)) (Watch, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.permission == PermissionDenied {
		return nil, &PositionError{Code: CodePermissionDenied}
	}
	w := &deviceWatch{
		id:      d.nextID,
		owner:   d,
		onFix:   onFix,
		onErr:   onErr,
		timeout: opts.Timeout,
	}
	d.nextID++
	d.watches[w.id] = w
	w.arm()
	return w, nil
}

// Watches reports how many watches are live.
func (d *DeviceGeolocator) Watches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.watches)
}

func (d *DeviceGeolocator) takeWaiters() []chan deviceResult {
	out := make([]chan deviceResult, 0, len(d.waiters))
	for ch := range d.waiters {
		out = append(out, ch)
		delete(d.waiters, ch)
	}
	return out
}

func (d *DeviceGeolocator) dropWaiter(ch chan deviceResult) {
	d.mu.Lock()
	delete(d.waiters, ch)
	d.mu.Unlock()
}

func (d *DeviceGeolocator) liveWatches() []*deviceWatch {
	out := make([]*deviceWatch, 0, len(d.watches))
	for _, w := range d.watches {
		out = append(out, w)
	}
	return out
}

// deviceWatch reports a timeout error whenever no fix has arrived within its
// timeout, as a browser watch does.
type deviceWatch struct {
	id      int
	owner   *DeviceGeolocator
	onFix   func(models.PositionFix)
	onErr   func(error)
	timeout time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	canceled bool
}

func (w *deviceWatch) arm() {
	if w.timeout <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.canceled {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.timeout, func() {
		w.fail(&PositionError{Code: CodeTimeout})
		w.arm()
	})
}

func (w *deviceWatch) deliver(fix models.PositionFix) {
	if w.isCanceled() {
		return
	}
	w.arm()
	if w.onFix != nil {
		w.onFix(fix)
	}
}

func (w *deviceWatch) fail(err error) {
	if w.isCanceled() || w.onErr == nil {
		return
	}
	w.onErr(err)
}

func (w *deviceWatch) isCanceled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.canceled
}

func (w *deviceWatch) Cancel() {
	w.mu.Lock()
	w.canceled = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	w.owner.mu.Lock()
	delete(w.owner.watches, w.id)
	w.owner.mu.Unlock()
}
