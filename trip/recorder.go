package trip

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"fleet-tracking-system/models"
)

var (
	ErrTripActive    = errors.New("trip already active")
	ErrStartPending  = errors.New("trip start already in progress")
	ErrTripNotActive = errors.New("no active trip")
)

// VehicleUpdater receives the driver's fixes and trip status. fleet.Store
// satisfies it.
type VehicleUpdater interface {
	ApplyFix(id string, fix models.PositionFix) error
	SetStatus(id string, status models.VehicleStatus) error
}

// Publisher forwards recorded fixes to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, ev models.LocationEvent) error
}

type State int

const (
	Inactive State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "inactive"
}

type Status struct {
	VehicleID     string              `json:"vehicle_id"`
	State         string              `json:"state"`
	Permission    PermissionState     `json:"permission"`
	StartedAt     *time.Time          `json:"started_at,omitempty"`
	Elapsed       string              `json:"elapsed,omitempty"`
	Current       *models.PositionFix `json:"current,omitempty"`
	Error         string              `json:"error,omitempty"`
	HistoryLength int                 `json:"history_length"`
}

// Recorder is the trip state machine for one driver's vehicle.
//
// Every watch is tagged with the generation current when it was registered.
// Stop bumps the generation while holding deliverMu, so once Stop returns no
// fix from the cancelled watch reaches the updater or the publisher.
type Recorder struct {
	vehicleID string
	geo       Geolocator
	updater   VehicleUpdater
	pub       Publisher
	logger    *slog.Logger
	now       func() time.Time
	reqOpts   PositionOptions
	watchOpts PositionOptions

	deliverMu  sync.Mutex
	mu         sync.Mutex
	state      State
	starting   bool
	permission PermissionState
	startedAt  time.Time
	current    *models.PositionFix
	errMsg     string
	history    *History
	watch      Watch
	gen        uint64
}

type Option func(*Recorder)

func WithPublisher(p Publisher) Option { return func(r *Recorder) { r.pub = p } }

func WithLogger(l *slog.Logger) Option { return func(r *Recorder) { r.logger = l } }

func WithClock(now func() time.Time) Option { return func(r *Recorder) { r.now = now } }

func WithHistoryLimit(n int) Option { return func(r *Recorder) { r.history = NewHistory(n) } }

func WithPositionOptions(request, watch PositionOptions) Option {
	return func(r *Recorder) {
		r.reqOpts = request
		r.watchOpts = watch
	}
}

func NewRecorder(vehicleID string, geo Geolocator, updater VehicleUpdater, opts ...Option) *Recorder {
	r := &Recorder{
		vehicleID:  vehicleID,
		geo:        geo,
		updater:    updater,
		logger:     slog.Default(),
		now:        time.Now,
		reqOpts:    RequestOptions,
		watchOpts:  WatchOptions,
		permission: PermissionPrompt,
		history:    NewHistory(DefaultHistoryLimit),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// CheckPermission copies the geolocator's permission state into the recorder.
func (r *Recorder) CheckPermission(ctx context.Context) (PermissionState, error) {
	p, err := r.geo.Permission(ctx)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.permission = p
	r.mu.Unlock()
	return p, nil
}

// Start begins a trip. Without granted permission it first makes a single
// position request; a failure there leaves the trip inactive with a
// categorized error message.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state == Active {
		r.mu.Unlock()
		return ErrTripActive
	}
	if r.starting {
		r.mu.Unlock()
		return ErrStartPending
	}
	r.starting = true
	granted := r.permission == PermissionGranted
	r.mu.Unlock()

	if !granted {
		fix, err := r.geo.CurrentPosition(ctx, r.reqOpts)
		if err != nil {
			r.mu.Lock()
			r.starting = false
			r.errMsg = userMessage(err)
			var pe *PositionError
			if errors.As(err, &pe) && pe.Code == CodePermissionDenied {
				r.permission = PermissionDenied
			}
			r.mu.Unlock()
			r.logger.Warn("location permission request failed",
				slog.String("vehicle_id", r.vehicleID), slog.String("error", err.Error()))
			return err
		}
		r.mu.Lock()
		r.permission = PermissionGranted
		r.current = &fix
		r.mu.Unlock()
	}

	r.mu.Lock()
	r.starting = false
	r.gen++
	gen := r.gen
	r.state = Active
	r.startedAt = r.now()
	r.errMsg = ""
	r.mu.Unlock()

	w, err := r.geo.Watch(r.watchOpts,
		func(fix models.PositionFix) { r.onFix(gen, fix) },
		func(err error) { r.onWatchError(gen, err) })
	if err != nil {
		r.mu.Lock()
		if r.gen == gen {
			r.state = Inactive
			r.startedAt = time.Time{}
			r.errMsg = userMessage(err)
		}
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	if r.gen != gen {
		// Stopped while the watch was being registered.
		r.mu.Unlock()
		w.Cancel()
		return ErrTripNotActive
	}
	r.watch = w
	r.mu.Unlock()

	if err := r.updater.SetStatus(r.vehicleID, models.StatusActive); err != nil {
		r.logger.Warn("set vehicle active", slog.String("vehicle_id", r.vehicleID), slog.String("error", err.Error()))
	}
	r.logger.Info("trip started", slog.String("vehicle_id", r.vehicleID))
	return nil
}

// Stop ends the trip. Stopping an inactive trip is a no-op.
func (r *Recorder) Stop() {
	r.deliverMu.Lock()
	r.mu.Lock()
	if r.state != Active {
		r.mu.Unlock()
		r.deliverMu.Unlock()
		return
	}
	r.gen++
	r.state = Inactive
	r.startedAt = time.Time{}
	w := r.watch
	r.watch = nil
	r.mu.Unlock()
	r.deliverMu.Unlock()

	if w != nil {
		w.Cancel()
	}
	if err := r.updater.SetStatus(r.vehicleID, models.StatusOffline); err != nil {
		r.logger.Warn("set vehicle offline", slog.String("vehicle_id", r.vehicleID), slog.String("error", err.Error()))
	}
	r.logger.Info("trip stopped", slog.String("vehicle_id", r.vehicleID))
}

func (r *Recorder) onFix(gen uint64, fix models.PositionFix) {
	if fix.Timestamp.IsZero() {
		fix.Timestamp = r.now()
	}

	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	r.mu.Lock()
	if r.gen != gen || r.state != Active {
		r.mu.Unlock()
		return
	}
	r.current = &fix
	r.history.Append(models.LocationHistoryEntry{
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Timestamp: r.now(),
	})
	r.mu.Unlock()

	if err := r.updater.ApplyFix(r.vehicleID, fix); err != nil {
		r.logger.Warn("apply fix", slog.String("vehicle_id", r.vehicleID), slog.String("error", err.Error()))
	}
	if r.pub == nil {
		return
	}
	ev := models.LocationEvent{
		VehicleID: r.vehicleID,
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Accuracy:  fix.Accuracy,
		Timestamp: fix.Timestamp,
	}
	if err := r.pub.Publish(context.Background(), ev); err != nil {
		r.logger.Warn("publish location", slog.String("vehicle_id", r.vehicleID), slog.String("error", err.Error()))
	}
}

func (r *Recorder) onWatchError(gen uint64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen || r.state != Active {
		return
	}
	r.errMsg = msgWatchFailed
	r.logger.Warn("location watch error", slog.String("vehicle_id", r.vehicleID), slog.String("error", err.Error()))
}

func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == Active
}

func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{
		VehicleID:     r.vehicleID,
		State:         r.state.String(),
		Permission:    r.permission,
		Error:         r.errMsg,
		HistoryLength: r.history.Len(),
	}
	if r.state == Active {
		started := r.startedAt
		st.StartedAt = &started
		st.Elapsed = FormatElapsed(r.now().Sub(started))
	}
	if r.current != nil {
		c := *r.current
		st.Current = &c
	}
	return st
}

func (r *Recorder) History() []models.LocationHistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history.Entries()
}
