package realtime

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mailpipe/internal/constants"
	"mailpipe/internal/metrics"
	"mailpipe/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Sink is the write side of one push connection. Implementations must be
// safe to call from the registry's goroutines; a returned error means the
// transport is broken and the connection will be removed.
type Sink interface {
	Send(event models.Event) error
	Close() error
}

// Connection represents one open push channel owned by a fingerprint.
type Connection struct {
	ID          string
	Fingerprint string
	CreatedAt   time.Time

	sink     Sink
	lastSeen time.Time
}

// Config controls registry timing and buffer sizes.
type Config struct {
	KeepAlive         time.Duration
	ConnectionTimeout time.Duration
	SweepInterval     time.Duration
	ProgressTTL       time.Duration
	EventLogSize      int
}

// DefaultConfig returns the default registry timings.
func DefaultConfig() Config {
	return Config{
		KeepAlive:         constants.DefaultKeepAliveSec * time.Second,
		ConnectionTimeout: constants.DefaultConnectionTimeoutSec * time.Second,
		SweepInterval:     constants.DefaultSweepIntervalSec * time.Second,
		ProgressTTL:       constants.DefaultProgressTTLSec * time.Second,
		EventLogSize:      constants.DefaultEventLogSize,
	}
}

type loggedEvent struct {
	event models.Event
	at    time.Time
}

type operation struct {
	data        models.Progress
	completedAt time.Time
}

// Registry multiplexes push connections by fingerprint and owns the shared
// event source behind both the push and the polling delivery paths. All table
// access is serialized by one mutex; sends happen under it, which also gives
// FIFO ordering per connection.
type Registry struct {
	mu     sync.Mutex
	conns  map[string]*Connection
	events map[string][]loggedEvent
	ops    map[string]map[string]*operation

	cfg    Config
	logger *logrus.Logger
	now    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a registry; Start must be called to run the keep-alive
// and liveness sweep tasks.
func NewRegistry(cfg Config, logger *logrus.Logger) *Registry {
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = constants.DefaultKeepAliveSec * time.Second
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = constants.DefaultConnectionTimeoutSec * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = constants.DefaultSweepIntervalSec * time.Second
	}
	if cfg.ProgressTTL <= 0 {
		cfg.ProgressTTL = constants.DefaultProgressTTLSec * time.Second
	}
	if cfg.EventLogSize <= 0 {
		cfg.EventLogSize = constants.DefaultEventLogSize
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		conns:  make(map[string]*Connection),
		events: make(map[string][]loggedEvent),
		ops:    make(map[string]map[string]*operation),
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Start launches the keep-alive and sweep tasks. They stop when ctx is
// cancelled or Stop is called.
func (r *Registry) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(2)
	go r.keepAliveLoop(ctx)
	go r.sweepLoop(ctx)
}

// Stop cancels the background tasks and drains every connection.
func (r *Registry) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, conn := range r.conns {
		_ = conn.sink.Close()
		delete(r.conns, id)
	}
	metrics.SetGauge("realtime_connections", 0, nil, "Open push connections")
}

// Subscribe registers a new push connection for a fingerprint and immediately
// emits a connected event on it.
func (r *Registry) Subscribe(fingerprint string, sink Sink) (*Connection, error) {
	now := r.now()
	conn := &Connection{
		ID:          fmt.Sprintf("%s-%d-%s", fingerprint, now.UnixMilli(), uuid.NewString()[:8]),
		Fingerprint: fingerprint,
		CreatedAt:   now,
		sink:        sink,
		lastSeen:    now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	connected := r.newEvent(models.EventConnected)
	connected.Message = "connection established"
	if err := sink.Send(connected); err != nil {
		_ = sink.Close()
		return nil, err
	}

	r.conns[conn.ID] = conn
	metrics.SetGauge("realtime_connections", float64(len(r.conns)), nil, "Open push connections")
	r.logger.WithFields(logrus.Fields{
		"connection_id": conn.ID,
		"fingerprint":   fingerprint,
	}).Debug("Push connection subscribed")
	return conn, nil
}

// Unsubscribe removes a connection and closes its transport. Unknown ids are
// ignored.
func (r *Registry) Unsubscribe(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(id, "unsubscribed")
}

// Touch refreshes a connection's liveness on inbound traffic.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.conns[id]; ok {
		conn.lastSeen = r.now()
	}
}

// NotifyEmail records a new-mail notification for the fingerprint and pushes
// it to every live connection. The event is recorded even with zero live
// connections so a polling client can still observe it.
func (r *Registry) NotifyEmail(fingerprint string, notification models.EmailNotification) int {
	ev := r.newEvent(models.EventEmailReceived)
	ev.Data = notification

	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordLocked(fingerprint, ev)
	return r.broadcastLocked(fingerprint, ev)
}

// Broadcast delivers an event to every live connection owned by fingerprint
// and returns the number of successful deliveries. Broken connections are
// removed without failing the call; an unknown fingerprint delivers zero.
func (r *Registry) Broadcast(fingerprint string, ev models.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.broadcastLocked(fingerprint, ev)
}

// BroadcastSystem delivers a system notification to every open connection.
func (r *Registry) BroadcastSystem(notification models.SystemNotification) int {
	ev := r.newEvent(models.EventSystemNotification)
	ev.Data = notification

	r.mu.Lock()
	defer r.mu.Unlock()

	sent := 0
	for _, conn := range r.snapshotLocked("") {
		if r.sendLocked(conn, ev) {
			sent++
		}
	}
	return sent
}

// UpdateProgress upserts the progress record for (fingerprint, operation) and
// pushes it to live connections. Completed records self-expire a fixed delay
// after reaching 100. Returns the number of connections notified.
func (r *Registry) UpdateProgress(fingerprint string, p models.Progress) int {
	if p.Timestamp == 0 {
		p.Timestamp = r.now().UnixMilli()
	}

	ev := r.newEvent(models.EventProgress)
	ev.Data = p

	r.mu.Lock()
	defer r.mu.Unlock()

	byOp, ok := r.ops[fingerprint]
	if !ok {
		byOp = make(map[string]*operation)
		r.ops[fingerprint] = byOp
	}
	entry := &operation{data: p}
	if p.Progress >= 100 {
		entry.completedAt = r.now()
	}
	byOp[p.Operation] = entry

	return r.broadcastLocked(fingerprint, ev)
}

// ActiveOperations returns the current progress records for a fingerprint,
// newest first.
func (r *Registry) ActiveOperations(fingerprint string) []models.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Progress
	for _, op := range r.ops[fingerprint] {
		out = append(out, op.data)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out
}

// Poll returns the single most relevant pending event for a fingerprint: the
// newest mail notification recorded after since, else the newest progress
// record, else nothing. The result is what a push subscriber would have
// received, sampled rather than streamed.
func (r *Registry) Poll(fingerprint string, since time.Time) (*models.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	log := r.events[fingerprint]
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].at.After(since) {
			ev := log[i].event
			return &ev, true
		}
	}

	var latest *operation
	for _, op := range r.ops[fingerprint] {
		if latest == nil || op.data.Timestamp > latest.data.Timestamp {
			latest = op
		}
	}
	if latest != nil {
		ev := r.newEvent(models.EventProgress)
		ev.Data = latest.data
		return &ev, true
	}

	return nil, false
}

// ConnectionCount returns the number of open push connections.
func (r *Registry) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// ConnectionsFor returns the number of open connections for one fingerprint.
func (r *Registry) ConnectionsFor(fingerprint string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, conn := range r.conns {
		if conn.Fingerprint == fingerprint {
			n++
		}
	}
	return n
}

func (r *Registry) keepAliveLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pingAll()
		}
	}
}

func (r *Registry) pingAll() {
	ping := r.newEvent(models.EventPing)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conn := range r.snapshotLocked("") {
		if r.sendLocked(conn, ping) {
			conn.lastSeen = r.now()
		}
	}
}

func (r *Registry) sweepLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep removes connections that have not been refreshed within the liveness
// timeout and expires completed progress records. It bounds memory growth
// from clients whose disconnect was never observed.
func (r *Registry) Sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for id, conn := range r.conns {
		if now.Sub(conn.lastSeen) > r.cfg.ConnectionTimeout {
			r.removeLocked(id, "liveness timeout")
		}
	}

	for fingerprint, byOp := range r.ops {
		for name, op := range byOp {
			if !op.completedAt.IsZero() && now.Sub(op.completedAt) > r.cfg.ProgressTTL {
				delete(byOp, name)
			}
		}
		if len(byOp) == 0 {
			delete(r.ops, fingerprint)
		}
	}
}

func (r *Registry) broadcastLocked(fingerprint string, ev models.Event) int {
	sent := 0
	for _, conn := range r.snapshotLocked(fingerprint) {
		if r.sendLocked(conn, ev) {
			sent++
		}
	}
	return sent
}

// snapshotLocked copies matching connections so removal during send does not
// mutate the map mid-iteration. Empty fingerprint matches all.
func (r *Registry) snapshotLocked(fingerprint string) []*Connection {
	out := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		if fingerprint == "" || conn.Fingerprint == fingerprint {
			out = append(out, conn)
		}
	}
	return out
}

func (r *Registry) sendLocked(conn *Connection, ev models.Event) bool {
	if _, ok := r.conns[conn.ID]; !ok {
		return false
	}
	if err := conn.sink.Send(ev); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"connection_id": conn.ID,
			"fingerprint":   conn.Fingerprint,
		}).Debug("Removing broken push connection")
		r.removeLocked(conn.ID, "write failure")
		return false
	}
	return true
}

func (r *Registry) removeLocked(id, reason string) {
	conn, ok := r.conns[id]
	if !ok {
		return
	}
	delete(r.conns, id)
	_ = conn.sink.Close()

	metrics.SetGauge("realtime_connections", float64(len(r.conns)), nil, "Open push connections")
	metrics.IncrementCounter("realtime_disconnects_total", map[string]string{
		"reason": reason,
	}, "Push connections removed")
}

func (r *Registry) recordLocked(fingerprint string, ev models.Event) {
	log := append(r.events[fingerprint], loggedEvent{event: ev, at: r.now()})
	if len(log) > r.cfg.EventLogSize {
		log = log[len(log)-r.cfg.EventLogSize:]
	}
	r.events[fingerprint] = log
}

func (r *Registry) newEvent(eventType string) models.Event {
	return models.Event{
		Type:      eventType,
		Timestamp: r.now().UTC().Format(time.RFC3339),
	}
}
