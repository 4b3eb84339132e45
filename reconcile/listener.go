package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"attendance/entity"
	"attendance/metrics"
	"attendance/pubsub"
	"attendance/pubsub/bus"
)

type ViewLoader interface {
	Load(ctx context.Context, eventID string) (entity.EventView, error)
}

type BackfillRequester interface {
	RequestBackfill(ctx context.Context, purchaseID string) error
}

type Config struct {
	// QuietWindow is how long no change may arrive before the view is
	// refreshed from the authoritative sources.
	QuietWindow time.Duration
	// DedupSize is how many change ids are remembered to drop duplicates.
	DedupSize int
	// ResubscribeInterval is the first delay before resubscribing to a lost
	// feed; later attempts back off exponentially up to ResubscribeMaxInterval.
	ResubscribeInterval    time.Duration
	ResubscribeMaxInterval time.Duration
	// BackfillRetryAfter is how long a purchase with missing credentials waits
	// before backfill is requested again.
	BackfillRetryAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.QuietWindow <= 0 {
		c.QuietWindow = 300 * time.Millisecond
	}
	if c.DedupSize <= 0 {
		c.DedupSize = 1024
	}
	if c.ResubscribeInterval <= 0 {
		c.ResubscribeInterval = 100 * time.Millisecond
	}
	if c.ResubscribeMaxInterval <= 0 {
		c.ResubscribeMaxInterval = 5 * time.Second
	}
	if c.BackfillRetryAfter <= 0 {
		c.BackfillRetryAfter = 30 * time.Second
	}
	return c
}

// inbound is what the feed goroutines hand to the listener loop.
type inbound struct {
	topic string
	msg   *message.Message
	// lost and restored report the subscription state of topic.
	lost     bool
	restored bool
}

type refreshResult struct {
	view entity.EventView
	err  error
}

// Listener keeps the view of one event current. All view state is owned by
// the goroutine running Run; other goroutines only see copies.
type Listener struct {
	eventID    string
	subscriber message.Subscriber
	loader     ViewLoader
	scanMemory ScanMemory
	backfill   BackfillRequester
	onChange   func(entity.EventView)
	config     Config

	mu      sync.RWMutex
	current *entity.EventView

	// owned by Run
	view            entity.EventView
	seen            *recentIDs
	down            map[string]bool
	refreshing      bool
	refreshAgain    bool
	pending         []entity.RowChange
	debounce        *time.Timer
	generation      uint64
	backfillAskedAt map[string]time.Time
}

// NewListener creates a listener of eventID. onChange is called from the
// listener goroutine for every new version of the view and must not block.
// backfill may be nil.
func NewListener(
	eventID string,
	subscriber message.Subscriber,
	loader ViewLoader,
	scanMemory ScanMemory,
	backfill BackfillRequester,
	onChange func(entity.EventView),
	config Config,
) *Listener {
	if eventID == "" {
		panic("missing eventID")
	}
	if subscriber == nil {
		panic("missing subscriber")
	}
	if loader == nil {
		panic("missing loader")
	}
	if scanMemory == nil {
		panic("missing scanMemory")
	}
	if onChange == nil {
		onChange = func(entity.EventView) {}
	}

	config = config.withDefaults()

	return &Listener{
		eventID:         eventID,
		subscriber:      subscriber,
		loader:          loader,
		scanMemory:      scanMemory,
		backfill:        backfill,
		onChange:        onChange,
		config:          config,
		view:            entity.NewEventView(eventID),
		seen:            newRecentIDs(config.DedupSize),
		down:            make(map[string]bool),
		backfillAskedAt: make(map[string]time.Time),
	}
}

// Current returns the last published view.
func (l *Listener) Current() (entity.EventView, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.current == nil {
		return entity.EventView{}, false
	}
	return l.current.Clone(), true
}

// Run follows the change feeds of the event until ctx is done. A pending
// refresh is dropped on return.
func (l *Listener) Run(ctx context.Context) error {
	ctx = log.ToContext(ctx, log.FromContext(ctx).WithField("event_id", l.eventID))
	logger := log.FromContext(ctx)

	metrics.ActiveListeners.Inc()
	defer metrics.ActiveListeners.Dec()

	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := make(chan inbound)
	for _, table := range entity.ChangeTables {
		topic := bus.ChangesTopic(table, l.eventID)
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.follow(ctx, topic, in)
		}()
	}

	fired := make(chan uint64)
	results := make(chan refreshResult)
	defer l.stopDebounce()

	logger.Info("Listening for changes")
	l.startRefresh(ctx, &wg, results)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopped listening for changes")
			return nil

		case item := <-in:
			l.handleInbound(ctx, item, fired)

		case gen := <-fired:
			if gen != l.generation {
				// superseded by a later change
				continue
			}
			l.debounce = nil
			l.startRefresh(ctx, &wg, results)

		case res := <-results:
			l.finishRefresh(ctx, &wg, res)
			if l.refreshAgain {
				l.refreshAgain = false
				l.startRefresh(ctx, &wg, results)
			}
		}
	}
}

func (l *Listener) handleInbound(ctx context.Context, item inbound, fired chan<- uint64) {
	switch {
	case item.lost:
		if l.down[item.topic] {
			return
		}
		l.down[item.topic] = true
		metrics.SubscriptionLosses.Inc()
		log.FromContext(ctx).WithError(entity.ErrSubscriptionLost).WithField("topic", item.topic).Warn("Change feed lost, serving last known view")
		l.publish()

	case item.restored:
		if !l.down[item.topic] {
			return
		}
		delete(l.down, item.topic)
		log.FromContext(ctx).WithField("topic", item.topic).Info("Change feed restored")
		// changes may have been missed while the feed was down
		l.scheduleRefresh(ctx, fired)
		l.publish()

	case item.msg != nil:
		l.handleMessage(ctx, item.msg, fired)
	}
}

func (l *Listener) handleMessage(ctx context.Context, msg *message.Message, fired chan<- uint64) {
	defer msg.Ack()

	msgCtx := pubsub.ContextWithMessageCorrelationID(msg)
	logger := log.FromContext(msgCtx).WithFields(logrus.Fields{
		"event_id":   l.eventID,
		"message_id": msg.UUID,
	})

	change, err := bus.DecodeChange(msg)
	if err != nil {
		logger.WithError(err).Error("Dropping undecodable change")
		return
	}
	if change.EventID != "" && change.EventID != l.eventID {
		logger.WithField("change_event_id", change.EventID).Warn("Dropping change of another event")
		return
	}
	if l.seen.Seen(change.Header.ID) {
		metrics.DuplicateChanges.Inc()
		logger.WithField("change_id", change.Header.ID).Debug("Dropping duplicate change")
		return
	}

	if purchaseID := applyChange(&l.view, change); purchaseID != "" {
		if _, err := l.scanMemory.Record(msgCtx, purchaseID); err != nil {
			logger.WithError(err).Warn("Could not persist scan memory")
		}
	}
	if l.refreshing {
		l.pending = append(l.pending, change)
	}
	metrics.OptimisticPatches.WithLabelValues(string(change.Table)).Inc()
	logger.WithField("table", change.Table).Debug("Applied change")

	l.publish()
	l.scheduleRefresh(ctx, fired)
}

// scheduleRefresh (re)starts the quiet window. Every change pushes the
// refresh back, so a burst of changes results in a single refresh.
func (l *Listener) scheduleRefresh(ctx context.Context, fired chan<- uint64) {
	l.stopDebounce()

	l.generation++
	gen := l.generation
	l.debounce = time.AfterFunc(l.config.QuietWindow, func() {
		select {
		case fired <- gen:
		case <-ctx.Done():
		}
	})
}

func (l *Listener) stopDebounce() {
	if l.debounce != nil {
		l.debounce.Stop()
		l.debounce = nil
	}
}

func (l *Listener) startRefresh(ctx context.Context, wg *sync.WaitGroup, results chan<- refreshResult) {
	if l.refreshing {
		l.refreshAgain = true
		return
	}
	l.refreshing = true
	l.pending = nil

	wg.Add(1)
	go func() {
		defer wg.Done()

		view, err := l.loader.Load(ctx, l.eventID)
		select {
		case results <- refreshResult{view: view, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (l *Listener) finishRefresh(ctx context.Context, wg *sync.WaitGroup, res refreshResult) {
	l.refreshing = false
	pending := l.pending
	l.pending = nil

	logger := log.FromContext(ctx)

	if res.err != nil {
		metrics.Refreshes.WithLabelValues("failed").Inc()
		logger.WithError(res.err).Warn("Refresh failed, keeping previous view")
		l.view.Stale = true
		l.publish()
		return
	}

	fresh := carryForward(l.view, res.view)
	for _, change := range pending {
		applyChange(&fresh, change)
	}
	fresh = l.scanMemory.Reconcile(fresh)
	fresh.Version = l.view.Version
	fresh.Stale = false

	l.view = fresh
	metrics.Refreshes.WithLabelValues("ok").Inc()
	logger.WithField("purchases", len(fresh.Purchases)).Debug("View refreshed")

	l.publish()
	l.requestBackfills(ctx, wg)
}

// requestBackfills asks for missing credentials of purchases the view shows
// with a deficit. Nothing is asked while credentials are unreadable, because
// every purchase would look incomplete.
func (l *Listener) requestBackfills(ctx context.Context, wg *sync.WaitGroup) {
	if l.backfill == nil || !l.view.Readable(SourceCredentials) {
		return
	}

	now := time.Now()
	var purchaseIDs []string
	for id, p := range l.view.Purchases {
		if p.Deficit() == 0 {
			delete(l.backfillAskedAt, id)
			continue
		}
		if askedAt, ok := l.backfillAskedAt[id]; ok && now.Sub(askedAt) < l.config.BackfillRetryAfter {
			continue
		}
		l.backfillAskedAt[id] = now
		purchaseIDs = append(purchaseIDs, id)
	}
	if len(purchaseIDs) == 0 {
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		for _, id := range purchaseIDs {
			if err := l.backfill.RequestBackfill(ctx, id); err != nil {
				log.FromContext(ctx).WithError(err).WithField("purchase_id", id).Warn("Could not request backfill")
			}
		}
	}()
}

func (l *Listener) publish() {
	l.view.Version++
	l.view.Degraded = len(l.down) > 0

	snapshot := l.view.Clone()

	l.mu.Lock()
	l.current = &snapshot
	l.mu.Unlock()

	l.onChange(snapshot.Clone())
}

// follow feeds messages of one topic into in, resubscribing with backoff
// whenever the subscription drops.
func (l *Listener) follow(ctx context.Context, topic string, in chan<- inbound) {
	send := func(item inbound) bool {
		select {
		case in <- item:
			return true
		case <-ctx.Done():
			return false
		}
	}

	lost := false
	for {
		var messages <-chan *message.Message

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = l.config.ResubscribeInterval
		b.MaxInterval = l.config.ResubscribeMaxInterval
		b.MaxElapsedTime = 0

		err := backoff.RetryNotify(
			func() error {
				var err error
				messages, err = l.subscriber.Subscribe(ctx, topic)
				return err
			},
			backoff.WithContext(b, ctx),
			func(err error, next time.Duration) {
				log.FromContext(ctx).WithError(err).WithField("topic", topic).Warnf("Could not subscribe, retrying in %s", next)
				if !lost {
					lost = send(inbound{topic: topic, lost: true})
				}
			},
		)
		if err != nil {
			return
		}

		if lost {
			if !send(inbound{topic: topic, restored: true}) {
				return
			}
			lost = false
		}

		for msg := range messages {
			if !send(inbound{topic: topic, msg: msg}) {
				msg.Nack()
				return
			}
		}

		if ctx.Err() != nil {
			return
		}
		if !send(inbound{topic: topic, lost: true}) {
			return
		}
		lost = true
	}
}
