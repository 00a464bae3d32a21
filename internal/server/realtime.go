package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/roster/internal/dirsync"
)

const (
	SyncEventCompleted      = "sync-completed"
	SyncEventFailed         = "sync-failed"
	syncEventHeartbeat      = "heartbeat"
	syncEventSourceBackend  = "roster-backend"
	syncEventHeartbeatEvery = 25 * time.Second
)

// SyncEvent reports the end of one (tenant, provider) run to stream subscribers.
type SyncEvent struct {
	TenantID  string
	EventType string
	Summary   dirsync.Summary
	Timestamp time.Time
}

// SyncEventDispatcher fans sync events out to the subscribers of each tenant.
type SyncEventDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*syncEventSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type syncEventSubscriber struct {
	id     int64
	stream chan SyncEvent
}

// NewSyncEventDispatcher constructs an empty dispatcher.
func NewSyncEventDispatcher() *SyncEventDispatcher {
	return &SyncEventDispatcher{
		subscribers: make(map[string]map[int64]*syncEventSubscriber),
		bufferSize:  16,
		clock:       time.Now,
	}
}

// Subscribe registers a stream for tenantID until ctx ends or cleanup is called.
func (d *SyncEventDispatcher) Subscribe(ctx context.Context, tenantID string) (<-chan SyncEvent, func()) {
	if tenantID == "" {
		ch := make(chan SyncEvent)
		close(ch)
		return ch, func() {}
	}
	subscriber := &syncEventSubscriber{
		id:     d.nextSequence(),
		stream: make(chan SyncEvent, d.bufferSize),
	}
	d.registerSubscriber(tenantID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(tenantID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the event without blocking; full subscriber buffers drop it.
func (d *SyncEventDispatcher) Publish(event SyncEvent) {
	if event.TenantID == "" || event.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[event.TenantID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*syncEventSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- event:
		default:
		}
	}
}

// RunFinished publishes the outcome of a reconciliation run.
func (d *SyncEventDispatcher) RunFinished(summary dirsync.Summary) {
	eventType := SyncEventCompleted
	if summary.Err != nil || !summary.Completed() {
		eventType = SyncEventFailed
	}
	d.Publish(SyncEvent{
		TenantID:  summary.TenantID,
		EventType: eventType,
		Summary:   summary,
		Timestamp: d.clock().UTC(),
	})
}

func (d *SyncEventDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *SyncEventDispatcher) registerSubscriber(tenantID string, subscriber *syncEventSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[tenantID]; !ok {
		d.subscribers[tenantID] = make(map[int64]*syncEventSubscriber)
	}
	d.subscribers[tenantID][subscriber.id] = subscriber
}

func (d *SyncEventDispatcher) unregisterSubscriber(tenantID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[tenantID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, tenantID)
		}
	}
	d.mu.Unlock()
}
