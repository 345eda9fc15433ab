// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package sse fans job progress out to in-process subscribers and to
// Server-Sent Events clients.
package sse

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmaxmax/go-sse"

	"github.com/autobrr/sweepr/internal/models"
)

const (
	progressTopic        = "progress"
	streamEventHeartbeat = "heartbeat"
	defaultBufferSize    = 64
	heartbeatInterval    = 15 * time.Second
)

// Broker publishes progress events. Publish never blocks: a subscriber whose
// buffer is full is dropped and its channel closed.
type Broker struct {
	server     *sse.Server
	bufferSize int

	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64

	closing     atomic.Bool
	lastPublish atomic.Int64

	ctx    context.Context //nolint:containedctx // lifecycle root for the heartbeat loop
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Subscription is an in-process receiver. Late subscribers get no backlog.
type Subscription struct {
	id     uint64
	ch     chan models.ProgressEvent
	broker *Broker
}

// NewBroker returns a running broker. bufferSize <= 0 selects the default.
func NewBroker(bufferSize int) *Broker {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Broker{
		server: &sse.Server{
			Provider: &sse.Joe{},
		},
		bufferSize: bufferSize,
		subs:       make(map[uint64]*Subscription),
		ctx:        ctx,
		cancel:     cancel,
	}
	b.server.OnSession = b.onSession
	b.lastPublish.Store(time.Now().UnixNano())

	b.wg.Add(1)
	go b.heartbeatLoop()

	return b
}

// Subscribe registers a new receiver. After Shutdown the returned
// subscription's channel is already closed.
func (b *Broker) Subscribe() *Subscription {
	sub := &Subscription{
		ch:     make(chan models.ProgressEvent, b.bufferSize),
		broker: b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closing.Load() {
		close(sub.ch)
		return sub
	}

	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	return sub
}

// Events is closed when the subscription is closed or dropped.
func (s *Subscription) Events() <-chan models.ProgressEvent {
	return s.ch
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.broker.remove(s.id)
}

func (b *Broker) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(id)
}

func (b *Broker) removeLocked(id uint64) {
	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
}

// Publish delivers event to every subscriber and every SSE client.
func (b *Broker) Publish(event models.ProgressEvent) {
	if b.closing.Load() {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	b.lastPublish.Store(time.Now().UnixNano())

	b.mu.Lock()
	for id, sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			log.Debug().Uint64("subscriber", id).Msg("sse: dropping slow subscriber")
			b.removeLocked(id)
		}
	}
	b.mu.Unlock()

	b.publishMessage(string(event.Kind), event)
}

func (b *Broker) publishMessage(eventType string, payload any) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("sse: failed to marshal event")
		return
	}

	message := &sse.Message{Type: sse.Type(eventType)}
	message.AppendData(string(encoded))

	if err := b.server.Publish(message, progressTopic); err != nil && !errors.Is(err, sse.ErrProviderClosed) {
		log.Debug().Err(err).Msg("sse: failed to publish message")
	}
}

// heartbeatDue reports whether nothing went out during the last interval.
func (b *Broker) heartbeatDue(now time.Time) bool {
	last := time.Unix(0, b.lastPublish.Load())
	return now.Sub(last) >= heartbeatInterval
}

func (b *Broker) publishHeartbeat(now time.Time) {
	if b.closing.Load() || !b.heartbeatDue(now) {
		return
	}
	b.lastPublish.Store(now.UnixNano())
	b.publishMessage(streamEventHeartbeat, models.ProgressEvent{
		Kind:      streamEventHeartbeat,
		Timestamp: now,
	})
}

func (b *Broker) heartbeatLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case now := <-ticker.C:
			b.publishHeartbeat(now)
		}
	}
}

// Serve implements GET /api/events. It blocks until the client disconnects.
func (b *Broker) Serve(w http.ResponseWriter, r *http.Request) {
	if b.closing.Load() {
		http.Error(w, "stream shutting down", http.StatusServiceUnavailable)
		return
	}

	// streams outlive the server's global write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	b.server.ServeHTTP(w, r)
}

func (b *Broker) onSession(w http.ResponseWriter, _ *http.Request) ([]string, bool) {
	if b.closing.Load() {
		http.Error(w, "stream shutting down", http.StatusServiceUnavailable)
		return nil, false
	}
	return []string{progressTopic}, true
}

// Shutdown closes every subscription and the SSE provider.
func (b *Broker) Shutdown(ctx context.Context) error {
	if b == nil || !b.closing.CompareAndSwap(false, true) {
		return nil
	}

	b.cancel()
	b.wg.Wait()

	b.mu.Lock()
	for id := range b.subs {
		b.removeLocked(id)
	}
	b.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	if err := b.server.Shutdown(ctx); err != nil &&
		!errors.Is(err, sse.ErrProviderClosed) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
