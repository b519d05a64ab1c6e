package bus

import (
	"context"
	"sync"

	"go.viam.com/ensenso/messages"
	"go.viam.com/ensenso/utils"
)

type subscriber struct {
	t       *topic
	queue   chan messages.Message
	cb      func(messages.Message)
	workers utils.StoppableWorkers

	enqueueMu sync.Mutex
}

func (b *Bus) subscribe(t *topic, queueSize int, cb func(messages.Message)) *Subscription {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	s := &subscriber{
		t:     t,
		queue: make(chan messages.Message, queueSize),
		cb:    cb,
	}
	s.workers = utils.NewStoppableWorkers(s.deliver)
	t.addSubscriber(s)
	return &Subscription{s: s}
}

// enqueue hands msg to the subscriber, evicting the oldest queued message if the queue is full.
func (s *subscriber) enqueue(msg messages.Message) {
	s.enqueueMu.Lock()
	defer s.enqueueMu.Unlock()
	for {
		select {
		case s.queue <- msg:
			return
		default:
		}
		select {
		case <-s.queue:
			s.t.dropped.Add(1)
		default:
		}
	}
}

func (s *subscriber) deliver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.queue:
			if ctx.Err() != nil {
				return
			}
			s.cb(msg)
			s.t.delivered.Add(1)
		}
	}
}

func (s *subscriber) stop() {
	s.workers.Stop()
}

// Subscription is a live subscription to a topic.
type Subscription struct {
	s    *subscriber
	once sync.Once
}

// Topic returns the subscribed topic's name.
func (sub *Subscription) Topic() string {
	return sub.s.t.name
}

// Unsubscribe stops delivery. It waits for an in-flight callback to return.
func (sub *Subscription) Unsubscribe() {
	sub.once.Do(func() {
		sub.s.t.removeSubscriber(sub.s)
		sub.s.stop()
	})
}
