// Package bus is an in-process publish/subscribe transport for driver messages. Publishing never
// blocks: every subscriber has a bounded queue that drops its oldest message when full.
package bus

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"go.viam.com/ensenso/logging"
	"go.viam.com/ensenso/messages"
)

// DefaultQueueSize is the queue depth used when zero is requested.
const DefaultQueueSize = 2

// Stats are counters for a single topic.
type Stats struct {
	Published uint64 `json:"published"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

// TopicInfo describes an advertised topic.
type TopicInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Latched     bool   `json:"latched"`
	Advertised  bool   `json:"advertised"`
	Subscribers int    `json:"subscribers"`
	Stats       Stats  `json:"stats"`
}

// Bus routes messages from publishers to subscribers by topic name.
type Bus struct {
	mu     sync.Mutex
	topics map[string]*topic
	closed bool
	logger logging.Logger
}

// New returns an empty bus.
func New(logger logging.Logger) *Bus {
	return &Bus{
		topics: map[string]*topic{},
		logger: logger,
	}
}

type topic struct {
	name       string
	msgType    string
	latch      bool
	advertised bool

	mu          sync.Mutex
	subscribers []*subscriber
	last        messages.Message

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// getOrCreateTopicLocked returns the named topic, creating it if needed. The caller must hold b.mu.
func (b *Bus) getOrCreateTopicLocked(name, msgType string) (*topic, error) {
	if b.closed {
		return nil, ErrBusClosed
	}
	if t, ok := b.topics[name]; ok {
		if t.msgType != msgType {
			return nil, newTopicTypeMismatchError(name, t.msgType, msgType)
		}
		return t, nil
	}
	t := &topic{name: name, msgType: msgType}
	b.topics[name] = t
	return t, nil
}

func (t *topic) publish(msg messages.Message) {
	t.published.Add(1)
	t.mu.Lock()
	t.last = msg
	subs := append([]*subscriber(nil), t.subscribers...)
	t.mu.Unlock()
	for _, s := range subs {
		s.enqueue(msg)
	}
}

func (t *topic) addSubscriber(s *subscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers = append(t.subscribers, s)
	if t.latch && t.last != nil {
		s.enqueue(t.last)
	}
}

func (t *topic) removeSubscriber(s *subscriber) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, other := range t.subscribers {
		if other == s {
			t.subscribers = append(t.subscribers[:i], t.subscribers[i+1:]...)
			return true
		}
	}
	return false
}

func (t *topic) info() TopicInfo {
	t.mu.Lock()
	numSubs := len(t.subscribers)
	latch, advertised := t.latch, t.advertised
	t.mu.Unlock()
	return TopicInfo{
		Name:        t.name,
		Type:        t.msgType,
		Latched:     latch,
		Advertised:  advertised,
		Subscribers: numSubs,
		Stats: Stats{
			Published: t.published.Load(),
			Delivered: t.delivered.Load(),
			Dropped:   t.dropped.Load(),
		},
	}
}

// Topics lists every known topic sorted by name.
func (b *Bus) Topics() []TopicInfo {
	b.mu.Lock()
	topics := make([]*topic, 0, len(b.topics))
	for _, t := range b.topics {
		topics = append(topics, t)
	}
	b.mu.Unlock()

	infos := make([]TopicInfo, 0, len(topics))
	for _, t := range topics {
		infos = append(infos, t.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Topic returns information about one topic.
func (b *Bus) Topic(name string) (TopicInfo, bool) {
	b.mu.Lock()
	t, ok := b.topics[name]
	b.mu.Unlock()
	if !ok {
		return TopicInfo{}, false
	}
	return t.info(), true
}

// Latest returns the last message published on the topic, latched or not.
func (b *Bus) Latest(name string) (messages.Message, bool) {
	b.mu.Lock()
	t, ok := b.topics[name]
	b.mu.Unlock()
	if !ok {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.last != nil
}

// SubscribeAny subscribes to an existing topic without knowing its message type.
func (b *Bus) SubscribeAny(name string, queueSize int, cb func(messages.Message)) (*Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	t, ok := b.topics[name]
	b.mu.Unlock()
	if !ok {
		return nil, errors.Errorf("unknown topic %q", name)
	}
	return b.subscribe(t, queueSize, cb), nil
}

// Close stops every subscriber. Publishing afterwards fails with ErrBusClosed.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	topics := b.topics
	b.mu.Unlock()

	for _, t := range topics {
		t.mu.Lock()
		subs := t.subscribers
		t.subscribers = nil
		t.mu.Unlock()
		for _, s := range subs {
			s.stop()
		}
	}
	return nil
}

func (b *Bus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
