package bus

import (
	"github.com/pkg/errors"

	"go.viam.com/ensenso/messages"
	"go.viam.com/ensenso/utils"
)

// Publisher publishes messages of type T on one topic.
type Publisher[T messages.Message] struct {
	bus *Bus
	t   *topic
}

func messageType[T messages.Message]() string {
	var zero T
	return zero.MessageType()
}

// Advertise declares that messages of type T will be published on the named topic. A latched
// topic hands its last message to every new subscriber. Advertising the same topic twice returns
// a publisher for the existing topic as long as the message type matches.
func Advertise[T messages.Message](b *Bus, name string, latch bool) (*Publisher[T], error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.getOrCreateTopicLocked(name, messageType[T]())
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.latch = t.latch || latch
	t.advertised = true
	latched := t.latch
	t.mu.Unlock()
	b.logger.Debugw("advertised topic", "topic", name, "type", t.msgType, "latched", latched)
	return &Publisher[T]{bus: b, t: t}, nil
}

// Topic returns the topic name.
func (p *Publisher[T]) Topic() string {
	return p.t.name
}

// NumSubscribers returns how many subscribers the topic currently has.
func (p *Publisher[T]) NumSubscribers() int {
	p.t.mu.Lock()
	defer p.t.mu.Unlock()
	return len(p.t.subscribers)
}

// Publish hands msg to every subscriber without blocking.
func (p *Publisher[T]) Publish(msg T) error {
	if p.bus.isClosed() {
		return errors.Wrapf(ErrBusClosed, "publishing on %q", p.t.name)
	}
	if messages.Message(msg) == nil || isNilPointer(msg) {
		return errors.Wrapf(ErrPublishFailed, "nil message on %q", p.t.name)
	}
	p.t.publish(msg)
	return nil
}

// isNilPointer reports typed nil messages, which every message type is a pointer to.
func isNilPointer[T messages.Message](msg T) bool {
	switch m := any(msg).(type) {
	case *messages.Image:
		return m == nil
	case *messages.CompressedImage:
		return m == nil
	case *messages.CameraInfo:
		return m == nil
	case *messages.PointCloud2:
		return m == nil
	default:
		return false
	}
}

// Subscribe registers cb for messages of type T on the named topic. The topic does not need to be
// advertised yet. Callbacks for one subscription run sequentially on their own goroutine.
func Subscribe[T messages.Message](b *Bus, name string, queueSize int, cb func(T)) (*Subscription, error) {
	b.mu.Lock()
	t, err := b.getOrCreateTopicLocked(name, messageType[T]())
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	logger := b.logger
	return b.subscribe(t, queueSize, func(msg messages.Message) {
		typed, err := utils.AssertType[T](msg)
		if err != nil {
			logger.Errorw("dropping message of unexpected type", "topic", name, "error", err)
			return
		}
		cb(typed)
	}), nil
}
