package bus

import "github.com/pkg/errors"

var (
	// ErrPublishFailed is returned when a message could not be handed to a topic.
	ErrPublishFailed = errors.New("publish failed")
	// ErrTopicTypeMismatch is returned when a topic is advertised or subscribed with a message type
	// other than the one it already carries.
	ErrTopicTypeMismatch = errors.New("topic type mismatch")
	// ErrBusClosed is returned by every operation on a closed bus.
	ErrBusClosed = errors.New("bus is closed")
)

func newTopicTypeMismatchError(topic, existing, requested string) error {
	return errors.Wrapf(ErrTopicTypeMismatch, "topic %q carries %s, not %s", topic, existing, requested)
}
