// Package ros reads ROS bags recorded from the driver's topics.
package ros

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/edaniels/gobag/rosbag"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// ReadBag reads the contents of a rosbag into a gobag data structure.
func ReadBag(filename string) (*rosbag.RosBag, error) {
	//nolint:gosec
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open input file")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	rb := rosbag.NewRosBag()
	if err := rb.Read(f); err != nil {
		return nil, errors.Wrapf(err, "unable to create ros bag, error")
	}
	return rb, nil
}

// TopicKey is the key the bag parser files a topic's messages under: no leading slash, lower
// case, and slashes replaced by underscores.
func TopicKey(topic string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(topic, "/"), "/", "_"))
}

// ParseTopics converts the messages of the given topics to JSON lines, keyed by topic as given.
// A topic without messages is missing from the result. Parsing consumes the bag's JSON buffers so
// each bag should only be parsed once.
func ParseTopics(rb *rosbag.RosBag, topics []string) (map[string]*bytes.Buffer, error) {
	wanted := make(map[string]string, len(topics))
	for _, topic := range topics {
		wanted[TopicKey(topic)] = topic
	}
	if err := rb.ParseTopicsToJSON(
		"",
		func(int64) bool { return true },
		func(t string) bool { _, ok := wanted[TopicKey(t)]; return ok },
		false,
	); err != nil {
		return nil, errors.Wrapf(err, "error while parsing bag to JSON")
	}

	parsed := make(map[string]*bytes.Buffer, len(topics))
	for key, topic := range wanted {
		if buf, ok := rb.TopicsAsJSON[key]; ok {
			parsed[topic] = buf
		}
	}
	return parsed, nil
}

// DecodeMessages decodes JSON lines, one message per line, into T.
func DecodeMessages[T any](r io.Reader) ([]T, error) {
	var all []T
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var message T
			if uerr := json.Unmarshal(line, &message); uerr != nil {
				return nil, errors.Wrapf(uerr, "decoding message %d", len(all))
			}
			all = append(all, message)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return all, nil
			}
			return nil, err
		}
	}
}

// AllMessagesForTopic returns all messages for a specific topic in the ros bag.
func AllMessagesForTopic(rb *rosbag.RosBag, topic string) ([]map[string]interface{}, error) {
	parsed, err := ParseTopics(rb, []string{topic})
	if err != nil {
		return nil, err
	}
	msgs, ok := parsed[topic]
	if !ok {
		return nil, errors.Errorf("no messages for topic %s", topic)
	}
	return DecodeMessages[map[string]interface{}](msgs)
}
