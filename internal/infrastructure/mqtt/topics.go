package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// TopicRoot is the first level of every motor bank topic.
const TopicRoot = "motorbank"

// Topics builds the topic tree for one site.
//
//	topics := mqtt.NewTopics("home")
//	topics.State(3) // "motorbank/home/state/3"
type Topics struct {
	base string
}

// NewTopics returns the builder rooted at motorbank/{site}. An empty site
// becomes "default".
func NewTopics(site string) Topics {
	site = strings.TrimSpace(site)
	if site == "" {
		site = "default"
	}
	return Topics{base: TopicRoot + "/" + site}
}

// Base returns motorbank/{site}.
func (t Topics) Base() string {
	return t.base
}

// Command returns the per-motor command topic, e.g. motorbank/home/command/3.
func (t Topics) Command(number int) string {
	return fmt.Sprintf("%s/command/%d", t.base, number)
}

// Commands returns the bank-wide command topic taking {"command":"Open3"}.
func (t Topics) Commands() string {
	return t.base + "/command"
}

// AllMotorCommands matches every per-motor command topic.
func (t Topics) AllMotorCommands() string {
	return t.base + "/command/+"
}

// Poll returns the topic that triggers a StatePoll.
func (t Topics) Poll() string {
	return t.base + "/poll"
}

// State returns the retained status topic for a motor.
func (t Topics) State(number int) string {
	return fmt.Sprintf("%s/state/%d", t.base, number)
}

// Event returns the event topic for a motor.
func (t Topics) Event(number int) string {
	return fmt.Sprintf("%s/event/%d", t.base, number)
}

// Summary returns the retained bank summary topic.
func (t Topics) Summary() string {
	return t.base + "/summary"
}

// Connection returns the retained controller-link topic.
func (t Topics) Connection() string {
	return t.base + "/connection"
}

// Health returns the retained service health topic, also used for the LWT.
func (t Topics) Health() string {
	return t.base + "/health"
}

// MotorNumber extracts the trailing motor number from a per-motor topic
// such as motorbank/home/command/3.
func (t Topics) MotorNumber(topic string) (int, bool) {
	rest, ok := strings.CutPrefix(topic, t.base+"/")
	if !ok {
		return 0, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		return 0, false
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
