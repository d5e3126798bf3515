package motorbank

import "errors"

// Bridge errors.
var (
	ErrNoDriver       = errors.New("motorbank: driver is required")
	ErrNoMQTTClient   = errors.New("motorbank: MQTT client is required")
	ErrInvalidPayload = errors.New("motorbank: invalid command payload")
	ErrUnknownTopic   = errors.New("motorbank: topic does not address a motor")
)
