package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementMotorState = "motor_state"
	MeasurementMotorEvent = "motor_event"
	MeasurementLinkStatus = "link_status"
)

// MotorState is one raw state sample.
type MotorState struct {
	Number int
	Name   string
	State  string
	Origin string // "intent" or "feedback"
	IsOpen bool
	Time   time.Time // zero means now
}

// MotorEvent is one command-driven event sample.
type MotorEvent struct {
	Number  int
	Name    string
	Kind    string
	Success bool
	Time    time.Time
}

// WriteMotorState queues a motor_state point. Non-blocking.
func (c *Client) WriteMotorState(s MotorState) {
	c.writePoint(MeasurementMotorState,
		map[string]string{
			"motor":  strconv.Itoa(s.Number),
			"name":   s.Name,
			"origin": s.Origin,
		},
		map[string]any{
			"state":   s.State,
			"is_open": s.IsOpen,
		},
		s.Time)
}

// WriteMotorEvent queues a motor_event point.
func (c *Client) WriteMotorEvent(e MotorEvent) {
	c.writePoint(MeasurementMotorEvent,
		map[string]string{
			"motor": strconv.Itoa(e.Number),
			"name":  e.Name,
			"kind":  e.Kind,
		},
		map[string]any{"success": e.Success},
		e.Time)
}

// WriteLinkStatus queues a link_status point for the controller link.
func (c *Client) WriteLinkStatus(address string, connected bool) {
	c.writePoint(MeasurementLinkStatus,
		map[string]string{"address": address},
		map[string]any{"connected": connected},
		time.Time{})
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	if at.IsZero() {
		at = c.now()
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
