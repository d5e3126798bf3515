// Package driver coordinates the motor bank with the protocol controller.
//
// Downward, Execute parses a user command ("Open3"), applies it to the
// motor, and sends the wire command only after the motor's intent-origin
// transition is observed on the notification stream. Upward, feedback
// batches from the controller are applied to the motors, and every motor
// notification, connection change and feedback batch is fanned out to the
// registered Listeners (MQTT bridge, WebSocket hub, history recorder).
//
// The driver also owns the presentation layer: display names, visibility
// and the aggregate open/closed summary.
package driver
