// Package mqtt provides the MQTT client used by the motor bank bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and retained flags
//   - Subscriptions, restored after every reconnect
//   - Last Will and Testament on the site health topic
//
// Topic layout, rooted at motorbank/{site}:
//
//	command/{n}   in   {"action":"open"}
//	command       in   {"command":"Open3"}
//	state/{n}     out  retained motor status
//	event/{n}     out  command-driven events
//	summary       out  retained bank summary
//	connection    out  retained controller link state
//	health        out  retained service health, LWT offline
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.NewTopics(cfg.Site.ID))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
package mqtt
