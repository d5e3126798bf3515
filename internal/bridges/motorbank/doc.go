// Package motorbank bridges the motor driver onto MQTT.
//
// Inbound, the bridge accepts commands on:
//
//	motorbank/{site}/command      {"command":"Open3"}
//	motorbank/{site}/command/{n}  {"action":"open"}
//	motorbank/{site}/poll         (payload ignored)
//
// Outbound, it publishes:
//
//	motorbank/{site}/state/{n}    retained, one per motor
//	motorbank/{site}/event/{n}    one per command event
//	motorbank/{site}/summary      retained, aggregate open/closed tile
//	motorbank/{site}/connection   retained, controller link status
//	motorbank/{site}/health       retained, periodic (LWT offline)
//
// The bridge is a driver.Listener; register it with Driver.AddListener
// before calling Start.
package motorbank
