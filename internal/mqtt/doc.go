// Package mqtt bridges sensor readings to an MQTT broker and announces
// the sensor to Home Assistant through MQTT device discovery.
//
// The connection lifecycle has three steps, run in order by the
// composition root:
//
//  1. [Connect] starts an Eclipse Paho v2 [autopaho] connection manager
//     and returns immediately with the session handle and an
//     [EventStream] fed by autopaho's callbacks.
//  2. [ValidateConnection] blocks until the broker acknowledges the
//     session, reports an error, or the timeout elapses. Startup does
//     not continue against a broker that never answered.
//  3. [Supervise] consumes the stream for the rest of the process and
//     logs connected/disconnected transitions. autopaho performs the
//     actual reconnection.
//
// A [Publisher] wraps the session handle. It sends each reading (QoS 1,
// not retained) to a single state topic and the device discovery
// document (QoS 1, retained) to {prefix}/device/{object_id}/config.
// Readings are handed to the publisher's own goroutine so the sensor
// never waits on the broker. Publish failures are logged and absorbed;
// nothing is queued for later delivery.
package mqtt
