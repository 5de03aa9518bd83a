// Package push is the notification/indication flow-control layer of a
// single-peer GATT server.
//
// A Dispatcher tracks the one active connection, asks the attribute store
// whether the peer subscribed to the requested push mode, and throttles
// submissions against a credit budget that mirrors the stack's hardware
// queue. Stack events (connect, disconnect, transmit-complete, timeout) are
// fed to HandleEvent; application code calls Push and treats the
// backpressure errors (see IsBackpressure) as "try again later".
//
// Credit accounting:
//
//	Connect            -> credits = capacity
//	Push ok            -> credits - 1
//	Push rejected      -> credits unchanged (reservation rolled back)
//	TransmitComplete n -> credits + n, clamped to capacity
package push
