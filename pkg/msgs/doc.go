// Package msgs defines the messages exchanged between the device and the host.
//
// Messages are protobuf encoded and travel inside frames from package framing.
// Every message kind has a declared maximum encoded size; encoding a message
// larger than that fails, and received frames larger than the maximum plus
// the frame overhead are rejected before any decoding is attempted.
package msgs
