// Package protocol implements the wire codec shared by the relay and its
// clients. Control envelopes and raw audio chunks travel over one datagram
// stream; control datagrams carry the literal ASCII prefix "CTRL:" followed by
// a UTF-8 JSON object, everything else is an opaque audio chunk.
package protocol
