// Package codec implements the wire format shared by the server and terminals.
//
// Every message is carried in a frame:
//
//	+----------------+--------------------------------------+
//	| length, 4 byte | JSON envelope, length bytes           |
//	| big endian     | {"type": "new_order", "data": "..."} |
//	+----------------+--------------------------------------+
//
// The data field holds a second JSON document whose shape depends on the
// envelope type. TCP does not preserve message boundaries, so a Decoder
// buffers until a whole frame is available and hands frames out one at a time,
// regardless of how the bytes were split across reads.
package codec
