// ABOUTME: SlimProto wire protocol package
// ABOUTME: Frame codec plus typed client and server messages
// Package slimproto implements the SlimProto control protocol spoken between
// a player and a media server.
//
// Server frames are length-prefixed (u16 big-endian length, 4-byte tag,
// payload). Client frames put the tag first (4-byte tag, u32 big-endian
// length, payload).
//
// Example:
//
//	r := slimproto.NewReader(conn)
//	frame, err := r.Next()
//	cmd, err := slimproto.ParseServerMessage(frame)
package slimproto
