package wire

// Command codec (§4.3)
// ---------------------
// Encoding is little-endian for all uint32 fields. Strings are length-
// prefixed raw bytes (uint32 length, then that many bytes, no terminator).
// The codec is pure and stateless: it never touches a socket, only the
// already-framed body bytes handed to it by the Framer.

import (
	"encoding/binary"
	"fmt"

	protoerr "github.com/catapult-stream/relay-server/internal/errors"
)

// Header is the (version, command) prefix common to every packet body.
type Header struct {
	Version uint32
	Command Command
}

// headerSize is the encoded size of Header: two little-endian uint32 fields.
const headerSize = 8

// ParseHeader parses the (version, command) prefix and returns the header
// plus the remaining command-specific payload.
func ParseHeader(body []byte) (Header, []byte, error) {
	if len(body) < headerSize {
		return Header{}, nil, protoerr.NewCodecError(protoerr.ShortPayload, "parse header",
			fmt.Errorf("body length %d below header size %d", len(body), headerSize))
	}
	version := binary.LittleEndian.Uint32(body[0:4])
	if version != ProtocolVersion {
		return Header{}, nil, protoerr.NewCodecError(protoerr.VersionMismatch, "parse header",
			fmt.Errorf("observed version %d", version))
	}
	cmd := Command(binary.LittleEndian.Uint32(body[4:8]))
	return Header{Version: version, Command: cmd}, body[headerSize:], nil
}

// EncodeBody builds a full packet body: the (version, command) header
// followed by payload, ready to be handed to WriteFrame.
func EncodeBody(cmd Command, payload []byte) []byte {
	buf := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], ProtocolVersion)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(cmd))
	copy(buf[headerSize:], payload)
	return buf
}

// ReadString decodes a length-prefixed string from the front of b and
// returns the string plus whatever bytes remain after it.
func ReadString(b []byte) (string, []byte, error) {
	if len(b) < 4 {
		return "", nil, protoerr.NewCodecError(protoerr.ShortPayload, "read string length", nil)
	}
	n := binary.LittleEndian.Uint32(b[0:4])
	rest := b[4:]
	if uint64(len(rest)) < uint64(n) {
		return "", nil, protoerr.NewCodecError(protoerr.ShortPayload, "read string bytes",
			fmt.Errorf("want %d bytes, have %d", n, len(rest)))
	}
	return string(rest[:n]), rest[n:], nil
}

// AppendString appends a length-prefixed string to buf.
func AppendString(buf []byte, s string) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, s...)
	return buf
}

// ParseStreamID decodes the streamId:string payload shared by
// START_STREAMING, END_STREAMING and START_LIVE_STREAM_VIEWING.
func ParseStreamID(payload []byte) (string, error) {
	streamID, _, err := ReadString(payload)
	if err != nil {
		return "", err
	}
	return streamID, nil
}

// EncodeStreamID builds the streamId:string payload.
func EncodeStreamID(streamID string) []byte {
	return AppendString(nil, streamID)
}

// StreamingData is the decoded payload of a STREAMING_DATA packet in either
// direction: uint32 chunkIndex, uint32 dataLen, then dataLen raw bytes.
type StreamingData struct {
	ChunkIndex uint32
	Data       []byte
}

// ParseStreamingData decodes a STREAMING_DATA payload.
func ParseStreamingData(payload []byte) (StreamingData, error) {
	if len(payload) < 8 {
		return StreamingData{}, protoerr.NewCodecError(protoerr.ShortPayload, "parse streaming_data header",
			fmt.Errorf("payload length %d below 8", len(payload)))
	}
	chunkIndex := binary.LittleEndian.Uint32(payload[0:4])
	dataLen := binary.LittleEndian.Uint32(payload[4:8])
	rest := payload[8:]
	if uint64(len(rest)) < uint64(dataLen) {
		return StreamingData{}, protoerr.NewCodecError(protoerr.ShortPayload, "parse streaming_data body",
			fmt.Errorf("want %d bytes, have %d", dataLen, len(rest)))
	}
	return StreamingData{ChunkIndex: chunkIndex, Data: rest[:dataLen]}, nil
}

// EncodeStreamingData builds a STREAMING_DATA payload.
func EncodeStreamingData(chunkIndex uint32, data []byte) []byte {
	buf := make([]byte, 8, 8+len(data))
	binary.LittleEndian.PutUint32(buf[0:4], chunkIndex)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(data)))
	buf = append(buf, data...)
	return buf
}

// ParseErrorMessage decodes the message:string payload of ERROR_STREAMING_RESPONSE.
func ParseErrorMessage(payload []byte) (string, error) {
	msg, _, err := ReadString(payload)
	if err != nil {
		return "", err
	}
	return msg, nil
}

// EncodeErrorMessage builds the ERROR_STREAMING_RESPONSE payload.
func EncodeErrorMessage(msg string) []byte {
	return AppendString(nil, msg)
}
