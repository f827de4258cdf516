package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	frameHeaderSize = 4
	MaxFrameSize    = 1 << 20
)

var ErrFrameTooLarge = errors.New("frame exceeds max size")

type RequestType uint8

const (
	RequestUnknown RequestType = iota
	RequestPing
)

type ResponseType uint8

const (
	ResponseUnknown ResponseType = iota
	ResponsePong
	ResponseError
)

type ShardRequest struct {
	Type RequestType `codec:"type"`
}

type ShardResponse struct {
	Type  ResponseType `codec:"type"`
	Error string       `codec:"error,omitempty"`
}

// WriteFrame writes v as a big-endian length prefixed msgpack payload.
func WriteFrame(w io.Writer, v any) error {
	payload, err := Encode(v)
	if err != nil {
		return err
	}
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	frame := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[frameHeaderSize:], payload)

	_, err = w.Write(frame)
	if err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

func ReadFrame(r io.Reader, v any) error {
	var header [frameHeaderSize]byte
	_, err := io.ReadFull(r, header[:])
	if err != nil {
		return fmt.Errorf("failed to read frame header: %w", err)
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return ErrFrameTooLarge
	}
	payload := make([]byte, size)
	_, err = io.ReadFull(r, payload)
	if err != nil {
		return fmt.Errorf("failed to read frame payload: %w", err)
	}
	return Decode(payload, v)
}
