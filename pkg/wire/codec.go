// Package wire holds the msgpack encoding shared by the gossip layer and the
// shard ping protocol.
package wire

import (
	"bytes"
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

func Encode(v any) ([]byte, error) {
	var (
		buf bytes.Buffer
		hd  codec.MsgpackHandle
	)
	err := codec.NewEncoder(&buf, &hd).Encode(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

func Decode(data []byte, v any) error {
	var hd codec.MsgpackHandle
	err := codec.NewDecoderBytes(data, &hd).Decode(v)
	if err != nil {
		return fmt.Errorf("failed to decode %T: %w", v, err)
	}
	return nil
}
