package codec

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/bft-labs/logship/internal/domain"
)

// MsgpackContentType is the Content-Type of msgpack batches.
const MsgpackContentType = "application/msgpack"

// Msgpack encodes a batch as a msgpack array of strings.
type Msgpack struct{}

func (Msgpack) ContentType() string { return MsgpackContentType }

func (Msgpack) Encode(batch domain.Batch) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(batch.Bytes() + 5*len(batch) + 5)

	enc := msgpack.NewEncoder(&buf)
	if err := enc.EncodeArrayLen(len(batch)); err != nil {
		return nil, fmt.Errorf("encode array header: %w", err)
	}
	for i, m := range batch {
		if err := enc.EncodeString(string(m)); err != nil {
			return nil, fmt.Errorf("encode message %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// MsgpackRaw encodes a batch as a msgpack array whose elements are the
// messages themselves. Every message must already be one msgpack value;
// the bytes are not validated.
type MsgpackRaw struct{}

func (MsgpackRaw) ContentType() string { return MsgpackContentType }

func (MsgpackRaw) Encode(batch domain.Batch) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(batch.Bytes() + 5)

	enc := msgpack.NewEncoder(&buf)
	if err := enc.EncodeArrayLen(len(batch)); err != nil {
		return nil, fmt.Errorf("encode array header: %w", err)
	}
	for _, m := range batch {
		buf.Write(m)
	}
	return buf.Bytes(), nil
}
