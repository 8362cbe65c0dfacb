package codec

import (
	"fmt"
	"strings"

	"github.com/bft-labs/logship/internal/ports"
)

// Encoding names a batch encoding.
type Encoding string

const (
	EncodingMsgpack    Encoding = "msgpack"
	EncodingMsgpackRaw Encoding = "msgpack-raw"
	EncodingCBOR       Encoding = "cbor"
)

// ParseEncoding parses an encoding name. The empty string selects msgpack.
func ParseEncoding(name string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(name))) {
	case "", EncodingMsgpack:
		return EncodingMsgpack, nil
	case EncodingMsgpackRaw:
		return EncodingMsgpackRaw, nil
	case EncodingCBOR:
		return EncodingCBOR, nil
	default:
		return "", fmt.Errorf("unknown batch encoding %q", name)
	}
}

// NewEncoder returns the BatchEncoder for e.
func NewEncoder(e Encoding) (ports.BatchEncoder, error) {
	switch e {
	case EncodingMsgpack, "":
		return Msgpack{}, nil
	case EncodingMsgpackRaw:
		return MsgpackRaw{}, nil
	case EncodingCBOR:
		return CBOR{}, nil
	default:
		return nil, fmt.Errorf("unknown batch encoding %q", e)
	}
}
