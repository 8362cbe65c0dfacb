package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/bft-labs/logship/internal/domain"
)

// CBORContentType is the Content-Type of CBOR batches.
const CBORContentType = "application/cbor"

// encMode uses Core Deterministic Encoding: identical batches always
// produce identical bodies.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
}

// CBOR encodes a batch as a CBOR array of byte strings.
type CBOR struct{}

func (CBOR) ContentType() string { return CBORContentType }

func (CBOR) Encode(batch domain.Batch) ([]byte, error) {
	items := make([][]byte, len(batch))
	for i, m := range batch {
		items[i] = m
	}
	body, err := encMode.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode cbor batch: %w", err)
	}
	return body, nil
}
