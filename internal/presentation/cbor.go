package presentation

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2) so the same
// value always produces the same bytes.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("presentation: failed to create CBOR encoder: %v", err))
	}
}

// MarshalCBOR encodes v as deterministic CBOR.
func MarshalCBOR(v any) ([]byte, error) {
	return encMode.Marshal(v)
}
