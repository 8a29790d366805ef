package devpi

import (
	"encoding/base64"
	"fmt"
	"strings"

	macaroon "gopkg.in/macaroon.v2"
)

// TokenCodec decodes an opaque token container into its identifier and
// caveat strings. The default implementation understands the macaroon
// format issued by devpi-tokens.
type TokenCodec interface {
	Decode(token string) (identifier string, caveats []string, err error)
}

// MacaroonCodec decodes base64-serialized binary macaroons.
type MacaroonCodec struct{}

func (MacaroonCodec) Decode(token string) (string, []string, error) {
	data, err := decodeBase64(strings.TrimSpace(token))
	if err != nil {
		return "", nil, fmt.Errorf("decode token container: %w", err)
	}
	var m macaroon.Macaroon
	if err := m.UnmarshalBinary(data); err != nil {
		return "", nil, fmt.Errorf("unmarshal macaroon: %w", err)
	}
	caveats := make([]string, 0, len(m.Caveats()))
	for _, cav := range m.Caveats() {
		caveats = append(caveats, string(cav.Id))
	}
	return string(m.Id()), caveats, nil
}

// decodeBase64 accepts both the URL-safe and standard alphabets, with or
// without padding. Serializations seen in the wild vary.
func decodeBase64(s string) ([]byte, error) {
	if pad := len(s) % 4; pad != 0 {
		s += strings.Repeat("=", 4-pad)
	}
	if data, err := base64.URLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.StdEncoding.DecodeString(s)
}
