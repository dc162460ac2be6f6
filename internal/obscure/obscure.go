// Package obscure provides the reversible encoding applied to the persisted
// session blob. It prevents casual plaintext inspection of local storage only;
// the key ships with the binary, so this is not a security boundary and must
// not be treated as one.
package obscure

import (
	"encoding/base64"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20"
)

// Fixed key and nonce: the encoding must be stable across restarts so a
// persisted session survives a reload.
var (
	streamKey = []byte("portfolio-auth-local-obfuscation")
	streamIV  = []byte("session-blob")
)

// Encode obfuscates data and returns a base64 string suitable for storage.
func Encode(data []byte) (string, error) {
	out, err := apply(data)
	if err != nil {
		return "", errors.Wrap(err, "[Encode] cipher init")
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decode reverses Encode. A malformed input returns an error rather than
// garbage; callers treat any error as "no prior session".
func Decode(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "[Decode] base64")
	}
	out, err := apply(raw)
	if err != nil {
		return nil, errors.Wrap(err, "[Decode] cipher init")
	}
	return out, nil
}

func apply(data []byte) ([]byte, error) {
	cipher, err := chacha20.NewUnauthenticatedCipher(streamKey, streamIV)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.XORKeyStream(out, data)
	return out, nil
}
