// Package rewrite implements the URL rewrite codecs that turn real
// destinations into proxied form and back.
//
// Codecs are deterministic and pure: the same input always encodes to the
// same opaque string, and Decode(Encode(u)) == u. Decode is forgiving: input
// that does not carry the proxy prefix or fails to decode is returned
// unchanged, so callers can feed it any location they observe on a surface.
package rewrite

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// Codec transforms real URLs into proxied form and back.
type Codec interface {
	Encode(url string) string
	Decode(encoded string) string
}

// XORCodec is the classic lightweight rewriter: key-cycled XOR over the URL
// bytes, base64url-encoded, under a fixed proxy prefix.
type XORCodec struct {
	prefix string
	key    []byte
}

// NewXOR creates an XOR codec. Prefix is prepended to every encoded URL
// (e.g. "/service/"); key must be non-empty.
func NewXOR(prefix, key string) *XORCodec {
	if key == "" {
		key = "spyglass"
	}
	return &XORCodec{prefix: prefix, key: []byte(key)}
}

// Encode rewrites a URL into proxied form.
func (c *XORCodec) Encode(url string) string {
	if url == "" {
		return url
	}
	buf := []byte(url)
	for i := range buf {
		buf[i] ^= c.key[i%len(c.key)]
	}
	return c.prefix + base64.RawURLEncoding.EncodeToString(buf)
}

// Decode reverses Encode. Non-proxied input is returned unchanged.
func (c *XORCodec) Decode(encoded string) string {
	payload, ok := strings.CutPrefix(encoded, c.prefix)
	if !ok {
		return encoded
	}
	buf, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return encoded
	}
	for i := range buf {
		buf[i] ^= c.key[i%len(c.key)]
	}
	return string(buf)
}

// SealedCodec encrypts destinations with XChaCha20-Poly1305 so encoded URLs
// are unlinkable without the key. The nonce is derived from the URL digest,
// keeping encoding deterministic.
type SealedCodec struct {
	prefix string
	key    [chacha20poly1305.KeySize]byte
}

// NewSealed creates a sealed codec from an arbitrary secret.
func NewSealed(prefix, secret string) *SealedCodec {
	c := &SealedCodec{prefix: prefix}
	c.key = sha256.Sum256([]byte("spyglass-sealed:" + secret))
	return c
}

// Encode seals a URL into proxied form.
func (c *SealedCodec) Encode(url string) string {
	if url == "" {
		return url
	}
	aead, err := chacha20poly1305.NewX(c.key[:])
	if err != nil {
		return url
	}
	digest := sha256.Sum256([]byte(url))
	nonce := digest[:chacha20poly1305.NonceSizeX]
	sealed := aead.Seal(nil, nonce, []byte(url), nil)
	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)
	return c.prefix + base64.RawURLEncoding.EncodeToString(out)
}

// Decode opens a sealed URL. Non-proxied or tampered input is returned
// unchanged.
func (c *SealedCodec) Decode(encoded string) string {
	payload, ok := strings.CutPrefix(encoded, c.prefix)
	if !ok {
		return encoded
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil || len(raw) <= chacha20poly1305.NonceSizeX {
		return encoded
	}
	aead, err := chacha20poly1305.NewX(c.key[:])
	if err != nil {
		return encoded
	}
	nonce, sealed := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	url, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return encoded
	}
	return string(url)
}

// FromName constructs the codec selected by configuration. Unknown names fall
// back to the XOR codec.
func FromName(name, prefix, key string) Codec {
	switch name {
	case "sealed":
		return NewSealed(prefix, key)
	default:
		return NewXOR(prefix, key)
	}
}
