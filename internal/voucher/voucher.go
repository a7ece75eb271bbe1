// Package voucher implements the canonical encoding, hashing and Ed25519
// signing of mint vouchers.
//
// A voucher hash is Keccak-256 over the Core Deterministic CBOR encoding
// (RFC 8949 §4.2) of domain.Voucher, so the same logical voucher always
// hashes to the same value regardless of who encodes it. The signature
// covers the domain separation tag followed by the hash.
package voucher

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/sha3"

	"github.com/kirinyoku/tixledger/internal/domain"
)

const signingTag = "tixledger.voucher.v1"

type Hash [32]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

var (
	ErrMalformedKey       = errors.New("voucher: malformed public key")
	ErrMalformedSignature = errors.New("voucher: malformed signature")
)

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("voucher: CBOR encoder initialization failed: " + err.Error())
	}
}

// Canonical returns the deterministic CBOR encoding of v.
func Canonical(v domain.Voucher) ([]byte, error) {
	return encMode.Marshal(v)
}

func Digest(v domain.Voucher) (Hash, error) {
	payload, err := Canonical(v)
	if err != nil {
		return Hash{}, fmt.Errorf("voucher: encoding payload: %w", err)
	}

	var h Hash
	k := sha3.NewLegacyKeccak256()
	k.Write(payload)
	copy(h[:], k.Sum(nil))

	return h, nil
}

func signedMessage(h Hash) []byte {
	msg := make([]byte, 0, len(signingTag)+len(h))
	msg = append(msg, signingTag...)
	return append(msg, h[:]...)
}

// Sign fills v.Signer from the key and returns the signature together with
// the voucher as signed.
func Sign(priv ed25519.PrivateKey, v domain.Voucher) (domain.Voucher, []byte, error) {
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return v, nil, ErrMalformedKey
	}
	v.Signer = EncodeKey(pub)

	h, err := Digest(v)
	if err != nil {
		return v, nil, err
	}

	return v, ed25519.Sign(priv, signedMessage(h)), nil
}

// Verify checks sig against the key named in v.Signer and returns the
// voucher hash. Any failure maps to domain.ErrInvalidSignature.
func Verify(v domain.Voucher, sig []byte) (Hash, error) {
	pub, err := DecodeKey(v.Signer)
	if err != nil {
		return Hash{}, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}

	if len(sig) != ed25519.SignatureSize {
		return Hash{}, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, ErrMalformedSignature)
	}

	h, err := Digest(v)
	if err != nil {
		return Hash{}, err
	}

	if !ed25519.Verify(pub, signedMessage(h), sig) {
		return Hash{}, domain.ErrInvalidSignature
	}

	return h, nil
}

func EncodeKey(pub ed25519.PublicKey) string {
	return hex.EncodeToString(pub)
}

// DecodeKey parses a hex Ed25519 public key, with or without a 0x prefix.
func DecodeKey(s string) (ed25519.PublicKey, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(s), "0x"))
	if err != nil || len(b) != ed25519.PublicKeySize {
		return nil, ErrMalformedKey
	}
	return ed25519.PublicKey(b), nil
}

// NormalizeKey returns the canonical lowercase hex form of a public key.
func NormalizeKey(s string) (string, error) {
	pub, err := DecodeKey(s)
	if err != nil {
		return "", err
	}
	return EncodeKey(pub), nil
}

func DecodeSignature(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(b) != ed25519.SignatureSize {
		return nil, ErrMalformedSignature
	}
	return b, nil
}

// NewNonce returns 16 random bytes in hex.
func NewNonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func GenerateKeypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generating Ed25519 keypair: %w", err)
	}
	return pub, priv, nil
}
