package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tixledger/internal/lib/jwt"
	"github.com/kirinyoku/tixledger/internal/voucher"
)

var fixedNow = func() time.Time { return time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC) }

func TestKeygenSignHash(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"keygen"}, nil, &out, fixedNow))

	var pub, seed string
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		k, v, _ := strings.Cut(line, ":")
		switch k {
		case "public":
			pub = strings.TrimSpace(v)
		case "seed":
			seed = strings.TrimSpace(v)
		}
	}
	require.Len(t, pub, 64)
	require.Len(t, seed, 64)

	out.Reset()
	require.NoError(t, run([]string{
		"sign", "--key", seed, "--event", "7", "--recipient", "alice", "--seat", "A-1", "--price", "1250", "--ttl", "2h",
	}, nil, &out, fixedNow))

	var signed Signed
	require.NoError(t, json.Unmarshal(out.Bytes(), &signed))
	assert.Equal(t, pub, signed.Voucher.Signer)
	assert.Equal(t, fixedNow().Add(2*time.Hour).Unix(), signed.Voucher.ExpiresAt)

	sig, err := hex.DecodeString(signed.Signature)
	require.NoError(t, err)
	h, err := voucher.Verify(signed.Voucher, sig)
	require.NoError(t, err)
	assert.Equal(t, h.String(), signed.Hash)

	// hash accepts the sign output as is.
	var hashed bytes.Buffer
	require.NoError(t, run([]string{"hash"}, bytes.NewReader(out.Bytes()), &hashed, fixedNow))
	assert.Equal(t, signed.Hash, strings.TrimSpace(hashed.String()))
}

func TestToken(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"token", "--account", "gate", "--secret", "s3cret"}, nil, &out, fixedNow))

	account, err := jwt.Parse(strings.TrimSpace(out.String()), []byte("s3cret"), fixedNow())
	require.NoError(t, err)
	assert.Equal(t, "gate", account)
}

func TestRunErrors(t *testing.T) {
	var out bytes.Buffer

	assert.Error(t, run(nil, nil, &out, fixedNow))
	assert.Error(t, run([]string{"mint"}, nil, &out, fixedNow))
	assert.Error(t, run([]string{"sign", "--key", "00", "--event", "1", "--recipient", "a"}, nil, &out, fixedNow))
	assert.Error(t, run([]string{"sign", "--event", "1"}, nil, &out, fixedNow))
	assert.Error(t, run([]string{"token", "--account", "a", "--secret", ""}, nil, &out, fixedNow))
}
