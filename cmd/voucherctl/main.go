// voucherctl is the organizer side of voucher minting: it creates signing
// keys, signs vouchers for buyers and hashes them for support lookups.
//
// Usage:
//
//	voucherctl keygen
//	voucherctl sign --key <hex seed> --event 7 --recipient alice [--seat A-1] [--price 1250] [--ttl 24h]
//	voucherctl hash < voucher.json
//	voucherctl token --account <hex key> [--secret $JWT_SECRET] [--ttl 1h]
package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/kirinyoku/tixledger/internal/domain"
	"github.com/kirinyoku/tixledger/internal/lib/jwt"
	"github.com/kirinyoku/tixledger/internal/voucher"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, time.Now); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// Signed is the output of sign. Its shape matches the voucher part of a mint
// request body.
type Signed struct {
	Voucher   domain.Voucher `json:"voucher"`
	Signature string         `json:"signature"`
	Hash      string         `json:"hash"`
}

func run(args []string, stdin io.Reader, stdout io.Writer, now func() time.Time) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command: keygen, sign, hash or token")
	}

	cmd, args := args[0], args[1:]
	switch cmd {
	case "keygen":
		return keygen(stdout)
	case "sign":
		return sign(args, stdout, now)
	case "hash":
		return hash(args, stdin, stdout)
	case "token":
		return token(args, stdout, now)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func keygen(stdout io.Writer) error {
	pub, priv, err := voucher.GenerateKeypair()
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(stdout, "public: %s\nseed:   %s\n", voucher.EncodeKey(pub), hex.EncodeToString(priv.Seed()))
	return err
}

func sign(args []string, stdout io.Writer, now func() time.Time) error {
	var (
		seed string
		v    domain.Voucher
		ttl  time.Duration
	)

	fs := pflag.NewFlagSet("sign", pflag.ContinueOnError)
	fs.StringVar(&seed, "key", os.Getenv("VOUCHER_KEY"), "hex Ed25519 seed of the signer (default $VOUCHER_KEY)")
	fs.Int64Var(&v.EventID, "event", 0, "event id")
	fs.StringVar(&v.Recipient, "recipient", "", "account receiving the ticket")
	fs.StringVar(&v.Seat, "seat", "", "seat label")
	fs.Int64Var(&v.Price, "price", 0, "event price in minor units")
	fs.DurationVar(&ttl, "ttl", 24*time.Hour, "validity period")
	fs.StringVar(&v.Nonce, "nonce", "", "voucher nonce (default random)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if v.EventID <= 0 || v.Recipient == "" {
		return fmt.Errorf("--event and --recipient are required")
	}

	priv, err := parseSeed(seed)
	if err != nil {
		return err
	}

	if v.Nonce == "" {
		v.Nonce = voucher.NewNonce()
	}
	v.ExpiresAt = now().Add(ttl).Unix()

	signed, sig, err := voucher.Sign(priv, v)
	if err != nil {
		return err
	}

	h, err := voucher.Digest(signed)
	if err != nil {
		return err
	}

	return writeJSON(stdout, Signed{Voucher: signed, Signature: hex.EncodeToString(sig), Hash: h.String()})
}

func hash(args []string, stdin io.Reader, stdout io.Writer) error {
	var file string

	fs := pflag.NewFlagSet("hash", pflag.ContinueOnError)
	fs.StringVarP(&file, "file", "f", "", "voucher JSON file (default stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	in := stdin
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	// Accept both a bare voucher and the output of sign.
	var raw struct {
		domain.Voucher
		Inner *domain.Voucher `json:"voucher"`
	}
	if err := json.NewDecoder(in).Decode(&raw); err != nil {
		return fmt.Errorf("decoding voucher: %w", err)
	}

	v := raw.Voucher
	if raw.Inner != nil {
		v = *raw.Inner
	}

	h, err := voucher.Digest(v)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(stdout, h.String())
	return err
}

func token(args []string, stdout io.Writer, now func() time.Time) error {
	var (
		account string
		secret  string
		ttl     time.Duration
	)

	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	fs.StringVar(&account, "account", "", "account the token is issued to")
	fs.StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "signing secret (default $JWT_SECRET)")
	fs.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if account == "" || secret == "" {
		return fmt.Errorf("--account and --secret are required")
	}

	tok, err := jwt.NewToken(account, []byte(secret), ttl, now())
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(stdout, tok)
	return err
}

func parseSeed(s string) (ed25519.PrivateKey, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil || len(b) != ed25519.SeedSize {
		return nil, fmt.Errorf("--key must be a %d byte hex seed", ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(b), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
