package domain

import "time"

// Authorization is the capability presented with a mint request. It is one of
// MinterProof or VoucherProof.
type Authorization interface {
	authorization()
}

// MinterProof asserts that Caller is in the authorized minter set of the
// event's organizer.
type MinterProof struct {
	Caller string
}

// VoucherProof carries an off-chain signed voucher. Any payer holding a valid
// voucher may mint with it.
type VoucherProof struct {
	Voucher   Voucher
	Signature []byte
}

func (MinterProof) authorization()  {}
func (VoucherProof) authorization() {}

// Voucher is the signed payload. Field tags fix the canonical CBOR layout;
// changing them invalidates every issued signature.
type Voucher struct {
	EventID   int64  `cbor:"1,keyasint" json:"event_id"`
	Recipient string `cbor:"2,keyasint" json:"recipient"`
	Seat      string `cbor:"3,keyasint" json:"seat"`
	Price     int64  `cbor:"4,keyasint" json:"price"`
	ExpiresAt int64  `cbor:"5,keyasint" json:"expires_at"`
	Nonce     string `cbor:"6,keyasint" json:"nonce"`
	Signer    string `cbor:"7,keyasint" json:"signer"`
}

func (v Voucher) Expired(now time.Time) bool {
	return now.Unix() >= v.ExpiresAt
}

type AuthorizationResult struct {
	Hash   string `json:"hash"`
	Event  Event  `json:"event"`
	Signer string `json:"signer"`
}

type MintRequest struct {
	EventID       int64
	Recipient     string
	Seat          string
	MetadataURI   string
	Authorization Authorization
}
