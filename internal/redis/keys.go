package redisx

import "fmt"

const ns = "tixledger:v1"

func KeyEvent(eventID int64) string {
	return fmt.Sprintf("%s:event:%d", ns, eventID)
}

func KeySupply() string {
	return ns + ":supply"
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func KeyLoginNonce(account string) string {
	return fmt.Sprintf("%s:auth:nonce:%s", ns, account)
}

// KeyIdemMint scopes a client Idempotency-Key to the event, the caller and a
// fingerprint of the request body.
func KeyIdemMint(eventID int64, caller, key, fingerprint string) string {
	return fmt.Sprintf("%s:idem:mint:%d:%s:%s:%s", ns, eventID, caller, key, fingerprint)
}

func ChannelTicketsChanged() string {
	return ns + ":tickets:changed"
}
