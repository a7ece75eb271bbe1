package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kirinyoku/tixledger/internal/domain"
)

// LoadBootstrap reads the registry bootstrap file. An empty path yields an
// empty bootstrap.
//
//	admins: [<account>]
//	organizers: [<account>]
//	grants:
//	  - {account: <account>, role: operator, organizer: <account>, event_id: 7}
//	signers:
//	  - {organizer: <account>, public_key: <hex ed25519 key>}
func LoadBootstrap(path string) (domain.Bootstrap, error) {
	const op = "config.LoadBootstrap"

	var b domain.Bootstrap
	if path == "" {
		return b, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return b, fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	if err := dec.Decode(&b); err != nil && !errors.Is(err, io.EOF) {
		return b, fmt.Errorf("%s: %s: %w", op, path, err)
	}

	return b, nil
}
