package ticketqr

import (
	"fmt"
	"io"

	"github.com/yeqown/go-qrcode"
)

// Render writes the QR code for payload to w as a JPEG image.
func Render(w io.Writer, payload string) error {
	const op = "ticketqr.Render"

	qrc, err := qrcode.New(payload, qrcode.WithQRWidth(8))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := qrc.SaveTo(w); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
