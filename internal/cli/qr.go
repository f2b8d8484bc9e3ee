package cli

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// printQR renders url as a QR code made of half block characters, small
// enough for a terminal.
func (c *cli) printQR(url string) error {
	q, err := qrcode.New(url, qrcode.Low)
	if err != nil {
		return fmt.Errorf("qr code for %s: %w", url, err)
	}
	c.printf("%s", q.ToSmallString(false))
	return nil
}
