package main

import (
	"fmt"
	"io"

	"github.com/skip2/go-qrcode"
)

// DisplayConnectQR prints the relay's WebSocket URL as a QR code so a TV
// or phone camera can pick it up, followed by a plain-text fallback.
func DisplayConnectQR(w io.Writer, connectURL, fingerprint string) {
	qr, err := qrcode.New(connectURL, qrcode.Medium)
	if err != nil {
		fmt.Fprintf(w, "Error generating QR code: %v\n", err)
		fmt.Fprintf(w, "Connect URL: %s\n", connectURL)
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "         SCAN TO CONNECT")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
	fmt.Fprint(w, qr.ToSmallString(false))
	fmt.Fprintln(w, "-------------------------------------------")
	fmt.Fprintf(w, "  URL:         %s\n", connectURL)
	if fingerprint != "" {
		fmt.Fprintf(w, "  Fingerprint: %s\n", fingerprint)
	}
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
}
