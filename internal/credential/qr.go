package credential

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

// RenderQR encodes the opaque token as a QR PNG. Deterministic in the token
// bytes; no state.
func RenderQR(token string) ([]byte, error) {
	png, err := qrcode.Encode(token, qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return png, nil
}

// RenderQRDataURL wraps RenderQR for direct embedding in an <img> src.
func RenderQRDataURL(token string) (string, error) {
	png, err := RenderQR(token)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
