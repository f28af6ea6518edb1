package identity

import qrcode "github.com/skip2/go-qrcode"

// qrcodePNG renders a provisioning URI as a square PNG of the given edge
// length in pixels. Medium recovery keeps the image scannable on small
// phone screens without inflating the module count.
func qrcodePNG(uri string, size int) ([]byte, error) {
	return qrcode.Encode(uri, qrcode.Medium, size)
}
