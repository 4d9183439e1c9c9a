// Package qr derives product QR hashes and renders them as PNG data URLs.
package qr

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	hashPrefix = "product_"
	imageSize  = 256
)

// Hash builds the opaque qrHash for a product created at t.
func Hash(id int64, t time.Time) string {
	return fmt.Sprintf("%s%d_%d", hashPrefix, id, t.UnixMilli())
}

// ParseHash splits a qrHash into its product id and creation time.
func ParseHash(h string) (int64, time.Time, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(h), hashPrefix)
	if !ok {
		return 0, time.Time{}, false
	}
	idPart, msPart, ok := strings.Cut(rest, "_")
	if !ok {
		return 0, time.Time{}, false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, time.Time{}, false
	}
	ms, err := strconv.ParseInt(msPart, 10, 64)
	if err != nil {
		return 0, time.Time{}, false
	}
	return id, time.UnixMilli(ms), true
}

// DataURL renders content as a PNG QR image encoded in a data URL.
func DataURL(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, imageSize)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
