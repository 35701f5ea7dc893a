// Package signature captures signature images, drawn on a pad or typed, and
// moves them around as PNG data URLs.
package signature

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"strings"
)

var ErrInvalidDataURL = errors.New("invalid image data URL")

// Decoded images may not exceed these dimensions.
const (
	MaxImageWidth  = 4000
	MaxImageHeight = 4000
)

const pngPrefix = "data:image/png;base64,"

// EncodePNG renders img as a PNG data URL.
func EncodePNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return pngPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeDataURL parses a base64 image data URL (PNG or JPEG).
func DecodeDataURL(s string) (image.Image, error) {
	raw, err := checkedBytes(s)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return img, nil
}

// Validate checks that s is an image data URL of acceptable size without
// decoding the pixels.
func Validate(s string) error {
	_, err := checkedBytes(s)
	return err
}

func checkedBytes(s string) ([]byte, error) {
	raw, _, err := DataURLBytes(s)
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > MaxImageWidth || cfg.Height > MaxImageHeight {
		return nil, fmt.Errorf("%w: image is %dx%d", ErrInvalidDataURL, cfg.Width, cfg.Height)
	}
	return raw, nil
}

// DataURLBytes returns the payload and media type of a base64 data URL.
func DataURLBytes(s string) ([]byte, string, error) {
	if !strings.HasPrefix(s, "data:") {
		return nil, "", ErrInvalidDataURL
	}
	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return nil, "", ErrInvalidDataURL
	}
	meta := s[len("data:"):comma]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, "", ErrInvalidDataURL
	}
	raw, err := base64.StdEncoding.DecodeString(s[comma+1:])
	if err != nil {
		return nil, "", ErrInvalidDataURL
	}
	return raw, strings.TrimSuffix(meta, ";base64"), nil
}
