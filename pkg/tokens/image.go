package tokens

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"image"
	"strconv"
	"strings"

	// Registered for image.DecodeConfig.
	_ "image/jpeg"
	_ "image/png"
)

// Upload constraints. Boundary values are inclusive: an image of exactly
// MaxImageBytes, exactly MinDimension on a side, or exactly MaxPixels is
// accepted.
const (
	MaxImageBytes = 10 * 1024 * 1024
	MinDimension  = 50
	MaxPixels     = 25_000_000
)

// supportedMIMETypes for screenshot extraction.
var supportedMIMETypes = map[string]bool{
	"image/png":     true,
	"image/jpeg":    true,
	"image/svg+xml": true,
}

// ValidateImage checks an upload against the input contract: size cap,
// supported format, decodable header, and pixel bounds. Returns a
// human-readable reason on rejection.
func ValidateImage(data []byte, mimeType string) error {
	if len(data) == 0 {
		return fmt.Errorf("image is empty")
	}
	if len(data) > MaxImageBytes {
		return fmt.Errorf("image exceeds maximum size of %d bytes", MaxImageBytes)
	}
	if !supportedMIMETypes[mimeType] {
		return fmt.Errorf("unsupported image type %q (want PNG, JPG, or SVG)", mimeType)
	}

	if mimeType == "image/svg+xml" {
		return validateSVG(data)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("image decodes corruptly: %v", err)
	}
	switch {
	case mimeType == "image/png" && format != "png":
		return fmt.Errorf("declared image/png but decoded as %s", format)
	case mimeType == "image/jpeg" && format != "jpeg":
		return fmt.Errorf("declared image/jpeg but decoded as %s", format)
	}
	if cfg.Width < MinDimension || cfg.Height < MinDimension {
		return fmt.Errorf("image is %dx%d px; minimum is %dx%d", cfg.Width, cfg.Height, MinDimension, MinDimension)
	}
	if cfg.Width*cfg.Height > MaxPixels {
		return fmt.Errorf("image is %d megapixels; maximum is %d", cfg.Width*cfg.Height/1_000_000, MaxPixels/1_000_000)
	}
	return nil
}

// svgRoot is the subset of the SVG root element needed for validation.
type svgRoot struct {
	XMLName xml.Name `xml:"svg"`
	Width   string   `xml:"width,attr"`
	Height  string   `xml:"height,attr"`
}

// validateSVG checks that the document parses and its declared dimensions
// (when present) satisfy the raster bounds. SVGs without explicit pixel
// dimensions are accepted.
func validateSVG(data []byte) error {
	var root svgRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("svg parses corruptly: %v", err)
	}
	w, wOK := svgPixels(root.Width)
	h, hOK := svgPixels(root.Height)
	if wOK && hOK {
		if w < MinDimension || h < MinDimension {
			return fmt.Errorf("svg is %dx%d px; minimum is %dx%d", w, h, MinDimension, MinDimension)
		}
		if w*h > MaxPixels {
			return fmt.Errorf("svg is %d megapixels; maximum is %d", w*h/1_000_000, MaxPixels/1_000_000)
		}
	}
	return nil
}

func svgPixels(attr string) (int, bool) {
	attr = strings.TrimSuffix(strings.TrimSpace(attr), "px")
	if attr == "" || strings.HasSuffix(attr, "%") {
		return 0, false
	}
	n, err := strconv.Atoi(attr)
	if err != nil {
		return 0, false
	}
	return n, true
}
