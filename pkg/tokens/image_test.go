package tokens

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodePNG renders a real w×h PNG.
func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

// pngHeader fabricates a PNG signature plus IHDR chunk declaring w×h. Decode
// of the full image would fail, but DecodeConfig only reads the header —
// enough to exercise the pixel-bound checks without allocating megapixels.
func pngHeader(w, h int) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], uint32(w))
	binary.BigEndian.PutUint32(ihdr[4:8], uint32(h))
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA
	chunk := append([]byte("IHDR"), ihdr...)

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], 13)
	buf.Write(length[:])
	buf.Write(chunk)

	var crc [4]byte
	binary.BigEndian.PutUint32(crc[:], crc32.ChecksumIEEE(chunk))
	buf.Write(crc[:])
	return buf.Bytes()
}

func TestValidateImage_Accepts(t *testing.T) {
	assert.NoError(t, ValidateImage(encodePNG(t, 100, 80), "image/png"))
}

func TestValidateImage_MinDimensionBoundary(t *testing.T) {
	// Exactly 50×50 is accepted; 49×49 is rejected.
	assert.NoError(t, ValidateImage(encodePNG(t, 50, 50), "image/png"))

	err := ValidateImage(encodePNG(t, 49, 49), "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minimum")
}

func TestValidateImage_MaxBytesBoundary(t *testing.T) {
	// A valid header padded to exactly the cap is accepted; one byte over is not.
	base := encodePNG(t, 100, 100)
	padded := append(base, make([]byte, MaxImageBytes-len(base))...)
	assert.NoError(t, ValidateImage(padded, "image/png"))

	over := append(padded, 0)
	err := ValidateImage(over, "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum size")
}

func TestValidateImage_MaxPixelsBoundary(t *testing.T) {
	// Exactly 25 Mpx (5000×5000) is accepted; 5001×5000 is rejected.
	assert.NoError(t, ValidateImage(pngHeader(5000, 5000), "image/png"))

	err := ValidateImage(pngHeader(5001, 5000), "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "megapixels")
}

func TestValidateImage_UnsupportedType(t *testing.T) {
	err := ValidateImage(encodePNG(t, 100, 100), "image/gif")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}

func TestValidateImage_CorruptData(t *testing.T) {
	err := ValidateImage([]byte("not a png at all"), "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corruptly")
}

func TestValidateImage_MIMEFormatMismatch(t *testing.T) {
	err := ValidateImage(encodePNG(t, 100, 100), "image/jpeg")
	assert.Error(t, err)
}

func TestValidateImage_SVG(t *testing.T) {
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="200" height="100"></svg>`)
	assert.NoError(t, ValidateImage(svg, "image/svg+xml"))

	tiny := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="20" height="20"></svg>`)
	assert.Error(t, ValidateImage(tiny, "image/svg+xml"))

	corrupt := []byte(`<svg`)
	assert.Error(t, ValidateImage(corrupt, "image/svg+xml"))

	// No declared dimensions: accepted.
	bare := []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10"></svg>`)
	assert.NoError(t, ValidateImage(bare, "image/svg+xml"))
}

func TestValidateImage_Empty(t *testing.T) {
	assert.Error(t, ValidateImage(nil, "image/png"))
}
