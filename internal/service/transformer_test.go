package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImageTransformerResizesToExactSize(t *testing.T) {
	tr := NewImageTransformer()
	out, ct, err := tr.Transform(context.Background(), encodePNG(t, 64, 32), 400, 500, "jpg")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", ct)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 400, cfg.Width)
	assert.Equal(t, 500, cfg.Height)
}

func TestImageTransformerKeepsSourceFormat(t *testing.T) {
	tr := NewImageTransformer()
	out, ct, err := tr.Transform(context.Background(), encodePNG(t, 10, 10), 400, 400, "")
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
	_, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
}

func TestImageTransformerRejectsWebPOutput(t *testing.T) {
	_, _, err := NewImageTransformer().Transform(context.Background(), encodePNG(t, 10, 10), 400, 400, "webp")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestImageTransformerRejectsNonImage(t *testing.T) {
	_, _, err := NewImageTransformer().Transform(context.Background(), []byte("not an image"), 400, 400, "png")
	assert.Error(t, err)
}
