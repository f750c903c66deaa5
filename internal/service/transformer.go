package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedFormat is returned for output formats without an encoder.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// maxSourcePixels caps the decoded size of a source image.
const maxSourcePixels = 50_000_000

// ImageTransformer resizes images to an exact size and re-encodes them. The
// re-encode drops EXIF and any other embedded metadata.
type ImageTransformer struct{}

// NewImageTransformer constructs the transformer.
func NewImageTransformer() *ImageTransformer {
	return &ImageTransformer{}
}

// Transform fills width x height from the centre of the source and encodes the
// result as format. An empty format keeps the source format where it can be
// encoded, falling back to PNG.
func (t *ImageTransformer) Transform(ctx context.Context, data []byte, width, height int, format string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	cfg, sourceFormat, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxSourcePixels {
		return nil, "", fmt.Errorf("source image is %dx%d, outside the supported size", cfg.Width, cfg.Height)
	}

	target, contentType, err := outputFormat(format, sourceFormat)
	if err != nil {
		return nil, "", err
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	resized := imaging.Fill(src, width, height, imaging.Center, imaging.CatmullRom)

	var buf bytes.Buffer
	opts := []imaging.EncodeOption{imaging.JPEGQuality(90), imaging.PNGCompressionLevel(png.BestCompression)}
	if err := imaging.Encode(&buf, resized, target, opts...); err != nil {
		return nil, "", fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), contentType, nil
}

func outputFormat(requested, source string) (imaging.Format, string, error) {
	name := strings.ToLower(strings.TrimSpace(requested))
	if name == "" {
		name = source
	}
	switch name {
	case "jpg", "jpeg":
		return imaging.JPEG, "image/jpeg", nil
	case "png":
		return imaging.PNG, "image/png", nil
	case "gif":
		return imaging.GIF, "image/gif", nil
	case "bmp":
		return imaging.BMP, "image/bmp", nil
	case "webp":
		if requested == "" {
			return imaging.PNG, "image/png", nil
		}
		return 0, "", ErrUnsupportedFormat
	default:
		return 0, "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}
