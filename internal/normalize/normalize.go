package normalize

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/jdeng/goheif"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"drive-ocr/internal/internalerr"
)

// CanonicalMIME is the encoding every converted image ends up in.
const CanonicalMIME = "image/png"

// Image is image content together with its declared MIME type.
type Image struct {
	Data     []byte
	MimeType string
}

// DecodeFunc decodes one raster encoding.
type DecodeFunc func(r io.Reader) (image.Image, error)

var supported = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/bmp":  true,
	"image/webp": true,
}

var aliases = map[string]string{
	"image/jpg":           "image/jpeg",
	"image/pjpeg":         "image/jpeg",
	"image/x-png":         "image/png",
	"image/x-ms-bmp":      "image/bmp",
	"image/x-bmp":         "image/bmp",
	"image/tif":           "image/tiff",
	"image/x-tiff":        "image/tiff",
	"image/heic-sequence": "image/heic",
	"image/heif-sequence": "image/heif",
}

// Canonical lower-cases a MIME type, drops parameters and resolves aliases.
func Canonical(mime string) string {
	m := strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	if a, ok := aliases[m]; ok {
		return a
	}
	return m
}

// Supported reports whether the recognizer accepts mime as is.
func Supported(mime string) bool { return supported[Canonical(mime)] }

type Normalizer struct {
	decoders     map[string]DecodeFunc
	maxDimension int
}

type Option func(*Normalizer)

// WithDecoder registers or replaces the decoder used for a MIME type.
func WithDecoder(mime string, fn DecodeFunc) Option {
	return func(n *Normalizer) { n.decoders[Canonical(mime)] = fn }
}

// WithMaxDimension bounds the longer side of converted images; 0 keeps the size.
func WithMaxDimension(px int) Option {
	return func(n *Normalizer) { n.maxDimension = px }
}

func New(opts ...Option) *Normalizer {
	n := &Normalizer{decoders: map[string]DecodeFunc{
		"image/heic": goheif.Decode,
		"image/heif": goheif.Decode,
		"image/tiff": tiff.Decode,
	}}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Normalize returns supported images untouched and converts everything else to PNG.
func (n *Normalizer) Normalize(data []byte, mime string) (Image, error) {
	m := Canonical(mime)
	if supported[m] {
		return Image{Data: data, MimeType: m}, nil
	}

	decode, ok := n.decoders[m]
	if !ok {
		decode = func(r io.Reader) (image.Image, error) {
			img, _, err := image.Decode(r)
			return img, err
		}
	}
	src, err := decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("%w: decode %s: %w", internalerr.ErrConversion, m, err)
	}
	if src == nil || src.Bounds().Empty() {
		return Image{}, fmt.Errorf("%w: decode %s: empty raster", internalerr.ErrConversion, m)
	}

	dst := imaging.Clone(src)
	b := dst.Bounds()
	log.Printf("normalize: %s mode=%T size=%dx%d stride=%d", m, src, b.Dx(), b.Dy(), dst.Stride)

	if n.maxDimension > 0 && (b.Dx() > n.maxDimension || b.Dy() > n.maxDimension) {
		dst = imaging.Fit(dst, n.maxDimension, n.maxDimension, imaging.Lanczos)
		log.Printf("normalize: downscaled to %dx%d", dst.Bounds().Dx(), dst.Bounds().Dy())
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dst, imaging.PNG); err != nil {
		return Image{}, fmt.Errorf("%w: encode png: %w", internalerr.ErrConversion, err)
	}
	return Image{Data: buf.Bytes(), MimeType: CanonicalMIME}, nil
}
