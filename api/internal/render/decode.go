package render

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder

	"ui-annotator/api/internal/annotate"
	"ui-annotator/api/internal/util"
)

// Screenshot is a decoded image together with the bytes that produced it.
type Screenshot struct {
	Image  image.Image
	Bytes  []byte
	MIME   string
	Format string
}

func (s *Screenshot) Width() int  { return s.Image.Bounds().Dx() }
func (s *Screenshot) Height() int { return s.Image.Bounds().Dy() }

// Decode reads an image buffer. When the bytes are not a known image format a
// single conversion pass reinterprets them as base64 or a data URL and decodes
// again; if that fails too the result wraps annotate.ErrDecode.
func Decode(buf []byte) (*Screenshot, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", annotate.ErrDecode)
	}
	img, format, err := image.Decode(bytes.NewReader(buf))
	if err == nil {
		return &Screenshot{Image: img, Bytes: buf, MIME: util.PickMIME("", "", buf), Format: format}, nil
	}

	converted, cerr := convert(buf)
	if cerr != nil {
		return nil, fmt.Errorf("%w: %v (conversion: %v)", annotate.ErrDecode, err, cerr)
	}
	return converted, nil
}

func convert(buf []byte) (*Screenshot, error) {
	text := strings.TrimSpace(string(buf))
	raw, hint, err := util.DecodeBase64MaybeDataURL(text)
	if err != nil || len(raw) == 0 {
		return nil, fmt.Errorf("not base64: %v", err)
	}
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return &Screenshot{Image: img, Bytes: raw, MIME: util.PickMIME("", hint, raw), Format: "converted"}, nil
}
