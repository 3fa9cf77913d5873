package avatar

import (
	"bytes"
	"errors"
)

// Kind is an accepted image format.
type Kind struct {
	Ext  string
	MIME string
}

var (
	KindPNG  = Kind{Ext: ".png", MIME: "image/png"}
	KindJPEG = Kind{Ext: ".jpg", MIME: "image/jpeg"}
)

var ErrUnsupportedType = errors.New("only PNG and JPEG images are accepted")

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Detect identifies the image format from its leading bytes. The declared
// content type of the upload is never trusted.
func Detect(head []byte) (Kind, error) {
	switch {
	case len(head) >= len(pngMagic) && bytes.Equal(head[:len(pngMagic)], pngMagic):
		return KindPNG, nil
	case len(head) > 3 && head[0] == 0xff && head[1] == 0xd8 && head[2] == 0xff:
		return KindJPEG, nil
	default:
		return Kind{}, ErrUnsupportedType
	}
}
