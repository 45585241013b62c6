package stream

import (
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// textDecoder turns successive byte chunks into text. A multi-byte sequence
// split across chunks is held back until the rest of it arrives.
type textDecoder struct {
	t       transform.Transformer
	pending []byte
	dst     []byte
}

func newTextDecoder() *textDecoder {
	return &textDecoder{
		t:   unicode.UTF8BOM.NewDecoder(),
		dst: make([]byte, 4096),
	}
}

func (d *textDecoder) decode(chunk []byte) string {
	src := chunk
	if len(d.pending) > 0 {
		src = append(d.pending, chunk...)
		d.pending = nil
	}

	var out strings.Builder
	for len(src) > 0 {
		nDst, nSrc, err := d.t.Transform(d.dst, src, false)
		out.Write(d.dst[:nDst])
		src = src[nSrc:]

		switch err {
		case nil:
			if nSrc == 0 && nDst == 0 {
				return out.String()
			}
		case transform.ErrShortDst:
			if nSrc == 0 && nDst == 0 {
				d.dst = make([]byte, 2*len(d.dst))
			}
		case transform.ErrShortSrc:
			d.pending = append([]byte(nil), src...)
			return out.String()
		default:
			return out.String()
		}
	}
	return out.String()
}

// pendingLen reports how many bytes of an incomplete sequence are held back.
func (d *textDecoder) pendingLen() int {
	return len(d.pending)
}
