package comm

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/klauspost/compress/zstd"

	"studyguide.parallel/pkg/common"
)

var ErrCorrupt = errors.New("corrupt row slice")

var zstdEncPool = sync.Pool{
	New: func() any {
		enc, _ := zstd.NewWriter(nil)
		return enc
	},
}

var zstdDecPool = sync.Pool{
	New: func() any {
		dec, _ := zstd.NewReader(nil)
		return dec
	},
}

// EncodeRows packs rows [p.StartRow, p.EndRow) of img into a message.
func EncodeRows(img *image.RGBA, p common.Partition, msgType, encoding string) (*common.RowSliceMessage, error) {
	bounds := img.Bounds()
	if p.StartRow < 0 || p.EndRow > bounds.Dy() || p.StartRow > p.EndRow {
		return nil, fmt.Errorf("%w: %s outside %d rows", ErrCorrupt, p, bounds.Dy())
	}

	raw := img.Pix[p.StartRow*img.Stride : p.EndRow*img.Stride]
	data, err := compress(raw, encoding)
	if err != nil {
		return nil, err
	}

	return &common.RowSliceMessage{
		Type:     msgType,
		Rank:     p.Rank,
		StartRow: p.StartRow,
		EndRow:   p.EndRow,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Stride:   img.Stride,
		Encoding: encoding,
		Data:     data,
	}, nil
}

// DecodeRows returns the raw pixel bytes carried by msg.
func DecodeRows(msg *common.RowSliceMessage) ([]byte, error) {
	raw, err := decompress(msg.Data, msg.Encoding)
	if err != nil {
		return nil, err
	}
	if want := (msg.EndRow - msg.StartRow) * msg.Stride; len(raw) != want {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrCorrupt, len(raw), want)
	}
	return raw, nil
}

// WriteRows copies the rows carried by msg into img at their row offset.
func WriteRows(img *image.RGBA, msg *common.RowSliceMessage) error {
	if msg.Width != img.Bounds().Dx() || msg.Stride != img.Stride {
		return fmt.Errorf("%w: slice %dpx/%dB, image %dpx/%dB", ErrCorrupt, msg.Width, msg.Stride, img.Bounds().Dx(), img.Stride)
	}
	if msg.StartRow < 0 || msg.EndRow > img.Bounds().Dy() || msg.StartRow > msg.EndRow {
		return fmt.Errorf("%w: rows [%d, %d) outside image", ErrCorrupt, msg.StartRow, msg.EndRow)
	}

	raw, err := DecodeRows(msg)
	if err != nil {
		return err
	}
	copy(img.Pix[msg.StartRow*img.Stride:], raw)
	return nil
}

// SliceImage builds a standalone image holding only the rows in msg.
func SliceImage(msg *common.RowSliceMessage) (*image.RGBA, error) {
	raw, err := DecodeRows(msg)
	if err != nil {
		return nil, err
	}
	if msg.Stride != msg.Width*4 {
		return nil, fmt.Errorf("%w: stride %d for width %d", ErrCorrupt, msg.Stride, msg.Width)
	}
	return &image.RGBA{
		Pix:    raw,
		Stride: msg.Stride,
		Rect:   image.Rect(0, 0, msg.Width, msg.EndRow-msg.StartRow),
	}, nil
}

func compress(raw []byte, encoding string) ([]byte, error) {
	switch encoding {
	case common.EncodingRaw, "":
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	case common.EncodingZstd:
		if len(raw) == 0 {
			return []byte{}, nil
		}
		enc := zstdEncPool.Get().(*zstd.Encoder)
		defer zstdEncPool.Put(enc)
		return enc.EncodeAll(raw, make([]byte, 0, len(raw)/8)), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}

func decompress(data []byte, encoding string) ([]byte, error) {
	switch encoding {
	case common.EncodingRaw, "":
		return data, nil
	case common.EncodingZstd:
		if len(data) == 0 {
			return []byte{}, nil
		}
		dec := zstdDecPool.Get().(*zstd.Decoder)
		defer zstdDecPool.Put(dec)
		raw, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %w", ErrCorrupt, err)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}
