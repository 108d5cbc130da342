// Package starsfile decodes and encodes engine files as a sequence of tagged
// blocks. Each block starts with a little-endian uint16: the high 6 bits are
// the tag, the low 10 bits the payload size.
package starsfile

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const maxBlockSize = 1<<10 - 1

// DecodeFunc turns one block payload into a typed record.
type DecodeFunc func(payload []byte) (Record, error)

// Codec is what the turn pipeline needs from the file format.
type Codec interface {
	Decode(data []byte) (*File, error)
	Encode(f *File) ([]byte, error)
}

// File is a decoded engine file. Records keep their on-disk order and the
// first one is always the header.
type File struct {
	Records []Record
}

// Header returns the leading file header.
func (f *File) Header() *FileHeader {
	if len(f.Records) == 0 {
		return nil
	}
	h, _ := f.Records[0].(*FileHeader)
	return h
}

// Kind is shorthand for Header().Kind.
func (f *File) Kind() Kind {
	if h := f.Header(); h != nil {
		return h.Kind
	}
	return KindUnknown
}

// Races returns every race record in order.
func (f *File) Races() []*PlayerRace {
	var out []*PlayerRace
	for _, r := range f.Records {
		if pr, ok := r.(*PlayerRace); ok {
			out = append(out, pr)
		}
	}
	return out
}

// Scores returns every score record in order.
func (f *File) Scores() []*PlayerScores {
	var out []*PlayerScores
	for _, r := range f.Records {
		if ps, ok := r.(*PlayerScores); ok {
			out = append(out, ps)
		}
	}
	return out
}

// ParseError reports a file the codec rejected.
type ParseError struct {
	Offset int
	Tag    Tag
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("starsfile: block %d at offset %d: %v", e.Tag, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	ErrEmpty        = errors.New("empty file")
	ErrNoHeader     = errors.New("first block is not a file header")
	ErrKindMismatch = errors.New("unexpected file kind")
)

var defaultDecoders = map[Tag]DecodeFunc{
	TagFileHeader:   decodeFileHeader,
	TagPlayerRace:   decodePlayerRace,
	TagPlayerScores: decodePlayerScores,
}

// BlockCodec is the default Codec. Tags without a registered decoder become
// Opaque records.
type BlockCodec struct {
	decoders map[Tag]DecodeFunc
}

// NewBlockCodec returns a codec with the header, race and score decoders.
func NewBlockCodec() *BlockCodec {
	c := &BlockCodec{decoders: make(map[Tag]DecodeFunc, len(defaultDecoders))}
	for tag, fn := range defaultDecoders {
		c.decoders[tag] = fn
	}
	return c
}

// Register installs (or replaces) the decoder for tag.
func (c *BlockCodec) Register(tag Tag, fn DecodeFunc) {
	c.decoders[tag] = fn
}

func (c *BlockCodec) Decode(data []byte) (*File, error) {
	if len(data) == 0 {
		return nil, &ParseError{Err: ErrEmpty}
	}

	f := &File{}
	off := 0
	for off < len(data) {
		if len(data)-off < 2 {
			return nil, &ParseError{Offset: off, Err: fmt.Errorf("truncated block header")}
		}
		hdr := binary.LittleEndian.Uint16(data[off : off+2])
		tag := Tag(hdr >> 10)
		size := int(hdr & maxBlockSize)
		start := off + 2
		if start+size > len(data) {
			return nil, &ParseError{Offset: off, Tag: tag, Err: fmt.Errorf("block size %d exceeds file", size)}
		}
		payload := data[start : start+size]

		var rec Record
		if fn, ok := c.decoders[tag]; ok {
			r, err := fn(payload)
			if err != nil {
				return nil, &ParseError{Offset: off, Tag: tag, Err: err}
			}
			rec = r
		} else {
			rec = &Opaque{Type: tag, Data: append([]byte(nil), payload...)}
		}

		if len(f.Records) == 0 && tag != TagFileHeader {
			return nil, &ParseError{Offset: off, Tag: tag, Err: ErrNoHeader}
		}
		f.Records = append(f.Records, rec)
		off = start + size
	}
	return f, nil
}

func (c *BlockCodec) Encode(f *File) ([]byte, error) {
	if f == nil || f.Header() == nil {
		return nil, ErrNoHeader
	}

	var out []byte
	for i, rec := range f.Records {
		tag := rec.Tag()
		if tag > MaxTag {
			return nil, fmt.Errorf("record %d: tag %d out of range", i, tag)
		}
		payload, err := rec.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if len(payload) > maxBlockSize {
			return nil, fmt.Errorf("record %d: payload of %d bytes exceeds block limit", i, len(payload))
		}
		var hdr [2]byte
		binary.LittleEndian.PutUint16(hdr[:], uint16(tag)<<10|uint16(len(payload)))
		out = append(out, hdr[:]...)
		out = append(out, payload...)
	}
	return out, nil
}

// DecodeKind decodes data and checks the header kind. KindUnknown accepts any kind.
func DecodeKind(c Codec, data []byte, want Kind) (*File, error) {
	f, err := c.Decode(data)
	if err != nil {
		return nil, err
	}
	if want != KindUnknown && f.Kind() != want {
		return nil, &ParseError{Tag: TagFileHeader, Err: fmt.Errorf("%w: got %s, want %s", ErrKindMismatch, f.Kind(), want)}
	}
	return f, nil
}
