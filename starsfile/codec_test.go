package starsfile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateFile() *File {
	return &File{Records: []Record{
		&FileHeader{GameID: 77, Version: 2, Turn: 3, Player: 1, Kind: KindState},
		&PlayerRace{Player: 1, Name: "Gestalti", PluralName: "Gestalti"},
		&Opaque{Type: 13, Data: []byte{1, 2, 3}},
		&PlayerScores{Player: 1, Rank: 2, Score: 95, Resources: 400, Planets: 6},
		&PlayerScores{Player: 0, Rank: 1, Score: 100},
	}}
}

func TestBlockCodec_EncodeDecode(t *testing.T) {
	c := NewBlockCodec()

	data, err := c.Encode(stateFile())
	require.NoError(t, err)

	f, err := c.Decode(data)
	require.NoError(t, err)

	h := f.Header()
	require.NotNil(t, h)
	assert.Equal(t, uint16(3), h.Turn)
	assert.Equal(t, uint8(1), h.Player)
	assert.Equal(t, KindState, f.Kind())

	races := f.Races()
	require.Len(t, races, 1)
	assert.Equal(t, "Gestalti", races[0].Name)

	scores := f.Scores()
	require.Len(t, scores, 2)
	assert.Equal(t, uint32(95), scores[0].Score)
	assert.Equal(t, uint16(6), scores[0].Planets)
	assert.Equal(t, uint16(0), scores[1].Player)

	op, ok := f.Records[2].(*Opaque)
	require.True(t, ok, "unknown tags should decode as opaque")
	assert.Equal(t, Tag(13), op.Tag())

	again, err := c.Encode(f)
	require.NoError(t, err)
	assert.Equal(t, data, again, "opaque blocks must pass through unchanged")
}

func TestBlockCodec_DecodeErrors(t *testing.T) {
	c := NewBlockCodec()
	good, err := c.Encode(stateFile())
	require.NoError(t, err)

	cases := map[string][]byte{
		"empty":            nil,
		"truncated header": good[:1],
		"truncated block":  good[:10],
		"no file header":   {0x03, 0x34, 1, 2, 3}, // tag 13, size 3
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := c.Decode(data)
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
		})
	}

	t.Run("bad magic", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		bad[2] = 'X'
		_, err := c.Decode(bad)
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, TagFileHeader, perr.Tag)
	})
}

func TestDecodeKind(t *testing.T) {
	c := NewBlockCodec()
	data, err := c.Encode(stateFile())
	require.NoError(t, err)

	_, err = DecodeKind(c, data, KindState)
	require.NoError(t, err)

	_, err = DecodeKind(c, data, KindUnknown)
	require.NoError(t, err)

	_, err = DecodeKind(c, data, KindHost)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKindMismatch))
}

func TestBlockCodec_Register(t *testing.T) {
	c := NewBlockCodec()
	called := false
	c.Register(13, func(payload []byte) (Record, error) {
		called = true
		return &Opaque{Type: 13, Data: payload}, nil
	})

	data, err := c.Encode(stateFile())
	require.NoError(t, err)
	_, err = c.Decode(data)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestKindFromExt(t *testing.T) {
	for _, k := range []Kind{KindRace, KindMap, KindState, KindOrders, KindHistory, KindHost} {
		assert.Equal(t, k, KindFromExt(k.Ext()))
	}
	assert.Equal(t, KindUnknown, KindFromExt("zip"))
}
