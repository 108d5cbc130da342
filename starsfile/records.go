package starsfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Tag is the 6-bit block type code.
type Tag uint8

const (
	TagFooter       Tag = 0
	TagPlayerRace   Tag = 6
	TagFileHeader   Tag = 8
	TagPlayerScores Tag = 45
)

// MaxTag is the largest tag that fits in a block header.
const MaxTag Tag = 1<<6 - 1

// Record is one decoded block.
type Record interface {
	Tag() Tag
	MarshalBinary() ([]byte, error)
}

// Kind is the file type carried in the header block.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindRace
	KindMap
	KindState
	KindOrders
	KindHistory
	KindHost
)

var kindExt = map[Kind]string{
	KindRace:    "r",
	KindMap:     "xy",
	KindState:   "m",
	KindOrders:  "x",
	KindHistory: "h",
	KindHost:    "hst",
}

// Ext returns the file type tag ("r", "xy", "m", "x", "h", "hst").
func (k Kind) Ext() string {
	return kindExt[k]
}

// KindFromExt is the inverse of Ext.
func KindFromExt(ext string) Kind {
	for k, e := range kindExt {
		if e == ext {
			return k
		}
	}
	return KindUnknown
}

func (k Kind) String() string {
	if e, ok := kindExt[k]; ok {
		return e
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

var headerMagic = [4]byte{'J', '3', 'J', '3'}

const headerSize = 16

// FileHeader opens every file and names the player who owns it.
type FileHeader struct {
	GameID  uint32
	Version uint16
	Turn    uint16
	Player  uint8
	Kind    Kind
	Flags   uint16
}

func (*FileHeader) Tag() Tag { return TagFileHeader }

func (h *FileHeader) MarshalBinary() ([]byte, error) {
	buf := make([]byte, headerSize)
	copy(buf[0:4], headerMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.GameID)
	binary.LittleEndian.PutUint16(buf[8:10], h.Version)
	binary.LittleEndian.PutUint16(buf[10:12], h.Turn)
	buf[12] = h.Player
	buf[13] = byte(h.Kind)
	binary.LittleEndian.PutUint16(buf[14:16], h.Flags)
	return buf, nil
}

func decodeFileHeader(payload []byte) (Record, error) {
	if len(payload) != headerSize {
		return nil, fmt.Errorf("file header is %d bytes, want %d", len(payload), headerSize)
	}
	if !bytes.Equal(payload[0:4], headerMagic[:]) {
		return nil, fmt.Errorf("bad magic %q", payload[0:4])
	}
	h := &FileHeader{
		GameID:  binary.LittleEndian.Uint32(payload[4:8]),
		Version: binary.LittleEndian.Uint16(payload[8:10]),
		Turn:    binary.LittleEndian.Uint16(payload[10:12]),
		Player:  payload[12],
		Kind:    Kind(payload[13]),
		Flags:   binary.LittleEndian.Uint16(payload[14:16]),
	}
	if _, ok := kindExt[h.Kind]; !ok {
		return nil, fmt.Errorf("unknown file kind %d", payload[13])
	}
	return h, nil
}

// PlayerRace is the engine's race definition for one player slot. Host files
// carry one per player, race files carry their own.
type PlayerRace struct {
	Player     uint8
	Name       string
	PluralName string
}

func (*PlayerRace) Tag() Tag { return TagPlayerRace }

func (r *PlayerRace) MarshalBinary() ([]byte, error) {
	if len(r.Name) > 255 || len(r.PluralName) > 255 {
		return nil, fmt.Errorf("race name too long")
	}
	buf := make([]byte, 0, 3+len(r.Name)+len(r.PluralName))
	buf = append(buf, r.Player)
	buf = append(buf, byte(len(r.Name)))
	buf = append(buf, r.Name...)
	buf = append(buf, byte(len(r.PluralName)))
	buf = append(buf, r.PluralName...)
	return buf, nil
}

func decodePlayerRace(payload []byte) (Record, error) {
	if len(payload) < 3 {
		return nil, fmt.Errorf("race block too short (%d bytes)", len(payload))
	}
	r := &PlayerRace{Player: payload[0]}
	rest := payload[1:]

	name, rest, err := readString(rest)
	if err != nil {
		return nil, fmt.Errorf("race name: %w", err)
	}
	plural, rest, err := readString(rest)
	if err != nil {
		return nil, fmt.Errorf("race plural name: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%d trailing bytes in race block", len(rest))
	}
	r.Name, r.PluralName = name, plural
	return r, nil
}

func readString(b []byte) (string, []byte, error) {
	if len(b) < 1 {
		return "", nil, fmt.Errorf("missing length")
	}
	n := int(b[0])
	if len(b) < 1+n {
		return "", nil, fmt.Errorf("length %d exceeds block", n)
	}
	return string(b[1 : 1+n]), b[1+n:], nil
}

const scoresSize = 24

// PlayerScores is one row of the score sheet. A player's own state file
// always carries their row and may carry rows for other players.
type PlayerScores struct {
	Player       uint16
	Rank         uint16
	Score        uint32
	Resources    uint32
	TechLevels   uint16
	CapitalShips uint16
	EscortShips  uint16
	UnarmedShips uint16
	Starbases    uint16
	Planets      uint16
}

func (*PlayerScores) Tag() Tag { return TagPlayerScores }

func (s *PlayerScores) MarshalBinary() ([]byte, error) {
	buf := make([]byte, scoresSize)
	binary.LittleEndian.PutUint16(buf[0:2], s.Player)
	binary.LittleEndian.PutUint16(buf[2:4], s.Rank)
	binary.LittleEndian.PutUint32(buf[4:8], s.Score)
	binary.LittleEndian.PutUint32(buf[8:12], s.Resources)
	binary.LittleEndian.PutUint16(buf[12:14], s.TechLevels)
	binary.LittleEndian.PutUint16(buf[14:16], s.CapitalShips)
	binary.LittleEndian.PutUint16(buf[16:18], s.EscortShips)
	binary.LittleEndian.PutUint16(buf[18:20], s.UnarmedShips)
	binary.LittleEndian.PutUint16(buf[20:22], s.Starbases)
	binary.LittleEndian.PutUint16(buf[22:24], s.Planets)
	return buf, nil
}

func decodePlayerScores(payload []byte) (Record, error) {
	if len(payload) != scoresSize {
		return nil, fmt.Errorf("score block is %d bytes, want %d", len(payload), scoresSize)
	}
	return &PlayerScores{
		Player:       binary.LittleEndian.Uint16(payload[0:2]),
		Rank:         binary.LittleEndian.Uint16(payload[2:4]),
		Score:        binary.LittleEndian.Uint32(payload[4:8]),
		Resources:    binary.LittleEndian.Uint32(payload[8:12]),
		TechLevels:   binary.LittleEndian.Uint16(payload[12:14]),
		CapitalShips: binary.LittleEndian.Uint16(payload[14:16]),
		EscortShips:  binary.LittleEndian.Uint16(payload[16:18]),
		UnarmedShips: binary.LittleEndian.Uint16(payload[18:20]),
		Starbases:    binary.LittleEndian.Uint16(payload[20:22]),
		Planets:      binary.LittleEndian.Uint16(payload[22:24]),
	}, nil
}

// Opaque holds a block the pipeline has no decoder for. Its bytes pass
// through unchanged.
type Opaque struct {
	Type Tag
	Data []byte
}

func (o *Opaque) Tag() Tag { return o.Type }

func (o *Opaque) MarshalBinary() ([]byte, error) {
	return o.Data, nil
}
