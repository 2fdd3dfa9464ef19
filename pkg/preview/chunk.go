package preview

import (
	"encoding/binary"
	"errors"
)

const (
	// HeaderSize is the per-chunk header: sequence (uint32), index (uint16),
	// count (uint16), all big endian.
	HeaderSize = 8

	// ChunkPayload keeps each message under the 16 KiB that every browser
	// accepts on a data channel.
	ChunkPayload = 16*1024 - HeaderSize
)

// ErrBadChunk is returned by Assembler.Add for malformed chunks.
var ErrBadChunk = errors.New("preview: bad chunk")

// Chunk splits a frame into data channel messages.
func Chunk(seq uint32, data []byte) [][]byte {
	count := (len(data) + ChunkPayload - 1) / ChunkPayload
	if count == 0 {
		count = 1
	}
	out := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		start := i * ChunkPayload
		end := min(start+ChunkPayload, len(data))

		msg := make([]byte, HeaderSize+end-start)
		binary.BigEndian.PutUint32(msg[0:4], seq)
		binary.BigEndian.PutUint16(msg[4:6], uint16(i))
		binary.BigEndian.PutUint16(msg[6:8], uint16(count))
		copy(msg[HeaderSize:], data[start:end])
		out = append(out, msg)
	}
	return out
}

// Assembler rebuilds frames from chunks. A chunk of a newer sequence
// discards the partial frame in progress.
type Assembler struct {
	seq    uint32
	count  int
	parts  [][]byte
	filled int
}

// Add consumes one chunk and returns the frame once complete.
func (a *Assembler) Add(msg []byte) ([]byte, bool, error) {
	if len(msg) < HeaderSize {
		return nil, false, ErrBadChunk
	}
	seq := binary.BigEndian.Uint32(msg[0:4])
	idx := int(binary.BigEndian.Uint16(msg[4:6]))
	count := int(binary.BigEndian.Uint16(msg[6:8]))
	if count == 0 || idx >= count {
		return nil, false, ErrBadChunk
	}

	if a.parts == nil || seq != a.seq || count != a.count {
		a.seq = seq
		a.count = count
		a.parts = make([][]byte, count)
		a.filled = 0
	}
	if a.parts[idx] == nil {
		a.parts[idx] = append([]byte{}, msg[HeaderSize:]...)
		a.filled++
	}
	if a.filled < a.count {
		return nil, false, nil
	}

	size := 0
	for _, p := range a.parts {
		size += len(p)
	}
	frame := make([]byte, 0, size)
	for _, p := range a.parts {
		frame = append(frame, p...)
	}
	a.parts = nil
	return frame, true, nil
}
