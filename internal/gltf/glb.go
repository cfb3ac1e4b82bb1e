package gltf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	// MagicGLB is the little-endian GLB header magic ("glTF").
	MagicGLB = 0x46546C67
	// SupportedVersion is the only GLB container version the pipeline accepts.
	SupportedVersion = 2

	// ChunkJSON identifies the mandatory JSON chunk ("JSON").
	ChunkJSON = 0x4E4F534A
	// ChunkBIN identifies the optional binary chunk ("BIN\x00").
	ChunkBIN = 0x004E4942

	headerSize    = 12
	chunkHeadSize = 8
)

// Extension is the canonical file extension for GLB assets.
const Extension = ".glb"

// Header is the fixed 12-byte GLB container header.
type Header struct {
	Magic   uint32
	Version uint32
	Length  uint32
}

// Chunk describes one length-prefixed chunk in a GLB container.
type Chunk struct {
	Type   uint32
	Length uint32
	Offset int64
}

// Info summarizes the container structure of a validated GLB file.
type Info struct {
	Header    Header
	Chunks    []Chunk
	SizeBytes int64
}

// ErrMalformed tags structural validation failures.
var ErrMalformed = errors.New("malformed glb")

// ReadHeader decodes the fixed container header.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return Header{}, fmt.Errorf("%w: short header: %v", ErrMalformed, err)
	}
	return h, nil
}

// Inspect reads and validates the container structure of the GLB file at path.
func Inspect(path string) (Info, error) {
	file, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open glb: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return Info{}, fmt.Errorf("stat glb: %w", err)
	}
	size := stat.Size()
	if size == 0 {
		return Info{}, fmt.Errorf("%w: empty file", ErrMalformed)
	}
	if size < headerSize+chunkHeadSize {
		return Info{}, fmt.Errorf("%w: truncated container (%d bytes)", ErrMalformed, size)
	}

	header, err := ReadHeader(file)
	if err != nil {
		return Info{}, err
	}
	if header.Magic != MagicGLB {
		return Info{}, fmt.Errorf("%w: bad magic 0x%08X", ErrMalformed, header.Magic)
	}
	if header.Version != SupportedVersion {
		return Info{}, fmt.Errorf("%w: unsupported version %d", ErrMalformed, header.Version)
	}
	if int64(header.Length) > size {
		return Info{}, fmt.Errorf("%w: declared length %d exceeds file size %d", ErrMalformed, header.Length, size)
	}
	if header.Length < headerSize+chunkHeadSize {
		return Info{}, fmt.Errorf("%w: declared length %d too small", ErrMalformed, header.Length)
	}

	info := Info{Header: header, SizeBytes: size}
	offset := int64(headerSize)
	end := int64(header.Length)

	for offset < end {
		if end-offset < chunkHeadSize {
			return Info{}, fmt.Errorf("%w: trailing bytes too short for a chunk header", ErrMalformed)
		}
		var head [chunkHeadSize]byte
		if _, err := io.ReadFull(file, head[:]); err != nil {
			return Info{}, fmt.Errorf("%w: short chunk header: %v", ErrMalformed, err)
		}
		chunk := Chunk{
			Length: binary.LittleEndian.Uint32(head[0:4]),
			Type:   binary.LittleEndian.Uint32(head[4:8]),
			Offset: offset,
		}
		payloadEnd := offset + chunkHeadSize + int64(chunk.Length)
		if payloadEnd > end {
			return Info{}, fmt.Errorf("%w: chunk at offset %d overruns container", ErrMalformed, offset)
		}
		// Chunk payloads are 4-byte aligned per the container layout.
		if chunk.Length%4 != 0 {
			return Info{}, fmt.Errorf("%w: chunk at offset %d has unaligned length %d", ErrMalformed, offset, chunk.Length)
		}
		info.Chunks = append(info.Chunks, chunk)
		offset = payloadEnd
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			return Info{}, fmt.Errorf("seek glb: %w", err)
		}
	}

	if len(info.Chunks) == 0 {
		return Info{}, fmt.Errorf("%w: no chunks", ErrMalformed)
	}
	first := info.Chunks[0]
	if first.Type != ChunkJSON {
		return Info{}, fmt.Errorf("%w: first chunk is not JSON", ErrMalformed)
	}
	if first.Length == 0 {
		return Info{}, fmt.Errorf("%w: empty JSON chunk", ErrMalformed)
	}
	return info, nil
}

// ValidateFile reports whether path holds a structurally valid GLB container.
func ValidateFile(path string) error {
	_, err := Inspect(path)
	return err
}

// WriteMinimal writes a minimal valid GLB container holding jsonPayload to w.
// The payload is space-padded to 4-byte alignment. Intended for tests and
// fixtures.
func WriteMinimal(w io.Writer, jsonPayload []byte) error {
	padded := append([]byte(nil), jsonPayload...)
	for len(padded)%4 != 0 {
		padded = append(padded, ' ')
	}
	total := uint32(headerSize + chunkHeadSize + len(padded))

	header := Header{Magic: MagicGLB, Version: SupportedVersion, Length: total}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(padded))); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(ChunkJSON)); err != nil {
		return err
	}
	_, err := w.Write(padded)
	return err
}
