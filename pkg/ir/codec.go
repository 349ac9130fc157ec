package ir

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxBursts is the largest burst count the one-byte header can carry.
const MaxBursts = 255

// MaxSymbols bounds the symbol count of a single burst. Encode rejects
// longer bursts and Decode treats larger counts as a corrupt tail.
const MaxSymbols = 1024

// Encode writes bursts in the stored command format:
//
//	u8  burstCount
//	per burst: u32 gap, u32 symbolCount, symbolCount x u32 symbol word
//
// All integers are little-endian.
func Encode(w io.Writer, bursts []RawBurst) error {
	if len(bursts) > MaxBursts {
		return fmt.Errorf("%w: %d", ErrTooManyBursts, len(bursts))
	}
	for i, b := range bursts {
		if len(b.Symbols) == 0 {
			return fmt.Errorf("%w: burst %d", ErrEmptyBurst, i)
		}
		if len(b.Symbols) > MaxSymbols {
			return fmt.Errorf("%w: burst %d has %d", ErrTooManySymbols, i, len(b.Symbols))
		}
	}

	bw := bufio.NewWriter(w)
	if err := bw.WriteByte(byte(len(bursts))); err != nil {
		return err
	}

	var hdr [8]byte
	var word [4]byte
	for _, b := range bursts {
		binary.LittleEndian.PutUint32(hdr[0:4], b.Gap)
		binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(b.Symbols)))
		if _, err := bw.Write(hdr[:]); err != nil {
			return err
		}
		for _, s := range b.Symbols {
			binary.LittleEndian.PutUint32(word[:], s.Word())
			if _, err := bw.Write(word[:]); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// Decode reads a stored command. Reading is lenient: a short read or an
// implausible symbol count ends decoding and the bursts parsed so far are
// returned. ErrNoCommand is returned when not a single burst could be read.
func Decode(r io.Reader) ([]RawBurst, error) {
	br := bufio.NewReader(r)

	count, err := br.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: missing header: %v", ErrNoCommand, err)
	}

	bursts := make([]RawBurst, 0, count)
	var hdr [8]byte
	for i := 0; i < int(count); i++ {
		if _, err := io.ReadFull(br, hdr[:]); err != nil {
			break
		}
		gap := binary.LittleEndian.Uint32(hdr[0:4])
		n := binary.LittleEndian.Uint32(hdr[4:8])
		if n == 0 || n > MaxSymbols {
			break
		}

		raw := make([]byte, int(n)*4)
		if _, err := io.ReadFull(br, raw); err != nil {
			break
		}
		syms := make([]Symbol, n)
		for j := range syms {
			syms[j] = SymbolFromWord(binary.LittleEndian.Uint32(raw[j*4:]))
		}
		bursts = append(bursts, RawBurst{Symbols: syms, Gap: gap})
	}

	if len(bursts) == 0 {
		return nil, ErrNoCommand
	}
	return bursts, nil
}
