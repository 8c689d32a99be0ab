// Package rastertest writes small GeoTIFF fixtures for tests.
package rastertest

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// Sample formats.
const (
	Uint  = 1
	Int   = 2
	Float = 3
)

// Compressions.
const (
	None     = 1
	Deflate  = 8
	PackBits = 32773
)

// Spec describes a single-strip, single-band image.
type Spec struct {
	Width, Height int
	Bits, Format  uint16
	Compression   uint16
	Predictor     uint16
	Values        []float64
	NoData        string
	NoGeo         bool
	PixelIsPoint  bool

	// Origin is the northwest corner (lon, lat), PixelSize the cell size in degrees.
	// Zero values default to (73, 24) and 0.1.
	Origin    [2]float64
	PixelSize float64
}

// Float32 is a plain float32 grid anchored at origin.
func Float32(width, height int, origin [2]float64, pixel float64, values []float64) Spec {
	return Spec{
		Width: width, Height: height, Bits: 32, Format: Float, Compression: None,
		Values: values, Origin: origin, PixelSize: pixel,
	}
}

type entry struct {
	tag, typ uint16
	count    uint32
	data     []byte
}

// Write encodes s as a little-endian GeoTIFF.
func Write(t testing.TB, s Spec) []byte {
	t.Helper()
	le := binary.LittleEndian

	if s.Origin == [2]float64{} {
		s.Origin = [2]float64{73, 24}
	}
	if s.PixelSize == 0 {
		s.PixelSize = 0.1
	}
	if s.Compression == 0 {
		s.Compression = None
	}

	bytesPer := int(s.Bits / 8)
	pix := make([]byte, len(s.Values)*bytesPer)
	for i, v := range s.Values {
		switch {
		case s.Format == Float && s.Bits == 32:
			le.PutUint32(pix[i*4:], math.Float32bits(float32(v)))
		case s.Bits == 16:
			le.PutUint16(pix[i*2:], uint16(int16(v)))
		case s.Bits == 8:
			pix[i] = uint8(v)
		}
	}

	if s.Predictor == 2 {
		require.Equal(t, 2, bytesPer)
		rowLen := s.Width * 2
		for y := 0; y < s.Height; y++ {
			row := pix[y*rowLen : (y+1)*rowLen]
			for i := s.Width - 1; i > 0; i-- {
				le.PutUint16(row[i*2:], le.Uint16(row[i*2:])-le.Uint16(row[(i-1)*2:]))
			}
		}
	}

	switch s.Compression {
	case Deflate:
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		_, err := zw.Write(pix)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		pix = buf.Bytes()
	case PackBits:
		var packed []byte
		for i := 0; i < len(pix); i += 128 {
			chunk := pix[i:min(i+128, len(pix))]
			packed = append(packed, byte(len(chunk)-1))
			packed = append(packed, chunk...)
		}
		pix = packed
	}

	short := func(v uint16) []byte { b := make([]byte, 2); le.PutUint16(b, v); return b }
	long := func(v uint32) []byte { b := make([]byte, 4); le.PutUint32(b, v); return b }
	doubles := func(vs ...float64) []byte {
		b := make([]byte, 8*len(vs))
		for i, v := range vs {
			le.PutUint64(b[i*8:], math.Float64bits(v))
		}
		return b
	}

	entries := []entry{
		{256, 4, 1, long(uint32(s.Width))},
		{257, 4, 1, long(uint32(s.Height))},
		{258, 3, 1, short(s.Bits)},
		{259, 3, 1, short(s.Compression)},
		{262, 3, 1, short(1)},
		{273, 4, 1, long(8)},
		{277, 3, 1, short(1)},
		{278, 4, 1, long(uint32(s.Height))},
		{279, 4, 1, long(uint32(len(pix)))},
		{339, 3, 1, short(s.Format)},
	}
	if s.Predictor != 0 {
		entries = append(entries, entry{317, 3, 1, short(s.Predictor)})
	}
	if !s.NoGeo {
		entries = append(entries,
			entry{33550, 12, 3, doubles(s.PixelSize, s.PixelSize, 0)},
			entry{33922, 12, 6, doubles(0, 0, 0, s.Origin[0], s.Origin[1], 0)},
		)
	}
	if s.PixelIsPoint {
		keys := []uint16{1, 1, 0, 1, 1025, 0, 1, 2}
		b := make([]byte, 0, 2*len(keys))
		for _, k := range keys {
			b = append(b, short(k)...)
		}
		entries = append(entries, entry{34735, 3, uint32(len(keys)), b})
	}
	if s.NoData != "" {
		entries = append(entries, entry{42113, 2, uint32(len(s.NoData) + 1), append([]byte(s.NoData), 0)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	out := []byte{'I', 'I'}
	out = append(out, short(42)...)

	ifdOff := 8 + len(pix)
	ifdOff += ifdOff % 2
	out = append(out, long(uint32(ifdOff))...)
	out = append(out, pix...)
	for len(out) < ifdOff {
		out = append(out, 0)
	}

	extraOff := ifdOff + 2 + len(entries)*12 + 4
	var extra []byte

	out = append(out, short(uint16(len(entries)))...)
	for _, e := range entries {
		out = append(out, short(e.tag)...)
		out = append(out, short(e.typ)...)
		out = append(out, long(e.count)...)
		if len(e.data) <= 4 {
			val := make([]byte, 4)
			copy(val, e.data)
			out = append(out, val...)
			continue
		}
		out = append(out, long(uint32(extraOff+len(extra)))...)
		extra = append(extra, e.data...)
		if len(extra)%2 == 1 {
			extra = append(extra, 0)
		}
	}
	out = append(out, long(0)...)
	out = append(out, extra...)

	return out
}
