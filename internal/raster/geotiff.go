package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/tiff"
	"golang.org/x/image/tiff/lzw"
)

// ErrUnsupported is returned for TIFF layouts the decoder cannot read.
var ErrUnsupported = errors.New("unsupported tiff")

const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagPredictor       = 317
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagSampleFormat    = 339
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
	tagGDALNoData      = 42113
)

const (
	keyRasterType      = 1025
	rasterPixelIsPoint = 2
)

const (
	compressionNone       = 1
	compressionLZW        = 5
	compressionDeflate    = 8
	compressionDeflateOld = 32946
)

const (
	formatUint  = 1
	formatInt   = 2
	formatFloat = 3
)

// field type sizes in bytes, indexed by TIFF field type
var typeSize = map[uint16]int{
	1: 1, 2: 1, 3: 2, 4: 4, 5: 8, 6: 1, 7: 1, 8: 2, 9: 4, 10: 8, 11: 4, 12: 8, 16: 8,
}

type field struct {
	typ   uint16
	count int
	raw   []byte
}

type ifd struct {
	order  binary.ByteOrder
	fields map[uint16]field
}

// Decode reads the first image of a GeoTIFF into a Grid.
// Bounds come from ModelPixelScale and ModelTiepoint, no-data from GDAL_NODATA.
func Decode(r io.Reader) (*Grid, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read tiff: %w", err)
	}

	dir, err := readIFD(data)
	if err != nil {
		return nil, err
	}

	g := &Grid{
		Width:  int(dir.uintOr(tagImageWidth, 0)),
		Height: int(dir.uintOr(tagImageLength, 0)),
	}
	if g.Width <= 0 || g.Height <= 0 {
		return nil, fmt.Errorf("%w: missing image size", ErrUnsupported)
	}

	if g.Bounds, err = dir.bounds(g.Width, g.Height); err != nil {
		return nil, err
	}
	g.NoData = dir.noData()

	if g.Bands, err = dir.bands(data, g.Width, g.Height); err != nil {
		return nil, err
	}

	return g, g.Validate()
}

func readIFD(data []byte) (*ifd, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: short header", ErrUnsupported)
	}

	var order binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad byte order mark", ErrUnsupported)
	}

	if magic := order.Uint16(data[2:4]); magic != 42 {
		return nil, fmt.Errorf("%w: magic %d (BigTIFF is not supported)", ErrUnsupported, magic)
	}

	off := int(order.Uint32(data[4:8]))
	if off < 8 || off+2 > len(data) {
		return nil, fmt.Errorf("%w: ifd offset %d out of range", ErrUnsupported, off)
	}

	n := int(order.Uint16(data[off : off+2]))
	if off+2+n*12 > len(data) {
		return nil, fmt.Errorf("%w: truncated ifd", ErrUnsupported)
	}

	dir := &ifd{order: order, fields: make(map[uint16]field, n)}
	for i := 0; i < n; i++ {
		e := data[off+2+i*12 : off+2+(i+1)*12]
		tag := order.Uint16(e[0:2])
		typ := order.Uint16(e[2:4])
		count := int(order.Uint32(e[4:8]))

		size, ok := typeSize[typ]
		if !ok {
			continue
		}

		total := size * count
		var raw []byte
		if total <= 4 {
			raw = e[8 : 8+total]
		} else {
			start := int(order.Uint32(e[8:12]))
			if start < 0 || start+total > len(data) {
				return nil, fmt.Errorf("%w: tag %d data out of range", ErrUnsupported, tag)
			}
			raw = data[start : start+total]
		}

		dir.fields[tag] = field{typ: typ, count: count, raw: raw}
	}

	return dir, nil
}

func (d *ifd) uints(tag uint16) []uint64 {
	f, ok := d.fields[tag]
	if !ok {
		return nil
	}

	out := make([]uint64, f.count)
	for i := range out {
		switch f.typ {
		case 1, 6, 7:
			out[i] = uint64(f.raw[i])
		case 3, 8:
			out[i] = uint64(d.order.Uint16(f.raw[i*2:]))
		case 4, 9:
			out[i] = uint64(d.order.Uint32(f.raw[i*4:]))
		case 16:
			out[i] = d.order.Uint64(f.raw[i*8:])
		default:
			return nil
		}
	}

	return out
}

func (d *ifd) uintOr(tag uint16, def uint64) uint64 {
	if v := d.uints(tag); len(v) > 0 {
		return v[0]
	}
	return def
}

func (d *ifd) doubles(tag uint16) []float64 {
	f, ok := d.fields[tag]
	if !ok {
		return nil
	}

	switch f.typ {
	case 12:
		out := make([]float64, f.count)
		for i := range out {
			out[i] = math.Float64frombits(d.order.Uint64(f.raw[i*8:]))
		}
		return out
	case 11:
		out := make([]float64, f.count)
		for i := range out {
			out[i] = float64(math.Float32frombits(d.order.Uint32(f.raw[i*4:])))
		}
		return out
	}

	return nil
}

func (d *ifd) bounds(width, height int) (Bounds, error) {
	scale := d.doubles(tagModelPixelScale)
	tie := d.doubles(tagModelTiepoint)
	if len(scale) < 2 || len(tie) < 6 {
		return Bounds{}, fmt.Errorf("%w: missing ModelPixelScale or ModelTiepoint", ErrUnsupported)
	}

	west := tie[3] - tie[0]*scale[0]
	north := tie[4] + tie[1]*scale[1]

	// point-registered tiepoints address the pixel center
	if d.geoKey(keyRasterType) == rasterPixelIsPoint {
		west -= scale[0] / 2
		north += scale[1] / 2
	}

	return Bounds{
		West:  west,
		North: north,
		East:  west + float64(width)*scale[0],
		South: north - float64(height)*scale[1],
	}, nil
}

// geoKey returns an inline SHORT value of the GeoKeyDirectory, 0 when absent.
func (d *ifd) geoKey(id uint64) uint64 {
	dir := d.uints(tagGeoKeyDirectory)
	if len(dir) < 4 {
		return 0
	}

	for i := 4; i+3 < len(dir); i += 4 {
		// location 0 means the value is stored in place
		if dir[i] == id && dir[i+1] == 0 {
			return dir[i+3]
		}
	}

	return 0
}

func (d *ifd) noData() *float64 {
	f, ok := d.fields[tagGDALNoData]
	if !ok || f.typ != 2 {
		return nil
	}

	s := strings.TrimSpace(strings.TrimRight(string(f.raw), "\x00"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}

	return &v
}

// layout describes how the image is cut into strips or tiles.
type layout struct {
	blockW, blockH int
	across, down   int
	offsets        []uint64
	counts         []uint64
}

func (d *ifd) layout(width, height int) (layout, error) {
	if tw := int(d.uintOr(tagTileWidth, 0)); tw > 0 {
		th := int(d.uintOr(tagTileLength, 0))
		if th <= 0 {
			return layout{}, fmt.Errorf("%w: tile length missing", ErrUnsupported)
		}
		return layout{
			blockW:  tw,
			blockH:  th,
			across:  (width + tw - 1) / tw,
			down:    (height + th - 1) / th,
			offsets: d.uints(tagTileOffsets),
			counts:  d.uints(tagTileByteCounts),
		}, nil
	}

	rows := int(d.uintOr(tagRowsPerStrip, uint64(height)))
	if rows <= 0 || rows > height {
		rows = height
	}

	return layout{
		blockW:  width,
		blockH:  rows,
		across:  1,
		down:    (height + rows - 1) / rows,
		offsets: d.uints(tagStripOffsets),
		counts:  d.uints(tagStripByteCounts),
	}, nil
}

func (d *ifd) bands(data []byte, width, height int) ([][]float64, error) {
	bits := int(d.uintOr(tagBitsPerSample, 1))
	format := int(d.uintOr(tagSampleFormat, formatUint))
	spp := int(d.uintOr(tagSamplesPerPixel, 1))
	compression := int(d.uintOr(tagCompression, compressionNone))
	predictor := int(d.uintOr(tagPredictor, 1))
	planar := int(d.uintOr(tagPlanarConfig, 1))

	switch compression {
	case compressionNone, compressionLZW, compressionDeflate, compressionDeflateOld:
	default:
		if spp == 1 && format == formatUint && (bits == 8 || bits == 16) {
			return decodeImage(data)
		}
		return nil, fmt.Errorf("%w: compression %d for %d-bit samples", ErrUnsupported, compression, bits)
	}

	if !validSample(format, bits) {
		return nil, fmt.Errorf("%w: sample format %d with %d bits", ErrUnsupported, format, bits)
	}
	if predictor != 1 && (predictor != 2 || format == formatFloat) {
		return nil, fmt.Errorf("%w: predictor %d", ErrUnsupported, predictor)
	}
	if spp < 1 {
		spp = 1
	}

	lay, err := d.layout(width, height)
	if err != nil {
		return nil, err
	}

	planes, perPixel := 1, spp
	if planar == 2 {
		planes, perPixel = spp, 1
	}

	blocks := lay.across * lay.down
	if len(lay.offsets) < blocks*planes || len(lay.counts) < blocks*planes {
		return nil, fmt.Errorf("%w: %d blocks listed, need %d", ErrUnsupported, len(lay.offsets), blocks*planes)
	}

	bytesPer := bits / 8
	out := make([][]float64, spp)
	for b := range out {
		out[b] = make([]float64, width*height)
	}

	for plane := 0; plane < planes; plane++ {
		for i := 0; i < blocks; i++ {
			k := plane*blocks + i
			start, size := lay.offsets[k], lay.counts[k]
			if start+size > uint64(len(data)) {
				return nil, fmt.Errorf("%w: block %d out of range", ErrUnsupported, k)
			}

			buf, err := inflate(data[start:start+size], compression)
			if err != nil {
				return nil, fmt.Errorf("block %d: %w", k, err)
			}

			rowLen := lay.blockW * perPixel * bytesPer
			rows := min(lay.blockH, len(buf)/max(rowLen, 1))
			if predictor == 2 {
				undoDifferencing(buf, d.order, bytesPer, perPixel, rowLen, rows)
			}

			x0 := (i % lay.across) * lay.blockW
			y0 := (i / lay.across) * lay.blockH
			for y := 0; y < rows && y0+y < height; y++ {
				for x := 0; x < lay.blockW && x0+x < width; x++ {
					for s := 0; s < perPixel; s++ {
						pos := (y*lay.blockW+x)*perPixel + s
						out[plane+s][(y0+y)*width+x0+x] = sampleAt(buf, d.order, pos, format, bits)
					}
				}
			}
		}
	}

	return out, nil
}

func validSample(format, bits int) bool {
	switch format {
	case formatUint, formatInt:
		return bits == 8 || bits == 16 || bits == 32
	case formatFloat:
		return bits == 32 || bits == 64
	}
	return false
}

func inflate(b []byte, compression int) ([]byte, error) {
	switch compression {
	case compressionNone:
		return b, nil
	case compressionLZW:
		r := lzw.NewReader(bytes.NewReader(b), lzw.MSB, 8)
		defer func() { _ = r.Close() }()
		return io.ReadAll(r)
	default:
		r, err := zlib.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		defer func() { _ = r.Close() }()
		return io.ReadAll(r)
	}
}

// undoDifferencing reverses TIFF horizontal predictor 2 in place.
func undoDifferencing(buf []byte, order binary.ByteOrder, bytesPer, perPixel, rowLen, rows int) {
	for y := 0; y < rows; y++ {
		row := buf[y*rowLen : (y+1)*rowLen]
		n := rowLen / bytesPer
		for i := perPixel; i < n; i++ {
			j := i - perPixel
			switch bytesPer {
			case 1:
				row[i] += row[j]
			case 2:
				order.PutUint16(row[i*2:], order.Uint16(row[i*2:])+order.Uint16(row[j*2:]))
			case 4:
				order.PutUint32(row[i*4:], order.Uint32(row[i*4:])+order.Uint32(row[j*4:]))
			}
		}
	}
}

func sampleAt(buf []byte, order binary.ByteOrder, i, format, bits int) float64 {
	switch bits {
	case 8:
		if i >= len(buf) {
			return math.NaN()
		}
		if format == formatInt {
			return float64(int8(buf[i]))
		}
		return float64(buf[i])
	case 16:
		if (i+1)*2 > len(buf) {
			return math.NaN()
		}
		v := order.Uint16(buf[i*2:])
		if format == formatInt {
			return float64(int16(v))
		}
		return float64(v)
	case 32:
		if (i+1)*4 > len(buf) {
			return math.NaN()
		}
		v := order.Uint32(buf[i*4:])
		switch format {
		case formatFloat:
			return float64(math.Float32frombits(v))
		case formatInt:
			return float64(int32(v))
		}
		return float64(v)
	case 64:
		if (i+1)*8 > len(buf) {
			return math.NaN()
		}
		return math.Float64frombits(order.Uint64(buf[i*8:]))
	}

	return math.NaN()
}

// decodeImage reads single-band integer images through x/image/tiff,
// which covers compressions such as PackBits.
func decodeImage(data []byte) ([][]float64, error) {
	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode tiff image: %w", err)
	}

	rect := img.Bounds()
	band := make([]float64, 0, rect.Dx()*rect.Dy())

	switch m := img.(type) {
	case *image.Gray:
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			for x := rect.Min.X; x < rect.Max.X; x++ {
				band = append(band, float64(m.GrayAt(x, y).Y))
			}
		}
	default:
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			for x := rect.Min.X; x < rect.Max.X; x++ {
				band = append(band, float64(color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y))
			}
		}
	}

	return [][]float64{band}, nil
}
