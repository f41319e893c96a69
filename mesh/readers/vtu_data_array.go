package readers

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// vtkDataArray is a <DataArray> element of a VTK XML file
type vtkDataArray struct {
	Type               string `xml:"type,attr"`
	Name               string `xml:"Name,attr"`
	NumberOfComponents int    `xml:"NumberOfComponents,attr"`
	Format             string `xml:"format,attr"`
	Offset             int    `xml:"offset,attr"`
	Data               string `xml:",chardata"`
}

// dataValues holds a decoded array, integer or floating point depending on
// the VTK component type
type dataValues struct {
	ints    []int64
	floats  []float64
	isFloat bool
}

func (d *dataValues) Len() int {
	if d.isFloat {
		return len(d.floats)
	}
	return len(d.ints)
}

func (d *dataValues) Float(i int) float64 {
	if d.isFloat {
		return d.floats[i]
	}
	return float64(d.ints[i])
}

// Int returns element i as an integer; floating point values must be integral
func (d *dataValues) Int(i int) (int64, error) {
	if !d.isFloat {
		return d.ints[i], nil
	}
	f := d.floats[i]
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("value %v at index %d is not an integer", f, i)
	}
	return int64(f), nil
}

// typeSize returns the size in bytes of a VTK component type
func typeSize(vtkType string) (int, error) {
	switch vtkType {
	case "Int8", "UInt8":
		return 1, nil
	case "Int16", "UInt16":
		return 2, nil
	case "Int32", "UInt32", "Float32":
		return 4, nil
	case "Int64", "UInt64", "Float64":
		return 8, nil
	default:
		return 0, fmt.Errorf("unsupported data array type %q", vtkType)
	}
}

func isFloatType(vtkType string) bool {
	return vtkType == "Float32" || vtkType == "Float64"
}

// arrayDecoder decodes DataArray payloads using the file level encoding
// attributes
type arrayDecoder struct {
	order      binary.ByteOrder
	headerSize int    // 4 for UInt32 headers, 8 for UInt64
	compressed bool   // vtkZLibDataCompressor
	appended   string // Appended data with whitespace and leading '_' removed
	appendRaw  bool   // Appended data is raw bytes rather than base64
}

func newArrayDecoder(byteOrder, headerType, compressor string) (*arrayDecoder, error) {
	d := &arrayDecoder{order: binary.LittleEndian, headerSize: 4}
	switch byteOrder {
	case "", "LittleEndian":
	case "BigEndian":
		d.order = binary.BigEndian
	default:
		return nil, fmt.Errorf("unsupported byte_order %q", byteOrder)
	}
	switch headerType {
	case "", "UInt32":
	case "UInt64":
		d.headerSize = 8
	default:
		return nil, fmt.Errorf("unsupported header_type %q", headerType)
	}
	switch compressor {
	case "":
	case "vtkZLibDataCompressor":
		d.compressed = true
	default:
		return nil, fmt.Errorf("unsupported compressor %q", compressor)
	}
	return d, nil
}

// Decode returns the values of the array
func (d *arrayDecoder) Decode(da *vtkDataArray) (*dataValues, error) {
	var (
		payload []byte
		err     error
	)
	switch da.Format {
	case "ascii":
		return parseASCII(da.Data, da.Type)
	case "binary":
		payload, _, err = d.decodeBase64Block(strings.Join(strings.Fields(da.Data), ""))
	case "appended":
		if da.Offset < 0 || da.Offset > len(d.appended) {
			return nil, fmt.Errorf("array %q: appended offset %d out of range", da.Name, da.Offset)
		}
		if d.appendRaw {
			payload, err = d.decodeRawBlock([]byte(d.appended[da.Offset:]))
		} else {
			payload, _, err = d.decodeBase64Block(d.appended[da.Offset:])
		}
	default:
		return nil, fmt.Errorf("array %q: unsupported format %q", da.Name, da.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("array %q: %w", da.Name, err)
	}
	return d.parseBinary(payload, da.Type)
}

func base64Len(n int) int {
	return (n + 2) / 3 * 4
}

func (d *arrayDecoder) headerInts(b []byte, n int) []int {
	out := make([]int, n)
	for i := range out {
		if d.headerSize == 8 {
			out[i] = int(d.order.Uint64(b[i*8:]))
		} else {
			out[i] = int(d.order.Uint32(b[i*4:]))
		}
	}
	return out
}

func decodeBase64(s string, nchars int) ([]byte, error) {
	if nchars < 0 || nchars > len(s) {
		return nil, fmt.Errorf("truncated base64 data: need %d characters, have %d", nchars, len(s))
	}
	return base64.StdEncoding.DecodeString(s[:nchars])
}

// decodeBase64Block decodes one header+data block from the start of s and
// returns the uncompressed payload and the number of characters consumed.
// The header may be encoded together with the data or as its own padded
// base64 run; both layouts are written by VTK.
func (d *arrayDecoder) decodeBase64Block(s string) ([]byte, int, error) {
	hs := d.headerSize
	if d.compressed {
		prefix, err := decodeBase64(s, base64Len(hs))
		if err != nil {
			return nil, 0, err
		}
		nblocks := d.headerInts(prefix, 1)[0]
		if nblocks < 0 || nblocks > len(s) {
			return nil, 0, fmt.Errorf("invalid compression block count %d", nblocks)
		}
		headerChars := base64Len((3 + nblocks) * hs)
		hb, err := decodeBase64(s, headerChars)
		if err != nil {
			return nil, 0, err
		}
		header := d.headerInts(hb, 3+nblocks)
		total, err := compressedSize(header)
		if err != nil {
			return nil, 0, err
		}
		if total > len(s)-headerChars {
			return nil, 0, fmt.Errorf("truncated base64 data: %d compressed bytes declared", total)
		}
		dataChars := base64Len(total)
		blocks, err := decodeBase64(s[headerChars:], dataChars)
		if err != nil {
			return nil, 0, err
		}
		payload, err := inflateBlocks(header, blocks)
		return payload, headerChars + dataChars, err
	}

	headerChars := base64Len(hs)
	hb, err := decodeBase64(s, headerChars)
	if err != nil {
		return nil, 0, err
	}
	if len(hb) < hs {
		return nil, 0, fmt.Errorf("truncated binary header")
	}
	nbytes := d.headerInts(hb, 1)[0]
	if nbytes < 0 || nbytes > len(s) {
		return nil, 0, fmt.Errorf("invalid array size %d", nbytes)
	}
	if len(hb) >= hs+nbytes {
		// Short array, header and data fit in the first run
		return hb[hs : hs+nbytes], headerChars, nil
	}
	if strings.HasSuffix(s[:headerChars], "=") {
		dataChars := base64Len(nbytes)
		data, err := decodeBase64(s[headerChars:], dataChars)
		if err != nil {
			return nil, 0, err
		}
		if len(data) < nbytes {
			return nil, 0, fmt.Errorf("expected %d bytes, decoded %d", nbytes, len(data))
		}
		return data[:nbytes], headerChars + dataChars, nil
	}
	// Header and data share one base64 run
	nchars := base64Len(hs + nbytes)
	all, err := decodeBase64(s, nchars)
	if err != nil {
		return nil, 0, err
	}
	if len(all) < hs+nbytes {
		return nil, 0, fmt.Errorf("expected %d bytes, decoded %d", nbytes, len(all)-hs)
	}
	return all[hs : hs+nbytes], nchars, nil
}

// decodeRawBlock decodes one header+data block of raw appended data
func (d *arrayDecoder) decodeRawBlock(b []byte) ([]byte, error) {
	hs := d.headerSize
	if len(b) < hs {
		return nil, fmt.Errorf("truncated raw header")
	}
	if d.compressed {
		nblocks := d.headerInts(b, 1)[0]
		if nblocks < 0 || nblocks > len(b) {
			return nil, fmt.Errorf("invalid compression block count %d", nblocks)
		}
		headerBytes := (3 + nblocks) * hs
		if len(b) < headerBytes {
			return nil, fmt.Errorf("truncated raw compression header")
		}
		header := d.headerInts(b, 3+nblocks)
		total, err := compressedSize(header)
		if err != nil {
			return nil, err
		}
		if total > len(b)-headerBytes {
			return nil, fmt.Errorf("truncated raw compressed data")
		}
		return inflateBlocks(header, b[headerBytes:headerBytes+total])
	}
	nbytes := d.headerInts(b, 1)[0]
	if nbytes < 0 || nbytes > len(b)-hs {
		return nil, fmt.Errorf("expected %d raw bytes, have %d", nbytes, len(b)-hs)
	}
	return b[hs : hs+nbytes], nil
}

// compressedSize checks a compression header
// [nblocks, blockSize, lastBlockSize, compressedSize...] and returns the sum
// of the compressed block sizes
func compressedSize(header []int) (int, error) {
	blockSize, lastSize := header[1], header[2]
	if blockSize < 0 || lastSize < 0 || lastSize > blockSize {
		return 0, fmt.Errorf("invalid compression header: block size %d, last block size %d",
			blockSize, lastSize)
	}
	total := 0
	for i, sz := range header[3:] {
		if sz < 0 || sz > math.MaxInt-total {
			return 0, fmt.Errorf("invalid compression header: block %d size %d", i, sz)
		}
		total += sz
	}
	return total, nil
}

// inflateBlocks decompresses zlib blocks described by a compression header
// already checked by compressedSize
func inflateBlocks(header []int, blocks []byte) ([]byte, error) {
	nblocks, blockSize, lastSize := header[0], header[1], header[2]
	if lastSize == 0 {
		lastSize = blockSize
	}
	var out []byte
	pos := 0
	for i := 0; i < nblocks; i++ {
		csize := header[3+i]
		if csize < 0 || pos+csize > len(blocks) {
			return nil, fmt.Errorf("block %d: compressed size %d out of range", i, csize)
		}
		r, err := zlib.NewReader(bytes.NewReader(blocks[pos : pos+csize]))
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		want := blockSize
		if i == nblocks-1 {
			want = lastSize
		}
		// One byte past the declared size is enough to detect a mismatch
		data, err := io.ReadAll(io.LimitReader(r, int64(want)+1))
		r.Close()
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		if len(data) != want {
			return nil, fmt.Errorf("block %d: inflated %d bytes, expected %d", i, len(data), want)
		}
		out = append(out, data...)
		pos += csize
	}
	return out, nil
}

func (d *arrayDecoder) parseBinary(b []byte, vtkType string) (*dataValues, error) {
	size, err := typeSize(vtkType)
	if err != nil {
		return nil, err
	}
	if len(b)%size != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of %s values", len(b), vtkType)
	}
	n := len(b) / size
	vals := &dataValues{isFloat: isFloatType(vtkType)}
	if vals.isFloat {
		vals.floats = make([]float64, n)
	} else {
		vals.ints = make([]int64, n)
	}
	for i := 0; i < n; i++ {
		p := b[i*size:]
		switch vtkType {
		case "Int8":
			vals.ints[i] = int64(int8(p[0]))
		case "UInt8":
			vals.ints[i] = int64(p[0])
		case "Int16":
			vals.ints[i] = int64(int16(d.order.Uint16(p)))
		case "UInt16":
			vals.ints[i] = int64(d.order.Uint16(p))
		case "Int32":
			vals.ints[i] = int64(int32(d.order.Uint32(p)))
		case "UInt32":
			vals.ints[i] = int64(d.order.Uint32(p))
		case "Int64":
			vals.ints[i] = int64(d.order.Uint64(p))
		case "UInt64":
			vals.ints[i] = int64(d.order.Uint64(p))
		case "Float32":
			vals.floats[i] = float64(math.Float32frombits(d.order.Uint32(p)))
		case "Float64":
			vals.floats[i] = math.Float64frombits(d.order.Uint64(p))
		}
	}
	return vals, nil
}

func parseASCII(text, vtkType string) (*dataValues, error) {
	size, err := typeSize(vtkType)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(text)
	vals := &dataValues{isFloat: isFloatType(vtkType)}
	if vals.isFloat {
		vals.floats = make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, size*8)
			if err != nil {
				return nil, fmt.Errorf("invalid %s value %q", vtkType, f)
			}
			vals.floats[i] = v
		}
		return vals, nil
	}
	vals.ints = make([]int64, len(fields))
	for i, f := range fields {
		if strings.HasPrefix(vtkType, "UInt") {
			v, err := strconv.ParseUint(f, 10, size*8)
			if err != nil {
				return nil, fmt.Errorf("invalid %s value %q", vtkType, f)
			}
			vals.ints[i] = int64(v)
			continue
		}
		v, err := strconv.ParseInt(f, 10, size*8)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q", vtkType, f)
		}
		vals.ints[i] = v
	}
	return vals, nil
}
