package readers

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"

	"github.com/notargets/vtu2gmsh/mesh"
)

// VTUEncoding selects how VTUTestBuilder writes DataArray payloads
type VTUEncoding int

const (
	VTUASCII VTUEncoding = iota
	VTUBinary
	VTUAppendedBase64
	VTUAppendedRaw
)

// VTUTestBuilder helps build VTK XML unstructured grid test files
type VTUTestBuilder struct {
	Encoding    VTUEncoding
	Compressed  bool   // zlib compress binary payloads
	JointHeader bool   // encode the size header and data as one base64 run
	HeaderType  string // UInt32 or UInt64
	PointType   string // Float32 or Float64
	TagType     string // Int32, Int64 or Float64
	TagName     string
	BlockSize   int // uncompressed bytes per zlib block
	ByteOrder   binary.ByteOrder

	appended bytes.Buffer
}

// NewVTUTestBuilder creates a builder writing ObjectId tags with the given
// encoding
func NewVTUTestBuilder(enc VTUEncoding) *VTUTestBuilder {
	return &VTUTestBuilder{
		Encoding:   enc,
		HeaderType: "UInt32",
		PointType:  "Float64",
		TagType:    "Int32",
		TagName:    DefaultTagName,
		BlockSize:  32768,
		ByteOrder:  binary.LittleEndian,
	}
}

// vtkCellCode maps ElementType back to VTK cell type codes
var vtkCellCode = map[mesh.ElementType]int64{
	mesh.Point:    1,
	mesh.Line:     3,
	mesh.Triangle: 5,
	mesh.Quad:     9,
	mesh.Tet:      10,
	mesh.Hex:      12,
	mesh.Prism:    13,
	mesh.Pyramid:  14,
}

type testArray struct {
	name   string
	vtype  string
	ncomp  int
	ints   []int64
	floats []float64
}

// BuildFromCompleteMesh creates a single piece VTU file
func (b *VTUTestBuilder) BuildFromCompleteMesh(cm *mesh.CompleteMesh) []byte {
	return b.BuildPieces(cm)
}

// BuildPieces creates a VTU file with one Piece per mesh
func (b *VTUTestBuilder) BuildPieces(pieces ...*mesh.CompleteMesh) []byte {
	b.appended.Reset()
	var body strings.Builder

	for _, cm := range pieces {
		types, etov, tags := cm.Flatten()
		fmt.Fprintf(&body, "    <Piece NumberOfPoints=\"%d\" NumberOfCells=\"%d\">\n",
			len(cm.Nodes.Nodes), len(etov))

		pts := testArray{name: "Points", vtype: b.PointType, ncomp: 3}
		for _, xyz := range cm.Nodes.Nodes {
			pts.floats = append(pts.floats, xyz...)
		}
		body.WriteString("      <Points>\n")
		body.WriteString(b.dataArray(&pts))
		body.WriteString("      </Points>\n")

		conn := testArray{name: "connectivity", vtype: "Int64", ncomp: 1}
		offs := testArray{name: "offsets", vtype: "Int64", ncomp: 1}
		codes := testArray{name: "types", vtype: "UInt8", ncomp: 1}
		for k, verts := range etov {
			for _, v := range verts {
				conn.ints = append(conn.ints, int64(v))
			}
			offs.ints = append(offs.ints, int64(len(conn.ints)))
			codes.ints = append(codes.ints, vtkCellCode[types[k]])
		}
		body.WriteString("      <Cells>\n")
		body.WriteString(b.dataArray(&conn))
		body.WriteString(b.dataArray(&offs))
		body.WriteString(b.dataArray(&codes))
		body.WriteString("      </Cells>\n")

		tagArr := testArray{name: b.TagName, vtype: b.TagType, ncomp: 1}
		for _, tag := range tags {
			if isFloatType(b.TagType) {
				tagArr.floats = append(tagArr.floats, float64(tag))
			} else {
				tagArr.ints = append(tagArr.ints, int64(tag))
			}
		}
		fmt.Fprintf(&body, "      <CellData Scalars=\"%s\">\n", b.TagName)
		body.WriteString(b.dataArray(&tagArr))
		body.WriteString("      </CellData>\n")
		body.WriteString("    </Piece>\n")
	}

	var out bytes.Buffer
	out.WriteString("<?xml version=\"1.0\"?>\n")
	order := "LittleEndian"
	if b.ByteOrder == binary.BigEndian {
		order = "BigEndian"
	}
	fmt.Fprintf(&out, "<VTKFile type=\"UnstructuredGrid\" version=\"1.0\" byte_order=\"%s\" header_type=\"%s\"",
		order, b.HeaderType)
	if b.Compressed {
		out.WriteString(" compressor=\"vtkZLibDataCompressor\"")
	}
	out.WriteString(">\n  <UnstructuredGrid>\n")
	out.WriteString(body.String())
	out.WriteString("  </UnstructuredGrid>\n")
	switch b.Encoding {
	case VTUAppendedBase64:
		out.WriteString("  <AppendedData encoding=\"base64\">\n   _")
		out.Write(b.appended.Bytes())
		out.WriteString("\n  </AppendedData>\n")
	case VTUAppendedRaw:
		out.WriteString("  <AppendedData encoding=\"raw\">\n   _")
		out.Write(b.appended.Bytes())
		out.WriteString("\n  </AppendedData>\n")
	}
	out.WriteString("</VTKFile>\n")
	return out.Bytes()
}

func (b *VTUTestBuilder) dataArray(a *testArray) string {
	var attrs string
	if a.ncomp > 1 {
		attrs = fmt.Sprintf(" NumberOfComponents=\"%d\"", a.ncomp)
	}
	switch b.Encoding {
	case VTUASCII:
		return fmt.Sprintf("        <DataArray type=\"%s\" Name=\"%s\"%s format=\"ascii\">\n          %s\n        </DataArray>\n",
			a.vtype, a.name, attrs, a.asciiValues())
	case VTUBinary:
		return fmt.Sprintf("        <DataArray type=\"%s\" Name=\"%s\"%s format=\"binary\">\n          %s\n        </DataArray>\n",
			a.vtype, a.name, attrs, b.base64Block(b.rawValues(a)))
	default:
		offset := b.appended.Len()
		if b.Encoding == VTUAppendedRaw {
			b.appended.Write(b.rawBlock(b.rawValues(a)))
		} else {
			b.appended.WriteString(b.base64Block(b.rawValues(a)))
		}
		return fmt.Sprintf("        <DataArray type=\"%s\" Name=\"%s\"%s format=\"appended\" offset=\"%d\"/>\n",
			a.vtype, a.name, attrs, offset)
	}
}

func (a *testArray) asciiValues() string {
	var vals []string
	if isFloatType(a.vtype) {
		for _, f := range a.floats {
			vals = append(vals, strconv.FormatFloat(f, 'g', -1, 64))
		}
	} else {
		for _, i := range a.ints {
			vals = append(vals, strconv.FormatInt(i, 10))
		}
	}
	return strings.Join(vals, " ")
}

func (b *VTUTestBuilder) rawValues(a *testArray) []byte {
	size, err := typeSize(a.vtype)
	if err != nil {
		panic(err)
	}
	n := len(a.ints)
	if isFloatType(a.vtype) {
		n = len(a.floats)
	}
	buf := make([]byte, n*size)
	for i := 0; i < n; i++ {
		p := buf[i*size:]
		switch a.vtype {
		case "Int8", "UInt8":
			p[0] = byte(a.ints[i])
		case "Int16", "UInt16":
			b.ByteOrder.PutUint16(p, uint16(a.ints[i]))
		case "Int32", "UInt32":
			b.ByteOrder.PutUint32(p, uint32(a.ints[i]))
		case "Int64", "UInt64":
			b.ByteOrder.PutUint64(p, uint64(a.ints[i]))
		case "Float32":
			b.ByteOrder.PutUint32(p, math.Float32bits(float32(a.floats[i])))
		case "Float64":
			b.ByteOrder.PutUint64(p, math.Float64bits(a.floats[i]))
		}
	}
	return buf
}

func (b *VTUTestBuilder) header(vals ...int) []byte {
	hs := 4
	if b.HeaderType == "UInt64" {
		hs = 8
	}
	buf := make([]byte, len(vals)*hs)
	for i, v := range vals {
		if hs == 8 {
			b.ByteOrder.PutUint64(buf[i*8:], uint64(v))
		} else {
			b.ByteOrder.PutUint32(buf[i*4:], uint32(v))
		}
	}
	return buf
}

// compress splits data into zlib blocks and returns the compression header
// and the concatenated compressed blocks
func (b *VTUTestBuilder) compress(data []byte) (header, blocks []byte) {
	var (
		sizes  []int
		out    bytes.Buffer
		last   int
		nblock int
	)
	for start := 0; start < len(data); start += b.BlockSize {
		end := start + b.BlockSize
		if end > len(data) {
			end = len(data)
		}
		var cb bytes.Buffer
		w := zlib.NewWriter(&cb)
		w.Write(data[start:end])
		w.Close()
		sizes = append(sizes, cb.Len())
		out.Write(cb.Bytes())
		last = end - start
		nblock++
	}
	if last == b.BlockSize {
		last = 0
	}
	return b.header(append([]int{nblock, b.BlockSize, last}, sizes...)...), out.Bytes()
}

func (b *VTUTestBuilder) base64Block(data []byte) string {
	enc := base64.StdEncoding
	if b.Compressed {
		header, blocks := b.compress(data)
		return enc.EncodeToString(header) + enc.EncodeToString(blocks)
	}
	header := b.header(len(data))
	if b.JointHeader {
		return enc.EncodeToString(append(header, data...))
	}
	return enc.EncodeToString(header) + enc.EncodeToString(data)
}

func (b *VTUTestBuilder) rawBlock(data []byte) []byte {
	if b.Compressed {
		header, blocks := b.compress(data)
		return append(header, blocks...)
	}
	return append(b.header(len(data)), data...)
}
