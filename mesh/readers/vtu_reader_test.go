package readers

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/vtu2gmsh/mesh"
)

// checkAgainst compares a read mesh with the test definition it was built from
func checkAgainst(t *testing.T, cm *mesh.CompleteMesh, msh *mesh.Mesh) {
	t.Helper()
	types, etov, tags := cm.Flatten()
	require.Equal(t, len(cm.Nodes.Nodes), msh.NumVertices)
	require.Equal(t, len(etov), msh.NumElements)
	for i, xyz := range cm.Nodes.Nodes {
		assert.Equal(t, xyz, msh.Vertices[i], "vertex %d", i)
	}
	assert.Equal(t, types, msh.ElementTypes)
	assert.Equal(t, etov, msh.EtoV)
	assert.Equal(t, tags, msh.ElementTags)
}

func TestReadVTUEncodings(t *testing.T) {
	tm := mesh.GetStandardTestMeshes()

	tests := []struct {
		name      string
		configure func(b *VTUTestBuilder)
	}{
		{"ASCII", func(b *VTUTestBuilder) { b.Encoding = VTUASCII }},
		{"Binary", func(b *VTUTestBuilder) { b.Encoding = VTUBinary }},
		{"BinaryJointHeader", func(b *VTUTestBuilder) {
			b.Encoding = VTUBinary
			b.JointHeader = true
		}},
		{"BinaryCompressed", func(b *VTUTestBuilder) {
			b.Encoding = VTUBinary
			b.Compressed = true
		}},
		{"BinaryCompressedSmallBlocks", func(b *VTUTestBuilder) {
			b.Encoding = VTUBinary
			b.Compressed = true
			b.BlockSize = 16
		}},
		{"BinaryUInt64Header", func(b *VTUTestBuilder) {
			b.Encoding = VTUBinary
			b.HeaderType = "UInt64"
		}},
		{"BinaryBigEndian", func(b *VTUTestBuilder) {
			b.Encoding = VTUBinary
			b.ByteOrder = binary.BigEndian
		}},
		{"AppendedBase64", func(b *VTUTestBuilder) { b.Encoding = VTUAppendedBase64 }},
		{"AppendedBase64Compressed", func(b *VTUTestBuilder) {
			b.Encoding = VTUAppendedBase64
			b.Compressed = true
			b.BlockSize = 24
		}},
		{"AppendedRaw", func(b *VTUTestBuilder) { b.Encoding = VTUAppendedRaw }},
		{"AppendedRawCompressedUInt64", func(b *VTUTestBuilder) {
			b.Encoding = VTUAppendedRaw
			b.Compressed = true
			b.HeaderType = "UInt64"
			b.BlockSize = 40
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewVTUTestBuilder(VTUASCII)
			tt.configure(b)
			for _, cm := range []*mesh.CompleteMesh{&tm.WalledTetMesh, &tm.MixedMesh} {
				msh, err := ParseVTU(b.BuildFromCompleteMesh(cm), DefaultTagName)
				require.NoError(t, err)
				checkAgainst(t, cm, msh)
			}
		})
	}
}

func TestReadVTUFloat32Points(t *testing.T) {
	cm := mesh.CompleteMesh{
		Nodes: mesh.NodeSet{
			Nodes:   [][]float64{{0.1, 0.2, 0.3}, {1, 0, 0}, {0, 1, 0}},
			NodeMap: map[string]int{"a": 0, "b": 1, "c": 2},
		},
		Elements: []mesh.ElementSet{{
			Type:     mesh.Triangle,
			Elements: [][]string{{"a", "b", "c"}},
			Tags:     []int{4},
		}},
	}
	for _, enc := range []VTUEncoding{VTUASCII, VTUBinary} {
		b := NewVTUTestBuilder(enc)
		b.PointType = "Float32"
		msh, err := ParseVTU(b.BuildFromCompleteMesh(&cm), DefaultTagName)
		require.NoError(t, err)
		// Single precision points widen to the nearest double of the float32
		assert.Equal(t, float64(float32(0.1)), msh.Vertices[0][0])
		assert.Equal(t, 0.10000000149011612, msh.Vertices[0][0])
		assert.Equal(t, float64(float32(0.3)), msh.Vertices[0][2])
	}
}

func TestReadVTUMultiplePieces(t *testing.T) {
	tm := mesh.GetStandardTestMeshes()
	b := NewVTUTestBuilder(VTUAppendedBase64)
	msh, err := ParseVTU(b.BuildPieces(&tm.SingleTetMesh, &tm.TwoTetMesh), DefaultTagName)
	require.NoError(t, err)

	assert.Equal(t, 10, msh.NumVertices)
	require.Equal(t, 3, msh.NumElements)
	assert.Equal(t, []int{0, 1, 2, 3}, msh.EtoV[0])
	// Second piece indices are shifted past the first piece's points
	assert.Equal(t, []int{5, 6, 7, 8}, msh.EtoV[1])
	assert.Equal(t, []int{6, 7, 8, 9}, msh.EtoV[2])
	assert.Equal(t, []int{7, 1, 2}, msh.ElementTags)
}

func TestReadVTUTagArray(t *testing.T) {
	tm := mesh.GetStandardTestMeshes()

	t.Run("CustomName", func(t *testing.T) {
		b := NewVTUTestBuilder(VTUBinary)
		b.TagName = "GroupId"
		msh, err := ParseVTU(b.BuildFromCompleteMesh(&tm.SingleTetMesh), "GroupId")
		require.NoError(t, err)
		assert.Equal(t, []int{7}, msh.ElementTags)
	})

	t.Run("Missing", func(t *testing.T) {
		b := NewVTUTestBuilder(VTUBinary)
		b.TagName = "GroupId"
		_, err := ParseVTU(b.BuildFromCompleteMesh(&tm.SingleTetMesh), DefaultTagName)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `missing CellData array "ObjectId"`)
	})

	t.Run("IntegralFloat", func(t *testing.T) {
		b := NewVTUTestBuilder(VTUASCII)
		b.TagType = "Float64"
		msh, err := ParseVTU(b.BuildFromCompleteMesh(&tm.TwoTetMesh), DefaultTagName)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, msh.ElementTags)
	})
}

func TestReadVTUStartOffsets(t *testing.T) {
	content := `<?xml version="1.0"?>
<VTKFile type="UnstructuredGrid" version="2.2" byte_order="LittleEndian">
  <UnstructuredGrid>
    <Piece NumberOfPoints="4" NumberOfCells="2">
      <Points>
        <DataArray type="Float64" NumberOfComponents="3" format="ascii">
          0 0 0  1 0 0  0 1 0  0 0 1
        </DataArray>
      </Points>
      <Cells>
        <DataArray type="Int64" Name="connectivity" format="ascii">0 1 2 3 0 1 2</DataArray>
        <DataArray type="Int64" Name="offsets" format="ascii">0 4 7</DataArray>
        <DataArray type="UInt8" Name="types" format="ascii">10 5</DataArray>
      </Cells>
      <CellData>
        <DataArray type="Int32" Name="ObjectId" format="ascii">3 9</DataArray>
      </CellData>
    </Piece>
  </UnstructuredGrid>
</VTKFile>`
	msh, err := ParseVTU([]byte(content), DefaultTagName)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1, 2, 3}, {0, 1, 2}}, msh.EtoV)
	assert.Equal(t, []mesh.ElementType{mesh.Tet, mesh.Triangle}, msh.ElementTypes)
	assert.Equal(t, []int{3, 9}, msh.ElementTags)
	assert.Equal(t, "2.2", msh.FormatVersion)
}

func TestReadVTUUnknownCellType(t *testing.T) {
	content := `<VTKFile type="UnstructuredGrid" version="1.0">
  <UnstructuredGrid>
    <Piece NumberOfPoints="3" NumberOfCells="1">
      <Points><DataArray type="Float32" NumberOfComponents="3" format="ascii">0 0 0 1 0 0 0 1 0</DataArray></Points>
      <Cells>
        <DataArray type="Int32" Name="connectivity" format="ascii">0 1 2</DataArray>
        <DataArray type="Int32" Name="offsets" format="ascii">3</DataArray>
        <DataArray type="UInt8" Name="types" format="ascii">7</DataArray>
      </Cells>
      <CellData><DataArray type="Int32" Name="ObjectId" format="ascii">1</DataArray></CellData>
    </Piece>
  </UnstructuredGrid>
</VTKFile>`
	msh, err := ParseVTU([]byte(content), DefaultTagName)
	require.NoError(t, err)
	// VTK_POLYGON has no counterpart; it is carried as Unknown
	assert.Equal(t, []mesh.ElementType{mesh.Unknown}, msh.ElementTypes)
	assert.Equal(t, []int{0, 1, 2}, msh.EtoV[0])
}

func TestReadVTUErrors(t *testing.T) {
	tm := mesh.GetStandardTestMeshes()
	good := string(NewVTUTestBuilder(VTUASCII).BuildFromCompleteMesh(&tm.SingleTetMesh))

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"NotXML", "this is not a mesh", "invalid VTK XML"},
		{"WrongType", `<VTKFile type="PolyData"><PolyData/></VTKFile>`, "unsupported VTK file type"},
		{"NoPieces", `<VTKFile type="UnstructuredGrid"><UnstructuredGrid/></VTKFile>`, "no Piece"},
		{"BadCompressor", `<VTKFile type="UnstructuredGrid" compressor="vtkLZ4DataCompressor"><UnstructuredGrid><Piece/></UnstructuredGrid></VTKFile>`, "unsupported compressor"},
		{"ConnectivityOutOfRange", `<VTKFile type="UnstructuredGrid"><UnstructuredGrid>
<Piece NumberOfPoints="1" NumberOfCells="1">
<Points><DataArray type="Float64" NumberOfComponents="3" format="ascii">0 0 0</DataArray></Points>
<Cells>
<DataArray type="Int32" Name="connectivity" format="ascii">0 1 2</DataArray>
<DataArray type="Int32" Name="offsets" format="ascii">3</DataArray>
<DataArray type="UInt8" Name="types" format="ascii">5</DataArray>
</Cells>
<CellData><DataArray type="Int32" Name="ObjectId" format="ascii">1</DataArray></CellData>
</Piece></UnstructuredGrid></VTKFile>`, "out of range"},
		{"ShortPoints", `<VTKFile type="UnstructuredGrid"><UnstructuredGrid>
<Piece NumberOfPoints="2" NumberOfCells="0">
<Points><DataArray type="Float64" NumberOfComponents="3" format="ascii">0 0 0</DataArray></Points>
</Piece></UnstructuredGrid></VTKFile>`, "points array has 3 values, expected 6"},
		{"BadASCII", `<VTKFile type="UnstructuredGrid"><UnstructuredGrid>
<Piece NumberOfPoints="1" NumberOfCells="0">
<Points><DataArray type="Float64" NumberOfComponents="3" format="ascii">0 zero 0</DataArray></Points>
</Piece></UnstructuredGrid></VTKFile>`, `invalid Float64 value "zero"`},
		{"TruncatedBase64", `<VTKFile type="UnstructuredGrid"><UnstructuredGrid>
<Piece NumberOfPoints="1" NumberOfCells="0">
<Points><DataArray type="Float64" NumberOfComponents="3" format="binary">GAAAAA==AAAA</DataArray></Points>
</Piece></UnstructuredGrid></VTKFile>`, "truncated base64 data"},
		{"TagNotInteger", `<VTKFile type="UnstructuredGrid"><UnstructuredGrid>
<Piece NumberOfPoints="3" NumberOfCells="1">
<Points><DataArray type="Float64" NumberOfComponents="3" format="ascii">0 0 0 1 0 0 0 1 0</DataArray></Points>
<Cells>
<DataArray type="Int32" Name="connectivity" format="ascii">0 1 2</DataArray>
<DataArray type="Int32" Name="offsets" format="ascii">3</DataArray>
<DataArray type="UInt8" Name="types" format="ascii">5</DataArray>
</Cells>
<CellData><DataArray type="Float32" Name="ObjectId" format="ascii">1.5</DataArray></CellData>
</Piece></UnstructuredGrid></VTKFile>`, "is not an integer"},
		{"Truncated", good[:len(good)/2], "invalid VTK XML"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseVTU([]byte(tt.content), DefaultTagName)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// compressedPointsVTU writes a one point file whose Points array carries the
// given UInt64 zlib compression header and no block data
func compressedPointsVTU(enc VTUEncoding, header []uint64) []byte {
	hb := make([]byte, 8*len(header))
	for i, v := range header {
		binary.LittleEndian.PutUint64(hb[i*8:], v)
	}
	const open = `<?xml version="1.0"?>
<VTKFile type="UnstructuredGrid" version="1.0" byte_order="LittleEndian" header_type="UInt64" compressor="vtkZLibDataCompressor">
<UnstructuredGrid><Piece NumberOfPoints="1" NumberOfCells="0"><Points>
`
	if enc == VTUBinary {
		return []byte(fmt.Sprintf(`%s<DataArray type="Float64" NumberOfComponents="3" format="binary">%s</DataArray>
</Points></Piece></UnstructuredGrid></VTKFile>
`, open, base64.StdEncoding.EncodeToString(hb)))
	}
	out := []byte(open + `<DataArray type="Float64" NumberOfComponents="3" format="appended" offset="0"/>
</Points></Piece></UnstructuredGrid>
<AppendedData encoding="raw">_`)
	out = append(out, hb...)
	return append(out, "\n</AppendedData>\n</VTKFile>\n"...)
}

func TestReadVTUCorruptCompressionHeader(t *testing.T) {
	tests := []struct {
		name   string
		header []uint64
	}{
		{"HugeBlockSize", []uint64{1, 1 << 62, 0, 0}},
		{"NegativeBlockSize", []uint64{1, 1<<63 + 5, 0, 0}},
		{"NegativeLastSize", []uint64{1, 16, 1 << 63, 0}},
		{"LastExceedsBlock", []uint64{1, 16, 32, 0}},
		{"NegativeCompressedSize", []uint64{1, 16, 0, 1 << 63}},
		{"OverflowingSizes", []uint64{3, 16, 0, 1 << 62, 1 << 62, 1 << 62}},
		{"SizeBeyondData", []uint64{1, 16, 0, 1 << 40}},
		{"NegativeBlockCount", []uint64{1 << 63, 16, 0, 0}},
	}

	for _, enc := range []VTUEncoding{VTUBinary, VTUAppendedRaw} {
		for _, tt := range tests {
			t.Run(fmt.Sprintf("%s/%d", tt.name, enc), func(t *testing.T) {
				fs := afero.NewMemMapFs()
				require.NoError(t, afero.WriteFile(fs, "corrupt.vtu", compressedPointsVTU(enc, tt.header), 0644))

				var err error
				require.NotPanics(t, func() {
					_, err = ReadMeshFile(fs, "corrupt.vtu", DefaultTagName)
				})
				var loadErr *LoadError
				assert.True(t, errors.As(err, &loadErr), "got %v", err)
			})
		}
	}
}

func TestReadMeshFile(t *testing.T) {
	tm := mesh.GetStandardTestMeshes()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/C0001.vtu",
		NewVTUTestBuilder(VTUAppendedRaw).BuildFromCompleteMesh(&tm.WalledTetMesh), 0644))

	msh, err := ReadMeshFile(fs, "/data/C0001.vtu", DefaultTagName)
	require.NoError(t, err)
	checkAgainst(t, &tm.WalledTetMesh, msh)

	t.Run("Missing", func(t *testing.T) {
		_, err := ReadMeshFile(fs, "/data/absent.vtu", DefaultTagName)
		var loadErr *LoadError
		require.True(t, errors.As(err, &loadErr))
		assert.Equal(t, "/data/absent.vtu", loadErr.Path)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("UnknownExtension", func(t *testing.T) {
		_, err := ReadMeshFile(fs, "/data/C0001.neu", DefaultTagName)
		var loadErr *LoadError
		require.True(t, errors.As(err, &loadErr))
		assert.Contains(t, err.Error(), "unsupported mesh format")
	})

	t.Run("OsFs", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mesh.VTU")
		require.NoError(t, os.WriteFile(path,
			NewVTUTestBuilder(VTUBinary).BuildFromCompleteMesh(&tm.TwoTetMesh), 0644))
		msh, err := ReadMeshFile(afero.NewOsFs(), path, DefaultTagName)
		require.NoError(t, err)
		checkAgainst(t, &tm.TwoTetMesh, msh)
	})
}
