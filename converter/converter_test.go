package converter

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/notargets/vtu2gmsh/mesh"
	"github.com/notargets/vtu2gmsh/mesh/readers"
	"github.com/notargets/vtu2gmsh/mesh/writers"
)

func writeVTU(t *testing.T, fs afero.Fs, path string, cm *mesh.CompleteMesh, enc readers.VTUEncoding) {
	t.Helper()
	b := readers.NewVTUTestBuilder(enc)
	require.NoError(t, afero.WriteFile(fs, path, b.BuildFromCompleteMesh(cm), 0644))
}

func TestConvertSingleTet(t *testing.T) {
	tm := mesh.GetStandardTestMeshes()
	for _, enc := range []readers.VTUEncoding{readers.VTUASCII, readers.VTUBinary, readers.VTUAppendedRaw} {
		fs := afero.NewMemMapFs()
		writeVTU(t, fs, DefaultInput, &tm.SingleTetMesh, enc)

		res, err := Convert(DefaultInput, DefaultOutput, WithFs(fs), WithVerify(true))
		require.NoError(t, err)
		assert.Equal(t, 5, res.NumNodes)
		assert.Equal(t, 1, res.NumElements)
		assert.Empty(t, res.Skipped)

		data, err := afero.ReadFile(fs, DefaultOutput)
		require.NoError(t, err)
		assert.Equal(t, strings.Join([]string{
			"$MeshFormat",
			"2.2 0 8",
			"$EndMeshFormat",
			"$Nodes",
			"5",
			"1 0.0 0.0 0.0",
			"2 1.0 0.0 0.0",
			"3 0.0 1.0 0.0",
			"4 0.0 0.0 1.0",
			"5 1.0 1.0 1.0",
			"$EndNodes",
			"$Elements",
			"1",
			"1 4 2 7 7 1 2 3 4",
			"$EndElements",
		}, "\n"), string(data))
	}
}

func TestConvertWalledTet(t *testing.T) {
	tm := mesh.GetStandardTestMeshes()
	fs := afero.NewMemMapFs()
	writeVTU(t, fs, "/data/walled.vtu", &tm.WalledTetMesh, readers.VTUAppendedBase64)

	core, logs := observer.New(zap.InfoLevel)
	res, err := Convert("/data/walled.vtu", "/data/walled.msh",
		WithFs(fs), WithLogger(zap.New(core)), WithVerify(true))
	require.NoError(t, err)
	assert.Equal(t, 5, res.NumElements)
	assert.Equal(t, 5, res.NumCells)

	out, err := readers.ReadGmsh22(fs, "/data/walled.msh")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 1, 2, 3}, out.ElementTags)
	assert.Equal(t, mesh.Tet, out.ElementTypes[0])
	for _, etype := range out.ElementTypes[1:] {
		assert.Equal(t, mesh.Triangle, etype)
	}

	entries := logs.FilterMessage("mesh converted").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(5), entries[0].ContextMap()["elements"])
	assert.Equal(t, "/data/walled.vtu", entries[0].ContextMap()["input"])
}

func TestConvertShapePolicy(t *testing.T) {
	tm := mesh.GetStandardTestMeshes()
	fs := afero.NewMemMapFs()
	writeVTU(t, fs, "mixed.vtu", &tm.MixedMesh, readers.VTUBinary)

	res, err := Convert("mixed.vtu", "mixed.msh", WithFs(fs), WithVerify(true))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Skipped)
	assert.Equal(t, 2, res.NumElements)
	assert.Equal(t, 3, res.NumCells)

	_, err = Convert("mixed.vtu", "strict.msh", WithFs(fs),
		WithShapePolicy(writers.FailMalformed))
	var shapeErr *writers.MalformedCellShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, mesh.Hex, shapeErr.Type)
	exists, _ := afero.Exists(fs, "strict.msh")
	assert.False(t, exists)
}

func TestConvertUnsupportedType(t *testing.T) {
	cm := mesh.CompleteMesh{
		Nodes: mesh.GetStandardTestMeshes().CubeNodes,
		Elements: []mesh.ElementSet{{
			Type:     mesh.Quad,
			Elements: [][]string{{"origin", "x", "xy", "y"}},
			Tags:     []int{4},
		}},
	}
	fs := afero.NewMemMapFs()
	writeVTU(t, fs, "quad.vtu", &cm, readers.VTUASCII)

	_, err := Convert("quad.vtu", "quad.msh", WithFs(fs))
	var typeErr *writers.UnsupportedCellTypeError
	require.True(t, errors.As(err, &typeErr))
	assert.Equal(t, 0, typeErr.Cell)
	exists, _ := afero.Exists(fs, "quad.msh")
	assert.False(t, exists)
}

func TestConvertTagName(t *testing.T) {
	tm := mesh.GetStandardTestMeshes()
	fs := afero.NewMemMapFs()
	b := readers.NewVTUTestBuilder(readers.VTUASCII)
	b.TagName = "Region"
	require.NoError(t, afero.WriteFile(fs, "r.vtu", b.BuildFromCompleteMesh(&tm.TwoTetMesh), 0644))

	_, err := Convert("r.vtu", "r.msh", WithFs(fs))
	var loadErr *readers.LoadError
	assert.True(t, errors.As(err, &loadErr))

	_, err = Convert("r.vtu", "r.msh", WithFs(fs), WithTagName("Region"), WithVerify(true))
	require.NoError(t, err)
}

func TestConvertErrors(t *testing.T) {
	tm := mesh.GetStandardTestMeshes()

	t.Run("MissingInput", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		_, err := Convert("absent.vtu", DefaultOutput, WithFs(fs))
		var loadErr *readers.LoadError
		require.True(t, errors.As(err, &loadErr))
		assert.Equal(t, "absent.vtu", loadErr.Path)
		assert.True(t, errors.Is(err, os.ErrNotExist))
		exists, _ := afero.Exists(fs, DefaultOutput)
		assert.False(t, exists)
	})

	t.Run("Malformed", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "bad.vtu", []byte("<VTKFile"), 0644))
		_, err := Convert("bad.vtu", DefaultOutput, WithFs(fs))
		var loadErr *readers.LoadError
		assert.True(t, errors.As(err, &loadErr))
	})

	t.Run("ReadOnlyOutput", func(t *testing.T) {
		base := afero.NewMemMapFs()
		writeVTU(t, base, DefaultInput, &tm.TwoTetMesh, readers.VTUASCII)
		fs := afero.NewReadOnlyFs(base)
		_, err := Convert(DefaultInput, DefaultOutput, WithFs(fs))
		var writeErr *writers.WriteError
		require.True(t, errors.As(err, &writeErr))
		assert.Equal(t, DefaultOutput, writeErr.Path)
	})
}

func TestVerifyDetectsMismatch(t *testing.T) {
	tm := mesh.GetStandardTestMeshes()
	fs := afero.NewMemMapFs()
	c := New(WithFs(fs))

	src := tm.TwoTetMesh.ToMesh()
	_, err := writers.NewGmsh22Writer(writers.SkipMalformed, nil).WriteFile(fs, "two.msh", src)
	require.NoError(t, err)
	require.NoError(t, c.Verify(src, "two.msh", nil))

	src.ElementTags[1] = 9
	assert.Error(t, c.Verify(src, "two.msh", nil))

	assert.Error(t, c.Verify(tm.SingleTetMesh.ToMesh(), "two.msh", nil))
	assert.Error(t, c.Verify(src, "missing.msh", nil))
}
