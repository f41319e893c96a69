package writers

import (
	"bufio"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/notargets/vtu2gmsh/mesh"
)

// ShapePolicy decides what happens to cells whose point count is not that of
// a triangle or tetrahedron
type ShapePolicy int

const (
	// SkipMalformed drops the cell with a warning; the declared element
	// count matches the lines written
	SkipMalformed ShapePolicy = iota
	// FailMalformed aborts with a *MalformedCellShapeError
	FailMalformed
)

func (p ShapePolicy) String() string {
	switch p {
	case SkipMalformed:
		return "skip"
	case FailMalformed:
		return "fail"
	default:
		return "invalid"
	}
}

// ParseShapePolicy converts "skip" or "fail" to a ShapePolicy
func ParseShapePolicy(s string) (ShapePolicy, error) {
	switch s {
	case "skip", "":
		return SkipMalformed, nil
	case "fail":
		return FailMalformed, nil
	default:
		return SkipMalformed, fmt.Errorf("unknown shape policy %q, use skip or fail", s)
	}
}

// UnsupportedCellTypeError reports a cell type with no Gmsh 2.2 code here
type UnsupportedCellTypeError struct {
	Cell int // 0-based source index
	Type mesh.ElementType
}

func (e *UnsupportedCellTypeError) Error() string {
	return fmt.Sprintf("cell %d: unsupported cell type %s, only Triangle and Tet can be written",
		e.Cell+1, e.Type)
}

// MalformedCellShapeError reports a cell whose point count does not match a
// supported shape
type MalformedCellShapeError struct {
	Cell      int // 0-based source index
	Type      mesh.ElementType
	NumPoints int
}

func (e *MalformedCellShapeError) Error() string {
	return fmt.Sprintf("cell %d: %s with %d points is not a triangle or tetrahedron",
		e.Cell+1, e.Type, e.NumPoints)
}

// WriteError reports a failure writing the output file
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("unable to write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// GmshType returns the Gmsh 2.2 element type code for a cell
func GmshType(cell int, etype mesh.ElementType) (int, error) {
	switch etype {
	case mesh.Triangle:
		return 2, nil
	case mesh.Tet:
		return 4, nil
	default:
		return 0, &UnsupportedCellTypeError{Cell: cell, Type: etype}
	}
}

// Gmsh22Writer serializes a mesh to Gmsh MSH 2.2 ASCII text
type Gmsh22Writer struct {
	Policy ShapePolicy
	Logger *zap.Logger
}

// NewGmsh22Writer creates a writer; a nil logger discards log output
func NewGmsh22Writer(policy ShapePolicy, logger *zap.Logger) *Gmsh22Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gmsh22Writer{Policy: policy, Logger: logger}
}

// EmitHeader returns the MeshFormat section
func (w *Gmsh22Writer) EmitHeader() []string {
	return []string{"$MeshFormat", "2.2 0 8", "$EndMeshFormat"}
}

// EmitNodes returns the Nodes section, one 1-based line per vertex
func (w *Gmsh22Writer) EmitNodes(m *mesh.Mesh) []string {
	lines := make([]string, 0, m.NumVertices+3)
	lines = append(lines, "$Nodes", (&lineBuilder{}).Int(m.NumVertices).String())
	for i, xyz := range m.Vertices {
		lb := &lineBuilder{}
		lines = append(lines, lb.Int(i+1).Float(xyz[0]).Float(xyz[1]).Float(xyz[2]).String())
	}
	return append(lines, "$EndNodes")
}

// EmitElements returns the Elements section and the 0-based indices of the
// cells dropped under SkipMalformed. Element ids are 1-based source cell
// indices, so skipped cells leave gaps; the declared count is the number of
// element lines.
func (w *Gmsh22Writer) EmitElements(m *mesh.Mesh) (lines []string, skipped []int, err error) {
	elements := make([]string, 0, m.NumElements)
	for k := 0; k < m.NumElements; k++ {
		etype, verts := m.ElementTypes[k], m.EtoV[k]
		npts := len(verts)

		if npts != 3 && npts != 4 {
			if err = w.malformed(k, etype, npts); err != nil {
				return nil, nil, err
			}
			skipped = append(skipped, k)
			continue
		}

		var code int
		if code, err = GmshType(k, etype); err != nil {
			return nil, nil, err
		}
		if npts != etype.GetNumNodes() {
			if err = w.malformed(k, etype, npts); err != nil {
				return nil, nil, err
			}
			skipped = append(skipped, k)
			continue
		}

		tag := m.ElementTags[k]
		lb := &lineBuilder{}
		lb.Int(k + 1).Int(code).Int(2).Int(tag).Int(tag)
		for _, v := range verts {
			lb.Int(v + 1)
		}
		elements = append(elements, lb.String())
	}

	if len(skipped) > 0 {
		w.Logger.Warn("cells skipped, element count adjusted",
			zap.Int("skipped", len(skipped)),
			zap.Int("cells", m.NumElements),
			zap.Int("elements", len(elements)))
	}

	lines = make([]string, 0, len(elements)+3)
	lines = append(lines, "$Elements", (&lineBuilder{}).Int(len(elements)).String())
	lines = append(lines, elements...)
	lines = append(lines, "$EndElements")
	return lines, skipped, nil
}

func (w *Gmsh22Writer) malformed(k int, etype mesh.ElementType, npts int) error {
	if w.Policy == FailMalformed {
		return &MalformedCellShapeError{Cell: k, Type: etype, NumPoints: npts}
	}
	w.Logger.Warn("skipping cell with unsupported shape",
		zap.Int("cell", k+1),
		zap.Stringer("type", etype),
		zap.Int("points", npts))
	return nil
}

// Document returns the full file as lines: header, nodes, elements
func (w *Gmsh22Writer) Document(m *mesh.Mesh) (lines []string, skipped []int, err error) {
	elements, skipped, err := w.EmitElements(m)
	if err != nil {
		return nil, nil, err
	}
	lines = append(w.EmitHeader(), w.EmitNodes(m)...)
	return append(lines, elements...), skipped, nil
}

// WriteLines joins lines with newlines, without a trailing newline, and
// replaces path with the result. The data is written to a temporary file in
// the same directory and renamed into place, so on failure path is left as
// it was.
func WriteLines(fs afero.Fs, path string, lines []string) (err error) {
	tmp, err := afero.TempFile(fs, filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			fs.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriter(tmp)
	for i, line := range lines {
		if i > 0 {
			bw.WriteByte('\n')
		}
		bw.WriteString(line)
	}
	if err = bw.Flush(); err != nil {
		tmp.Close()
		return &WriteError{Path: path, Err: err}
	}
	if err = tmp.Close(); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	if err = fs.Chmod(tmpName, 0644); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	if err = fs.Rename(tmpName, path); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// WriteFile serializes m and writes it to path
func (w *Gmsh22Writer) WriteFile(fs afero.Fs, path string, m *mesh.Mesh) (skipped []int, err error) {
	lines, skipped, err := w.Document(m)
	if err != nil {
		return nil, err
	}
	return skipped, WriteLines(fs, path, lines)
}
