package readers

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/notargets/vtu2gmsh/mesh"
)

// vtkFile is the document structure of a VTK XML UnstructuredGrid file
type vtkFile struct {
	XMLName    xml.Name `xml:"VTKFile"`
	Type       string   `xml:"type,attr"`
	Version    string   `xml:"version,attr"`
	ByteOrder  string   `xml:"byte_order,attr"`
	HeaderType string   `xml:"header_type,attr"`
	Compressor string   `xml:"compressor,attr"`
	Grid       struct {
		Pieces []vtkPiece `xml:"Piece"`
	} `xml:"UnstructuredGrid"`
	Appended *struct {
		Encoding string `xml:"encoding,attr"`
		Data     string `xml:",chardata"`
	} `xml:"AppendedData"`
}

type vtkArrays struct {
	Arrays []vtkDataArray `xml:"DataArray"`
}

func (a *vtkArrays) find(name string) *vtkDataArray {
	for i := range a.Arrays {
		if a.Arrays[i].Name == name {
			return &a.Arrays[i]
		}
	}
	return nil
}

type vtkPiece struct {
	NumberOfPoints int       `xml:"NumberOfPoints,attr"`
	NumberOfCells  int       `xml:"NumberOfCells,attr"`
	Points         vtkArrays `xml:"Points"`
	Cells          vtkArrays `xml:"Cells"`
	CellData       vtkArrays `xml:"CellData"`
}

// vtkCellType maps VTK cell type codes to our ElementType
var vtkCellType = map[int64]mesh.ElementType{
	1:  mesh.Point,    // VTK_VERTEX
	3:  mesh.Line,     // VTK_LINE
	5:  mesh.Triangle, // VTK_TRIANGLE
	9:  mesh.Quad,     // VTK_QUAD
	10: mesh.Tet,      // VTK_TETRA
	12: mesh.Hex,      // VTK_HEXAHEDRON
	13: mesh.Prism,    // VTK_WEDGE
	14: mesh.Pyramid,  // VTK_PYRAMID
}

// ReadVTU reads a VTK XML unstructured grid. Each cell's tag is read from
// the cell data array named tagName. Pieces are concatenated in file order.
func ReadVTU(fs afero.Fs, filename, tagName string) (*mesh.Mesh, error) {
	data, err := afero.ReadFile(fs, filename)
	if err != nil {
		return nil, err
	}
	return ParseVTU(data, tagName)
}

// ParseVTU decodes VTU file contents
func ParseVTU(data []byte, tagName string) (*mesh.Mesh, error) {
	xmlPart, raw, err := splitRawAppended(data)
	if err != nil {
		return nil, err
	}

	var vf vtkFile
	if err := xml.Unmarshal(xmlPart, &vf); err != nil {
		return nil, fmt.Errorf("invalid VTK XML: %w", err)
	}
	if vf.Type != "UnstructuredGrid" {
		return nil, fmt.Errorf("unsupported VTK file type %q, expected UnstructuredGrid", vf.Type)
	}
	if len(vf.Grid.Pieces) == 0 {
		return nil, fmt.Errorf("no Piece found in UnstructuredGrid")
	}

	dec, err := newArrayDecoder(vf.ByteOrder, vf.HeaderType, vf.Compressor)
	if err != nil {
		return nil, err
	}
	switch {
	case raw != nil:
		dec.appended = string(raw)
		dec.appendRaw = true
	case vf.Appended != nil:
		if vf.Appended.Encoding != "base64" {
			return nil, fmt.Errorf("unsupported AppendedData encoding %q", vf.Appended.Encoding)
		}
		appended := strings.TrimSpace(vf.Appended.Data)
		if !strings.HasPrefix(appended, "_") {
			return nil, fmt.Errorf("AppendedData does not start with '_'")
		}
		dec.appended = appended[1:]
	}

	msh := mesh.NewMesh()
	msh.FormatVersion = vf.Version
	for i := range vf.Grid.Pieces {
		if err := readPiece(dec, &vf.Grid.Pieces[i], tagName, msh); err != nil {
			return nil, fmt.Errorf("piece %d: %w", i, err)
		}
	}
	return msh, nil
}

func readPiece(dec *arrayDecoder, piece *vtkPiece, tagName string, msh *mesh.Mesh) error {
	pointOffset := msh.NumVertices

	if piece.NumberOfPoints > 0 {
		if len(piece.Points.Arrays) == 0 {
			return fmt.Errorf("missing Points data array")
		}
		pts := &piece.Points.Arrays[0]
		ncomp := pts.NumberOfComponents
		if ncomp == 0 {
			ncomp = 1
		}
		if ncomp != 3 {
			return fmt.Errorf("points have %d components, expected 3", ncomp)
		}
		coords, err := dec.Decode(pts)
		if err != nil {
			return err
		}
		if coords.Len() != 3*piece.NumberOfPoints {
			return fmt.Errorf("points array has %d values, expected %d",
				coords.Len(), 3*piece.NumberOfPoints)
		}
		for i := 0; i < piece.NumberOfPoints; i++ {
			msh.AddNode(pointOffset+i+1, []float64{
				coords.Float(3 * i), coords.Float(3*i + 1), coords.Float(3*i + 2),
			})
		}
	}

	if piece.NumberOfCells == 0 {
		return nil
	}

	arrays := make(map[string]*dataValues)
	for _, name := range []string{"connectivity", "offsets", "types"} {
		da := piece.Cells.find(name)
		if da == nil {
			return fmt.Errorf("missing Cells data array %q", name)
		}
		vals, err := dec.Decode(da)
		if err != nil {
			return err
		}
		arrays[name] = vals
	}
	tagArray := piece.CellData.find(tagName)
	if tagArray == nil {
		return fmt.Errorf("missing CellData array %q", tagName)
	}
	tags, err := dec.Decode(tagArray)
	if err != nil {
		return err
	}

	conn, offsets, types := arrays["connectivity"], arrays["offsets"], arrays["types"]
	ncells := piece.NumberOfCells
	if types.Len() != ncells {
		return fmt.Errorf("types array has %d values, expected %d", types.Len(), ncells)
	}
	if tags.Len() < ncells {
		return fmt.Errorf("CellData array %q has %d values, expected %d", tagName, tags.Len(), ncells)
	}

	// Offsets are cell end positions; a leading zero with one extra entry
	// gives start positions instead
	startAtZero := offsets.Len() == ncells+1
	if !startAtZero && offsets.Len() != ncells {
		return fmt.Errorf("offsets array has %d values, expected %d", offsets.Len(), ncells)
	}

	var start int64
	for k := 0; k < ncells; k++ {
		var end int64
		if startAtZero {
			if start, err = offsets.Int(k); err != nil {
				return err
			}
			if end, err = offsets.Int(k + 1); err != nil {
				return err
			}
		} else if end, err = offsets.Int(k); err != nil {
			return err
		}
		if start < 0 || end < start || end > int64(conn.Len()) {
			return fmt.Errorf("cell %d: offsets [%d,%d) outside connectivity of length %d",
				k, start, end, conn.Len())
		}

		verts := make([]int, 0, end-start)
		for j := start; j < end; j++ {
			v, err := conn.Int(int(j))
			if err != nil {
				return err
			}
			verts = append(verts, pointOffset+int(v))
		}

		code, err := types.Int(k)
		if err != nil {
			return err
		}
		etype, ok := vtkCellType[code]
		if !ok {
			etype = mesh.Unknown
		}

		tag, err := tags.Int(k)
		if err != nil {
			return fmt.Errorf("CellData array %q: %w", tagName, err)
		}

		if err := msh.AddElement(etype, int(tag), verts); err != nil {
			return err
		}
		start = end
	}
	return nil
}

// splitRawAppended separates raw binary AppendedData from the XML markup so
// the markup can be handed to the XML decoder. raw is nil when the file has
// no raw appended section.
func splitRawAppended(data []byte) (xmlPart, raw []byte, err error) {
	start := bytes.Index(data, []byte("<AppendedData"))
	if start < 0 {
		return data, nil, nil
	}
	tagEnd := bytes.IndexByte(data[start:], '>')
	if tagEnd < 0 {
		return nil, nil, fmt.Errorf("unterminated AppendedData tag")
	}
	tag := data[start : start+tagEnd+1]
	if !bytes.Contains(tag, []byte(`encoding="raw"`)) && !bytes.Contains(tag, []byte(`encoding='raw'`)) {
		return data, nil, nil
	}
	body := data[start+tagEnd+1:]
	underscore := bytes.IndexByte(body, '_')
	if underscore < 0 {
		return nil, nil, fmt.Errorf("AppendedData does not start with '_'")
	}
	raw = body[underscore+1:]

	xmlPart = make([]byte, 0, start+tagEnd+1+32)
	xmlPart = append(xmlPart, data[:start+tagEnd+1]...)
	xmlPart = append(xmlPart, "</AppendedData></VTKFile>"...)
	return xmlPart, raw, nil
}
