package mesh

import (
	"fmt"
	"io"
	"sort"
)

// Mesh is an unstructured mesh as read from a mesh source. Points and cells
// are kept in source order; indices into Vertices are 0-based.
type Mesh struct {
	// Geometry
	Vertices [][]float64 // Vertex coordinates [nvertices][3]

	// Element data
	EtoV         [][]int       // Element to vertex connectivity [nelems][nverts_per_elem]
	ElementTypes []ElementType // Element type for each element
	ElementTags  []int         // Physical group/tag for each element

	// Format metadata, set by readers that carry it
	FormatVersion string
	IsBinary      bool
	DataSize      int

	// Mesh statistics
	NumElements int
	NumVertices int

	nodeIDMap map[int]int // file node ID -> vertex index
}

// NewMesh creates an empty mesh
func NewMesh() *Mesh {
	return &Mesh{
		nodeIDMap: make(map[int]int),
	}
}

// AddNode appends a vertex and records the ID it carries in the source file
func (m *Mesh) AddNode(nodeID int, coords []float64) {
	xyz := make([]float64, 3)
	copy(xyz, coords)
	m.nodeIDMap[nodeID] = len(m.Vertices)
	m.Vertices = append(m.Vertices, xyz)
	m.NumVertices = len(m.Vertices)
}

// GetNodeIndex maps a file node ID to its vertex index
func (m *Mesh) GetNodeIndex(nodeID int) (int, bool) {
	idx, ok := m.nodeIDMap[nodeID]
	return idx, ok
}

// AddElement appends a cell whose connectivity is given as vertex indices
func (m *Mesh) AddElement(etype ElementType, tag int, vertices []int) error {
	for _, v := range vertices {
		if v < 0 || v >= m.NumVertices {
			return fmt.Errorf("element %d: vertex index %d out of range [0,%d)",
				m.NumElements, v, m.NumVertices)
		}
	}
	m.EtoV = append(m.EtoV, vertices)
	m.ElementTypes = append(m.ElementTypes, etype)
	m.ElementTags = append(m.ElementTags, tag)
	m.NumElements = len(m.EtoV)
	return nil
}

// PrintStatistics prints mesh statistics
func (m *Mesh) PrintStatistics(w io.Writer) {
	st := m.ComputeStatistics()
	fmt.Fprintf(w, "Mesh Statistics:\n")
	fmt.Fprintf(w, "  Vertices: %d\n", st.NumVertices)
	fmt.Fprintf(w, "  Elements: %d\n", st.NumElements)

	fmt.Fprintf(w, "  Element types:\n")
	names := make([]string, 0, len(st.ElementTypes))
	for name := range st.ElementTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "    %s: %d\n", name, st.ElementTypes[name])
	}

	fmt.Fprintf(w, "  Tags:\n")
	tags := make([]int, 0, len(st.Tags))
	for tag := range st.Tags {
		tags = append(tags, tag)
	}
	sort.Ints(tags)
	for _, tag := range tags {
		fmt.Fprintf(w, "    %d: %d\n", tag, st.Tags[tag])
	}

	bb := st.BoundingBox
	fmt.Fprintf(w, "  Bounding box: [%g %g %g] - [%g %g %g]\n",
		bb[0][0], bb[0][1], bb[0][2], bb[1][0], bb[1][1], bb[1][2])
	fmt.Fprintf(w, "  Volume: %g\n", st.Volume)
	fmt.Fprintf(w, "  Surface area: %g\n", st.SurfaceArea)
	fmt.Fprintf(w, "  Inverted elements: %d\n", st.InvertedElements)
	fmt.Fprintf(w, "  Orphan nodes: %d\n", st.OrphanNodes)
	fmt.Fprintf(w, "  Max node valence: %d\n", st.MaxNodeValence)
	fmt.Fprintf(w, "  Boundary faces: %d\n", st.BoundaryFaces)
}
