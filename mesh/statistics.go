package mesh

import (
	"math"
	"sort"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// Statistics summarizes a mesh for reporting
type Statistics struct {
	NumVertices      int            `json:"vertices"`
	NumElements      int            `json:"elements"`
	ElementTypes     map[string]int `json:"elementTypes"`
	Tags             map[int]int    `json:"tags"`
	BoundingBox      [2][3]float64  `json:"boundingBox"` // Min and max coordinates
	Volume           float64        `json:"volume"`      // Sum of tet volumes
	SurfaceArea      float64        `json:"surfaceArea"` // Sum of triangle areas
	InvertedElements int            `json:"invertedElements"`
	OrphanNodes      int            `json:"orphanNodes"`
	MaxNodeValence   int            `json:"maxNodeValence"`
	BoundaryFaces    int            `json:"boundaryFaces"`
}

// ComputeStatistics walks the mesh once per quantity and returns a summary
func (m *Mesh) ComputeStatistics() *Statistics {
	st := &Statistics{
		NumVertices:  m.NumVertices,
		NumElements:  m.NumElements,
		ElementTypes: make(map[string]int),
		Tags:         make(map[int]int),
	}

	for k := 0; k < m.NumElements; k++ {
		st.ElementTypes[m.ElementTypes[k].String()]++
		st.Tags[m.ElementTags[k]]++
	}

	st.BoundingBox = m.BoundingBox()

	for k := 0; k < m.NumElements; k++ {
		verts := m.EtoV[k]
		switch {
		case m.ElementTypes[k] == Tet && len(verts) == 4:
			vol := m.TetVolume(k)
			if vol < 0 {
				st.InvertedElements++
			}
			st.Volume += math.Abs(vol)
		case m.ElementTypes[k] == Triangle && len(verts) == 3:
			st.SurfaceArea += m.TriangleArea(k)
		}
	}

	for _, v := range m.NodeValence() {
		if v == 0 {
			st.OrphanNodes++
		}
		if v > st.MaxNodeValence {
			st.MaxNodeValence = v
		}
	}

	st.BoundaryFaces = m.CountBoundaryFaces()
	return st
}

// BoundingBox returns the per-axis min and max of the vertex coordinates
func (m *Mesh) BoundingBox() (bb [2][3]float64) {
	if m.NumVertices == 0 {
		return
	}
	coord := make([]float64, m.NumVertices)
	for dim := 0; dim < 3; dim++ {
		for i, v := range m.Vertices {
			coord[i] = v[dim]
		}
		bb[0][dim] = floats.Min(coord)
		bb[1][dim] = floats.Max(coord)
	}
	return
}

func (m *Mesh) vec(i int) r3.Vec {
	v := m.Vertices[i]
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
}

// TetVolume returns the signed volume of tet k, negative when inverted
func (m *Mesh) TetVolume(k int) float64 {
	verts := m.EtoV[k]
	a := m.vec(verts[0])
	e1 := r3.Sub(m.vec(verts[1]), a)
	e2 := r3.Sub(m.vec(verts[2]), a)
	e3 := r3.Sub(m.vec(verts[3]), a)
	return r3.Dot(e1, r3.Cross(e2, e3)) / 6
}

// TriangleArea returns the area of triangle k
func (m *Mesh) TriangleArea(k int) float64 {
	verts := m.EtoV[k]
	a := m.vec(verts[0])
	e1 := r3.Sub(m.vec(verts[1]), a)
	e2 := r3.Sub(m.vec(verts[2]), a)
	return r3.Norm(r3.Cross(e1, e2)) / 2
}

// NodeValence returns the number of elements touching each vertex, taken
// from the diagonal of VToE*EToV
func (m *Mesh) NodeValence() (valence []int) {
	valence = make([]int, m.NumVertices)
	if m.NumElements == 0 || m.NumVertices == 0 {
		return
	}
	SpEToV_Tmp := sparse.NewDOK(m.NumElements, m.NumVertices)
	for k, verts := range m.EtoV {
		for _, v := range verts {
			SpEToV_Tmp.Set(k, v, 1)
		}
	}
	SpEToV := SpEToV_Tmp.ToCSR()
	SpVToV := sparse.NewCSR(m.NumVertices, m.NumVertices, nil, nil, nil)
	SpVToV.Mul(SpEToV.T(), SpEToV)
	for i := range valence {
		valence[i] = int(SpVToV.At(i, i))
	}
	return
}

// CountBoundaryFaces counts volume element faces not shared with a second
// volume element
func (m *Mesh) CountBoundaryFaces() (count int) {
	faceCount := make(map[[4]int]int)
	for k := 0; k < m.NumElements; k++ {
		etype := m.ElementTypes[k]
		if etype.GetDimension() != 3 || len(m.EtoV[k]) != etype.GetNumNodes() {
			continue
		}
		for _, faceVerts := range GetElementFaces(etype, m.EtoV[k]) {
			faceCount[faceKey(faceVerts)]++
		}
	}
	for _, n := range faceCount {
		if n == 1 {
			count++
		}
	}
	return
}

func faceKey(faceVerts []int) (key [4]int) {
	sorted := make([]int, len(faceVerts))
	copy(sorted, faceVerts)
	sort.Ints(sorted)
	for i := range key {
		key[i] = -1
	}
	copy(key[:], sorted)
	return
}
