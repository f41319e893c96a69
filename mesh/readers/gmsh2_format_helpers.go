package readers

import (
	"fmt"
	"strings"

	"github.com/notargets/vtu2gmsh/mesh"
)

// Gmsh22TestBuilder helps build Gmsh 2.2 format test files
type Gmsh22TestBuilder struct{}

// BuildFromCompleteMesh creates a complete Gmsh 2.2 format file from a CompleteMesh
func (b *Gmsh22TestBuilder) BuildFromCompleteMesh(cm *mesh.CompleteMesh) string {
	var sections []string

	sections = append(sections, b.buildHeader())
	sections = append(sections, b.buildNodes(cm))
	sections = append(sections, b.buildElements(cm))

	return strings.Join(sections, "\n")
}

func (b *Gmsh22TestBuilder) buildHeader() string {
	return `$MeshFormat
2.2 0 8
$EndMeshFormat`
}

func (b *Gmsh22TestBuilder) buildNodes(cm *mesh.CompleteMesh) string {
	numNodes := len(cm.Nodes.Nodes)

	var lines []string
	lines = append(lines, "$Nodes")
	lines = append(lines, fmt.Sprintf("%d", numNodes))

	// Node lines: id x y z
	for i := 0; i < numNodes; i++ {
		coords := cm.Nodes.Nodes[i]
		lines = append(lines, fmt.Sprintf("%d %v %v %v", i+1, coords[0], coords[1], coords[2]))
	}

	lines = append(lines, "$EndNodes")
	return strings.Join(lines, "\n")
}

func (b *Gmsh22TestBuilder) buildElements(cm *mesh.CompleteMesh) string {
	types, etov, tags := cm.Flatten()

	var lines []string
	lines = append(lines, "$Elements")
	lines = append(lines, fmt.Sprintf("%d", len(etov)))

	for k, verts := range etov {
		// Format: elem-id elem-type num-tags physical elementary node1 node2 ...
		line := fmt.Sprintf("%d %d 2 %d %d", k+1, elementTypeToGmsh22[types[k]], tags[k], tags[k])
		for _, v := range verts {
			line += fmt.Sprintf(" %d", v+1)
		}
		lines = append(lines, line)
	}

	lines = append(lines, "$EndElements")
	return strings.Join(lines, "\n")
}

// elementTypeToGmsh22 converts our ElementType to a Gmsh 2.2 element type number
var elementTypeToGmsh22 = map[mesh.ElementType]int{
	mesh.Point:    15,
	mesh.Line:     1,
	mesh.Triangle: 2,
	mesh.Quad:     3,
	mesh.Tet:      4,
	mesh.Hex:      5,
	mesh.Prism:    6,
	mesh.Pyramid:  7,
}
