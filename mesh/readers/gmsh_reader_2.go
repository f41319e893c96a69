package readers

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/notargets/vtu2gmsh/mesh"
)

// ReadGmsh22 reads a Gmsh MSH file format version 2.2 (ASCII). Every element
// is kept in file order whatever its dimension; its tag is the physical group.
func ReadGmsh22(fs afero.Fs, filename string) (*mesh.Mesh, error) {
	file, err := fs.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	msh := mesh.NewMesh()

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "$MeshFormat":
			if err := readMeshFormat22(scanner, msh); err != nil {
				return nil, err
			}

		case "$Nodes":
			if err := readNodes22(scanner, msh); err != nil {
				return nil, err
			}

		case "$Elements":
			if err := readElements22(scanner, msh); err != nil {
				return nil, err
			}

		default:
			if strings.HasPrefix(line, "$") && !strings.HasPrefix(line, "$End") {
				// Skip sections we don't use
				endMarker := "$End" + line[1:]
				for scanner.Scan() {
					if strings.TrimSpace(scanner.Text()) == endMarker {
						break
					}
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}
	if msh.FormatVersion == "" {
		return nil, fmt.Errorf("could not find $MeshFormat section")
	}

	return msh, nil
}

// readMeshFormat22 reads the MeshFormat section
func readMeshFormat22(scanner *bufio.Scanner, msh *mesh.Mesh) error {
	if !scanner.Scan() {
		return fmt.Errorf("unexpected EOF in MeshFormat")
	}

	parts := strings.Fields(scanner.Text())
	if len(parts) < 3 {
		return fmt.Errorf("invalid MeshFormat line")
	}
	if !strings.HasPrefix(parts[0], "2.") {
		return fmt.Errorf("unsupported Gmsh format version: %s", parts[0])
	}

	msh.FormatVersion = parts[0]
	fileType, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("invalid MeshFormat file-type %q", parts[1])
	}
	if fileType != 0 {
		return fmt.Errorf("binary Gmsh files are not supported")
	}
	msh.IsBinary = false
	if msh.DataSize, err = strconv.Atoi(parts[2]); err != nil {
		return fmt.Errorf("invalid MeshFormat data-size %q", parts[2])
	}

	return skipTo(scanner, "$EndMeshFormat")
}

// readNodes22 reads nodes in v2.2 format
func readNodes22(scanner *bufio.Scanner, msh *mesh.Mesh) error {
	if !scanner.Scan() {
		return fmt.Errorf("unexpected EOF in Nodes")
	}

	numNodes, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return fmt.Errorf("invalid node count %q", scanner.Text())
	}

	for i := 0; i < numNodes; i++ {
		if !scanner.Scan() {
			return fmt.Errorf("unexpected EOF reading nodes")
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) < 4 {
			return fmt.Errorf("invalid node line: %s", scanner.Text())
		}

		nodeID, err := strconv.Atoi(parts[0])
		if err != nil {
			return fmt.Errorf("invalid node line: %s", scanner.Text())
		}
		xyz := make([]float64, 3)
		for j := range xyz {
			if xyz[j], err = strconv.ParseFloat(parts[1+j], 64); err != nil {
				return fmt.Errorf("invalid node line: %s", scanner.Text())
			}
		}

		msh.AddNode(nodeID, xyz)
	}

	return skipTo(scanner, "$EndNodes")
}

// readElements22 reads elements in v2.2 format
func readElements22(scanner *bufio.Scanner, msh *mesh.Mesh) error {
	if !scanner.Scan() {
		return fmt.Errorf("unexpected EOF in Elements")
	}

	numElements, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return fmt.Errorf("invalid element count %q", scanner.Text())
	}

	for i := 0; i < numElements; i++ {
		if !scanner.Scan() {
			return fmt.Errorf("unexpected EOF reading elements")
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) < 3 {
			return fmt.Errorf("invalid element line: %s", scanner.Text())
		}

		ints := make([]int, len(parts))
		for j, p := range parts {
			if ints[j], err = strconv.Atoi(p); err != nil {
				return fmt.Errorf("invalid element line: %s", scanner.Text())
			}
		}
		elemID, elemType, numTags := ints[0], ints[1], ints[2]

		if numTags < 0 || len(parts) < 3+numTags {
			return fmt.Errorf("element %d: invalid element tags", elemID)
		}

		// Physical group is the first tag
		var tag int
		if numTags > 0 {
			tag = ints[3]
		}

		etype, ok := gmshElementType22[elemType]
		if !ok {
			etype = mesh.Unknown
		}

		nodeStart := 3 + numTags
		if ok && len(parts) != nodeStart+etype.GetNumNodes() {
			return fmt.Errorf("element %d: expected %d nodes, got %d",
				elemID, etype.GetNumNodes(), len(parts)-nodeStart)
		}

		verts := make([]int, 0, len(parts)-nodeStart)
		for _, nodeID := range ints[nodeStart:] {
			idx, ok := msh.GetNodeIndex(nodeID)
			if !ok {
				return fmt.Errorf("element %d: unknown node %d", elemID, nodeID)
			}
			verts = append(verts, idx)
		}

		if err := msh.AddElement(etype, tag, verts); err != nil {
			return err
		}
	}

	return skipTo(scanner, "$EndElements")
}

func skipTo(scanner *bufio.Scanner, endMarker string) error {
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == endMarker {
			return nil
		}
	}
	return fmt.Errorf("missing %s", endMarker)
}

// gmshElementType22 maps Gmsh v2.2 element type numbers to our ElementType
var gmshElementType22 = map[int]mesh.ElementType{
	1:  mesh.Line,     // 2-node line
	2:  mesh.Triangle, // 3-node triangle
	3:  mesh.Quad,     // 4-node quadrangle
	4:  mesh.Tet,      // 4-node tetrahedron
	5:  mesh.Hex,      // 8-node hexahedron
	6:  mesh.Prism,    // 6-node prism
	7:  mesh.Pyramid,  // 5-node pyramid
	15: mesh.Point,    // 1-node point
}
