package mesh

// TestMeshes provides a collection of standard test meshes that can be used
// across the file format readers and writers (VTU, Gmsh)
type TestMeshes struct {
	// Node definitions
	TetraNodes NodeSet
	CubeNodes  NodeSet

	// Complete mesh definitions
	SingleTetMesh CompleteMesh
	TwoTetMesh    CompleteMesh
	WalledTetMesh CompleteMesh // One tet with its four faces as tagged wall triangles
	MixedMesh     CompleteMesh // Contains shapes that cannot be written to Gmsh 2.2 here
}

// NodeSet represents a set of nodes with their coordinates
type NodeSet struct {
	Nodes   [][]float64    // Coordinates [N][3]
	NodeMap map[string]int // Logical name -> array index
}

// ElementSet represents a set of elements of one type with connectivity
type ElementSet struct {
	Type     ElementType
	Elements [][]string // Connectivity using logical node names
	Tags     []int      // ObjectId per element
}

// CompleteMesh represents a complete mesh with nodes and elements
type CompleteMesh struct {
	Nodes    NodeSet
	Elements []ElementSet
}

// GetStandardTestMeshes returns a set of standard test meshes
func GetStandardTestMeshes() *TestMeshes {
	tm := &TestMeshes{}

	tm.TetraNodes = createTetraNodes()
	tm.CubeNodes = createCubeNodes()

	tm.SingleTetMesh = CompleteMesh{
		Nodes: tm.TetraNodes,
		Elements: []ElementSet{{
			Type:     Tet,
			Elements: [][]string{{"origin", "x", "y", "z"}},
			Tags:     []int{7},
		}},
	}
	tm.TwoTetMesh = CompleteMesh{
		Nodes: tm.TetraNodes,
		Elements: []ElementSet{{
			Type: Tet,
			Elements: [][]string{
				{"origin", "x", "y", "z"},
				{"x", "y", "z", "xyz"},
			},
			Tags: []int{1, 2},
		}},
	}
	tm.WalledTetMesh = CompleteMesh{
		Nodes: tm.TetraNodes,
		Elements: []ElementSet{
			{
				Type:     Tet,
				Elements: [][]string{{"origin", "x", "y", "z"}},
				Tags:     []int{0},
			},
			{
				Type: Triangle,
				Elements: [][]string{
					{"origin", "y", "x"},
					{"origin", "x", "z"},
					{"x", "y", "z"},
					{"origin", "z", "y"},
				},
				Tags: []int{1, 1, 2, 3},
			},
		},
	}
	tm.MixedMesh = CompleteMesh{
		Nodes: tm.CubeNodes,
		Elements: []ElementSet{
			{
				Type:     Tet,
				Elements: [][]string{{"origin", "x", "y", "z"}},
				Tags:     []int{1},
			},
			{
				Type:     Hex,
				Elements: [][]string{{"origin", "x", "xy", "y", "z", "xz", "xyz", "yz"}},
				Tags:     []int{2},
			},
			{
				Type:     Triangle,
				Elements: [][]string{{"origin", "y", "x"}},
				Tags:     []int{3},
			},
		},
	}

	return tm
}

func createTetraNodes() NodeSet {
	// Standard tetrahedron with vertices at:
	// (0,0,0), (1,0,0), (0,1,0), (0,0,1), plus (1,1,1) for a second tet
	nodes := [][]float64{
		{0, 0, 0},
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
		{1, 1, 1},
	}
	nodeMap := map[string]int{
		"origin": 0, "x": 1, "y": 2, "z": 3, "xyz": 4,
	}
	return NodeSet{Nodes: nodes, NodeMap: nodeMap}
}

func createCubeNodes() NodeSet {
	nodes := [][]float64{
		{0, 0, 0}, // 0: origin
		{1, 0, 0}, // 1: x
		{1, 1, 0}, // 2: xy
		{0, 1, 0}, // 3: y
		{0, 0, 1}, // 4: z
		{1, 0, 1}, // 5: xz
		{1, 1, 1}, // 6: xyz
		{0, 1, 1}, // 7: yz
	}
	nodeMap := map[string]int{
		"origin": 0, "x": 1, "xy": 2, "y": 3,
		"z": 4, "xz": 5, "xyz": 6, "yz": 7,
	}
	return NodeSet{Nodes: nodes, NodeMap: nodeMap}
}

// Flatten returns element types, 0-based connectivity and tags in element
// set order
func (cm *CompleteMesh) Flatten() (types []ElementType, etov [][]int, tags []int) {
	for _, elemSet := range cm.Elements {
		for i, elem := range elemSet.Elements {
			verts := make([]int, len(elem))
			for j, name := range elem {
				verts[j] = cm.Nodes.NodeMap[name]
			}
			types = append(types, elemSet.Type)
			etov = append(etov, verts)
			tags = append(tags, elemSet.Tags[i])
		}
	}
	return
}

// ToMesh builds a Mesh from the test definition
func (cm *CompleteMesh) ToMesh() *Mesh {
	m := NewMesh()
	for i, coords := range cm.Nodes.Nodes {
		m.AddNode(i+1, coords)
	}
	types, etov, tags := cm.Flatten()
	for k := range etov {
		if err := m.AddElement(types[k], tags[k], etov[k]); err != nil {
			panic(err)
		}
	}
	return m
}
