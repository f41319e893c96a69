// Package converter turns a VTK XML unstructured grid into a Gmsh 2.2 ASCII
// mesh file.
package converter

import (
	"fmt"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/notargets/vtu2gmsh/mesh"
	"github.com/notargets/vtu2gmsh/mesh/readers"
	"github.com/notargets/vtu2gmsh/mesh/writers"
)

const (
	DefaultInput  = "C0001.vtu"
	DefaultOutput = "C0001.msh"
)

// Converter holds the settings of a conversion; it keeps no state between
// calls to Convert
type Converter struct {
	fs      afero.Fs
	logger  *zap.Logger
	tagName string
	policy  writers.ShapePolicy
	verify  bool
}

// Option configures a Converter
type Option func(*Converter)

// WithFs sets the filesystem used for reading and writing
func WithFs(fs afero.Fs) Option {
	return func(c *Converter) { c.fs = fs }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Converter) { c.logger = logger }
}

// WithTagName sets the cell data array read as the element tag
func WithTagName(name string) Option {
	return func(c *Converter) { c.tagName = name }
}

// WithShapePolicy sets the handling of cells that are neither triangles nor
// tetrahedra by point count
func WithShapePolicy(p writers.ShapePolicy) Option {
	return func(c *Converter) { c.policy = p }
}

// WithVerify reads the written file back and checks it against the source
func WithVerify(verify bool) Option {
	return func(c *Converter) { c.verify = verify }
}

// New creates a Converter on the OS filesystem that reads ObjectId tags and
// skips malformed cells
func New(opts ...Option) *Converter {
	c := &Converter{
		fs:      afero.NewOsFs(),
		logger:  zap.NewNop(),
		tagName: readers.DefaultTagName,
		policy:  writers.SkipMalformed,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result describes a completed conversion
type Result struct {
	NumNodes    int
	NumElements int   // Element lines written
	NumCells    int   // Cells in the source mesh
	Skipped     []int // 0-based source indices of cells not written
}

// Convert reads inputPath and writes the Gmsh 2.2 file outputPath. Errors are
// *readers.LoadError, *writers.UnsupportedCellTypeError,
// *writers.MalformedCellShapeError or *writers.WriteError; on any of them
// outputPath is not created or modified.
func (c *Converter) Convert(inputPath, outputPath string) (*Result, error) {
	log := c.logger.With(zap.String("input", inputPath), zap.String("output", outputPath))

	msh, err := c.Load(inputPath)
	if err != nil {
		return nil, err
	}
	log.Debug("mesh loaded",
		zap.Int("points", msh.NumVertices),
		zap.Int("cells", msh.NumElements))

	w := writers.NewGmsh22Writer(c.policy, log)
	skipped, err := w.WriteFile(c.fs, outputPath, msh)
	if err != nil {
		return nil, err
	}

	res := &Result{
		NumNodes:    msh.NumVertices,
		NumElements: msh.NumElements - len(skipped),
		NumCells:    msh.NumElements,
		Skipped:     skipped,
	}

	if c.verify {
		if err := c.Verify(msh, outputPath, skipped); err != nil {
			return nil, err
		}
		log.Debug("output verified")
	}

	log.Info("mesh converted",
		zap.Int("nodes", res.NumNodes),
		zap.Int("elements", res.NumElements),
		zap.Int("skipped", len(res.Skipped)))
	return res, nil
}

// Load reads the source mesh
func (c *Converter) Load(inputPath string) (*mesh.Mesh, error) {
	return readers.ReadMeshFile(c.fs, inputPath, c.tagName)
}

// Verify reads outputPath back and checks it holds every source point and
// every source cell not listed in skipped, with matching tags and vertices
func (c *Converter) Verify(src *mesh.Mesh, outputPath string, skipped []int) error {
	out, err := readers.ReadGmsh22(c.fs, outputPath)
	if err != nil {
		return fmt.Errorf("verify %s: %w", outputPath, err)
	}
	if out.NumVertices != src.NumVertices {
		return fmt.Errorf("verify %s: %d nodes written, source has %d",
			outputPath, out.NumVertices, src.NumVertices)
	}
	if want := src.NumElements - len(skipped); out.NumElements != want {
		return fmt.Errorf("verify %s: %d elements written, expected %d",
			outputPath, out.NumElements, want)
	}

	skip := make(map[int]bool, len(skipped))
	for _, k := range skipped {
		skip[k] = true
	}
	var j int
	for k := 0; k < src.NumElements; k++ {
		if skip[k] {
			continue
		}
		if out.ElementTypes[j] != src.ElementTypes[k] || out.ElementTags[j] != src.ElementTags[k] {
			return fmt.Errorf("verify %s: element %d is %s tagged %d, source cell is %s tagged %d",
				outputPath, k+1, out.ElementTypes[j], out.ElementTags[j],
				src.ElementTypes[k], src.ElementTags[k])
		}
		for i, v := range src.EtoV[k] {
			if out.EtoV[j][i] != v {
				return fmt.Errorf("verify %s: element %d vertices %v, source cell has %v",
					outputPath, k+1, out.EtoV[j], src.EtoV[k])
			}
		}
		j++
	}
	return nil
}

// Convert runs a conversion with default settings
func Convert(inputPath, outputPath string, opts ...Option) (*Result, error) {
	return New(opts...).Convert(inputPath, outputPath)
}
