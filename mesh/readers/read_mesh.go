package readers

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/notargets/vtu2gmsh/mesh"
)

// DefaultTagName is the cell data array carrying the physical group of each cell
const DefaultTagName = "ObjectId"

// LoadError reports an input mesh that is missing, unreadable or not valid
// mesh data
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("unable to load mesh %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ReadMeshFile reads a mesh file based on extension. Cell tags of VTU files
// are taken from the cell data array named tagName. Any failure is returned
// as a *LoadError.
func ReadMeshFile(fs afero.Fs, filename, tagName string) (*mesh.Mesh, error) {
	var (
		msh *mesh.Mesh
		err error
	)
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".vtu":
		msh, err = ReadVTU(fs, filename, tagName)
	case ".msh":
		msh, err = ReadGmsh22(fs, filename)
	default:
		err = fmt.Errorf("unsupported mesh format: %q", ext)
	}
	if err != nil {
		return nil, &LoadError{Path: filename, Err: err}
	}
	return msh, nil
}
