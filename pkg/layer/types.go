package layer

import "path"

// Layer is one overlay mount in a job's ancestry chain. Every path is
// inside the build container, not the host, so they are always
// forward-slash POSIX paths regardless of the host running kannich.
type Layer struct {
	ID       string
	ParentID string

	RootDir string // <rootDir>/<ID>
	Upper   string
	Work    string
	Merged  string
}

func newLayer(rootDir, id, parentID string) *Layer {
	base := path.Join(rootDir, id)
	return &Layer{
		ID:       id,
		ParentID: parentID,
		RootDir:  base,
		Upper:    path.Join(base, "upper"),
		Work:     path.Join(base, "work"),
		Merged:   path.Join(base, "merged"),
	}
}

// DiffKind classifies one entry found in a layer's upper directory.
type DiffKind int

const (
	DiffAdded DiffKind = iota
	DiffModified
	DiffDeletedWhiteout
	DiffOpaqueDir
)

func (k DiffKind) String() string {
	switch k {
	case DiffAdded:
		return "added"
	case DiffModified:
		return "modified"
	case DiffDeletedWhiteout:
		return "deleted"
	case DiffOpaqueDir:
		return "opaque"
	default:
		return "unknown"
	}
}

// DiffEntry is one path changed within a layer relative to its parent.
type DiffEntry struct {
	Path string
	Kind DiffKind
}
