package layer

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// Merge folds entries — a diff previously collected from some other
// layer's upper directory at srcUpperDir — onto destID's own upper
// directory, in the order given. When two entries touch the same path
// across repeated calls, the most recent call's entry wins, mirroring
// overlayfs's own upper-shadows-lower rule (spec.md §4.4 — this is how
// sibling parallel-branch diffs are reconciled back onto a shared
// base, in declared child order).
func (m *Manager) Merge(ctx context.Context, destID, srcUpperDir string, entries []DiffEntry) error {
	m.mu.Lock()
	dest, ok := m.layers[destID]
	m.mu.Unlock()
	if !ok {
		return &LayerError{LayerID: destID, Op: "merge", Err: fmt.Errorf("unknown layer")}
	}
	if len(entries) == 0 {
		return nil
	}

	var lines []string
	for _, e := range entries {
		src := path.Join(srcUpperDir, e.Path)
		dst := path.Join(dest.Upper, e.Path)
		dstParent := path.Dir(dst)

		switch e.Kind {
		case DiffAdded, DiffModified:
			lines = append(lines, fmt.Sprintf("mkdir -p %s && cp -a %s %s", shq(dstParent), shq(src), shq(dst)))
		case DiffOpaqueDir:
			lines = append(lines, fmt.Sprintf(
				"rm -rf %s && mkdir -p %s && setfattr -n trusted.overlay.opaque -v y %s && cp -a %s/. %s/",
				shq(dst), shq(dst), shq(dst), shq(src), shq(dst)))
		case DiffDeletedWhiteout:
			lines = append(lines, fmt.Sprintf("rm -rf %s && mkdir -p %s && mknod %s c 0 0", shq(dst), shq(dstParent), shq(dst)))
		}
	}

	if _, err := m.run(ctx, strings.Join(lines, "\n")); err != nil {
		return &LayerError{LayerID: destID, Op: "merge", Err: err}
	}
	return nil
}
