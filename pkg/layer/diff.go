package layer

import (
	"bufio"
	"strings"
)

// diffScript returns a shell script that walks upperDir and emits one
// tab-separated "KIND\tpath" line per entry: FILE/DIR for ordinary
// additions and modifications, WHITEOUT for either on-disk whiteout
// form fuse-overlayfs writes — a character device with major:minor
// 0:0, or a zero-byte regular file carrying the extended attribute
// trusted.overlay.whiteout — and OPAQUE for a directory carrying the
// trusted.overlay.opaque xattr (spec.md §4.3).
func diffScript(upperDir string) string {
	return `cd ` + shq(upperDir) + ` && find . -mindepth 1 -type c -exec sh -c '
  maj=$(stat -c %t "$1" 2>/dev/null); min=$(stat -c %T "$1" 2>/dev/null)
  if [ "$maj" = "0" ] && [ "$min" = "0" ]; then
    printf "WHITEOUT\t%s\n" "$1"
  else
    printf "FILE\t%s\n" "$1"
  fi
' _ {} \;
cd ` + shq(upperDir) + ` && find . -mindepth 1 -type f -empty -exec sh -c '
  getfattr -n trusted.overlay.whiteout --absolute-names "$1" >/dev/null 2>&1 && printf "WHITEOUT\t%s\n" "$1"
' _ {} \;
cd ` + shq(upperDir) + ` && find . -mindepth 1 -type d -printf 'DIR\t%P\n'
cd ` + shq(upperDir) + ` && find . -mindepth 1 -not -type d -not -type c -printf 'FILE\t%P\n'
cd ` + shq(upperDir) + ` && find . -mindepth 1 -type d -exec sh -c '
  v=$(getfattr -n trusted.overlay.opaque --only-values --absolute-names "$1" 2>/dev/null)
  [ "$v" = "y" ] && printf "OPAQUE\t%s\n" "$1"
' _ {} \;`
}

// parseDiffOutput turns diffScript's tab-separated output into
// DiffEntry values. Paths are normalized to drop the "./" find prefix.
//
// diffScript's passes run in sequence (char-device whiteouts, xattr
// whiteouts, dirs, files, then opaque dirs), so a whiteout's path can
// also surface from the blanket FILE pass (a zero-byte regular file is
// still a regular file) and an opaque directory surfaces as both a DIR
// and an OPAQUE line. WHITEOUT always wins over FILE, and OPAQUE always
// wins over DIR, for the same path, regardless of which line arrived
// first.
func parseDiffOutput(output string) []DiffEntry {
	order := make([]string, 0)
	byPath := make(map[string]DiffEntry)
	var whiteouts []DiffEntry
	isWhiteout := make(map[string]bool)

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		tab := strings.IndexByte(line, '\t')
		if tab < 0 {
			continue
		}
		kind, p := line[:tab], normalizeFindPath(line[tab+1:])
		if p == "" {
			continue
		}

		switch kind {
		case "WHITEOUT":
			if isWhiteout[p] {
				continue
			}
			isWhiteout[p] = true
			whiteouts = append(whiteouts, DiffEntry{Path: p, Kind: DiffDeletedWhiteout})
			delete(byPath, p)
		case "OPAQUE":
			byPath[p] = DiffEntry{Path: p, Kind: DiffOpaqueDir}
		case "DIR":
			if _, exists := byPath[p]; !exists {
				order = append(order, p)
			}
			if e, exists := byPath[p]; !exists || e.Kind != DiffOpaqueDir {
				byPath[p] = DiffEntry{Path: p, Kind: DiffModified}
			}
		case "FILE":
			if isWhiteout[p] {
				continue
			}
			if _, exists := byPath[p]; !exists {
				order = append(order, p)
			}
			byPath[p] = DiffEntry{Path: p, Kind: DiffAdded}
		}
	}

	entries := make([]DiffEntry, 0, len(whiteouts)+len(order))
	entries = append(entries, whiteouts...)
	for _, p := range order {
		if e, ok := byPath[p]; ok {
			entries = append(entries, e)
		}
	}
	return entries
}

func normalizeFindPath(p string) string {
	p = strings.TrimPrefix(p, "./")
	return p
}
