package hostenv

import (
	"bufio"
	"os"
	"strings"
)

// DefaultPrefixes are the key prefixes kept by the allowlist when no
// allowlist file is present, or when it contains the "!defaults"
// sentinel (spec.md §6).
var DefaultPrefixes = []string{"CI_", "GITHUB_", "BUILD_", "CIRCLE_", "TRAVIS_", "BITBUCKET_", "KANNICH_"}

// ReadDump parses a \0-separated "KEY=VALUE" dump file at path and
// deletes it. A missing file is not an error — it yields an empty map,
// since not every invocation runs under a host wrapper that produces
// one.
func ReadDump(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	entries := make(map[string]string)
	for _, entry := range strings.Split(string(data), "\x00") {
		if entry == "" {
			continue
		}
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		entries[k] = v
	}
	return entries, nil
}

// LoadAllowlist reads one prefix per line from path. A missing file
// yields DefaultPrefixes. The sentinel line "!defaults" expands to
// DefaultPrefixes in place, so a custom allowlist can extend rather
// than replace the defaults.
func LoadAllowlist(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return DefaultPrefixes, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var prefixes []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "!defaults" {
			prefixes = append(prefixes, DefaultPrefixes...)
			continue
		}
		prefixes = append(prefixes, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return prefixes, nil
}

// Filter keeps only the entries whose key starts with one of prefixes.
func Filter(entries map[string]string, prefixes []string) map[string]string {
	out := make(map[string]string, len(entries))
	for k, v := range entries {
		for _, p := range prefixes {
			if strings.HasPrefix(k, p) {
				out[k] = v
				break
			}
		}
	}
	return out
}
