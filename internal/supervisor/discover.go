package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BinaryNames are the file names tried in every candidate directory
var BinaryNames = []string{"cotune-daemon", "cotune-daemon.so"}

// FindBinary locates the daemon binary. explicit is checked first as a file, then as a
// directory; the remaining dirs are searched in order. Empty entries are skipped.
// Only non-empty regular files qualify.
func FindBinary(explicit string, dirs ...string) (string, error) {
	var searched []string

	if explicit != "" {
		if usable(explicit) {
			return explicit, nil
		}
		searched = append(searched, explicit)
		if fi, err := os.Stat(explicit); err == nil && fi.IsDir() {
			dirs = append([]string{explicit}, dirs...)
		}
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		for _, name := range BinaryNames {
			candidate := filepath.Join(dir, name)
			if usable(candidate) {
				return candidate, nil
			}
			searched = append(searched, candidate)
		}
	}

	return "", fmt.Errorf("%w (searched: %s)", ErrNoBinary, strings.Join(searched, ", "))
}

func usable(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular() && fi.Size() > 0
}
