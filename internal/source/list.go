package source

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ReadList returns the references listed in the file at path, one per line.
// Blank lines and lines starting with '#' are skipped.
func ReadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("source: read %s: %w", path, err)
	}
	return out, nil
}
