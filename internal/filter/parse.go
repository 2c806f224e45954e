package filter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadFile reads rules from the file at path. See Load for the format.
func (c *Chain) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open filter file: %w", err)
	}
	defer f.Close()
	return c.Load(f, path)
}

// Load reads one rule per line from r:
//
//	- pattern   exclude
//	+ pattern   include
//	pattern     exclude
//	# comment   ignored
//
// Blank lines are ignored. name is only used in error messages.
func (c *Chain) Load(r io.Reader, name string) error {
	sc := bufio.NewScanner(r)
	for lineNum := 1; sc.Scan(); lineNum++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}

		var err error
		switch {
		case strings.HasPrefix(line, "+ "):
			err = c.AddInclude(strings.TrimSpace(line[2:]))
		case strings.HasPrefix(line, "- "):
			err = c.AddExclude(strings.TrimSpace(line[2:]))
		default:
			err = c.AddExclude(line)
		}
		if err != nil {
			return fmt.Errorf("filter file %s line %d: %w", name, lineNum, err)
		}
	}
	return sc.Err()
}
