package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// glob is an rsync-style pattern. A leading or inner '/' anchors it to the
// traversal root, a trailing '/' restricts it to directories, '*' and '?'
// stop at '/', and '**' crosses directory boundaries.
type glob struct {
	re       *regexp.Regexp
	source   string
	anchored bool
	dirOnly  bool
}

func compileGlob(pattern string) (*glob, error) {
	if pattern == "" || pattern == "/" {
		return nil, fmt.Errorf("empty pattern")
	}

	g := &glob{source: pattern}
	body := pattern
	if trimmed, ok := strings.CutSuffix(body, "/"); ok {
		g.dirOnly = true
		body = trimmed
	}
	if trimmed, ok := strings.CutPrefix(body, "/"); ok {
		g.anchored = true
		body = trimmed
	} else {
		g.anchored = strings.Contains(body, "/")
	}

	prefix := "(^|/)"
	if g.anchored {
		prefix = "^"
	}
	re, err := regexp.Compile(prefix + translateGlob(body) + "$")
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", pattern, err)
	}
	g.re = re
	return g, nil
}

func (g *glob) match(rel string, isDir bool) bool {
	if g.dirOnly && !isDir {
		return false
	}
	return g.re.MatchString(rel)
}

func (g *glob) String() string { return g.source }

// translateGlob rewrites glob syntax as a regular expression body.
func translateGlob(p string) string {
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		switch c := p[i]; c {
		case '*':
			if !strings.HasPrefix(p[i:], "**") {
				b.WriteString("[^/]*")
				continue
			}
			if strings.HasPrefix(p[i:], "**/") {
				b.WriteString("(.*/)?")
				i += 2
			} else {
				b.WriteString(".*")
				i++
			}
		case '?':
			b.WriteString("[^/]")
		case '[':
			class, n := bracketClass(p[i:])
			if n == 0 {
				b.WriteString(`\[`)
				continue
			}
			b.WriteString(class)
			i += n - 1
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}

// bracketClass converts the character class at the start of p, returning
// the regexp class and the number of pattern bytes consumed, or 0 when the
// class is not terminated.
func bracketClass(p string) (string, int) {
	j := 1
	if j < len(p) && p[j] == '!' {
		j++
	}
	if j < len(p) && p[j] == ']' {
		j++
	}
	end := strings.IndexByte(p[j:], ']')
	if end < 0 {
		return "", 0
	}
	end += j

	inner := p[1:end]
	if rest, ok := strings.CutPrefix(inner, "!"); ok {
		inner = "^" + rest
	}
	return "[" + inner + "]", end + 1
}
