package u

import (
	"fmt"
	"os"
	"strings"
)

// NormalizeNewlines changes CRLF (Windows) and
// CR (Mac) to LF (Unix)
func NormalizeNewlines(d []byte) []byte {
	res := make([]byte, 0, len(d))
	n := len(d)
	for i := 0; i < n; i++ {
		c := d[i]
		// 13 is CR
		if c != 13 {
			res = append(res, c)
			continue
		}
		res = append(res, 10)
		if i < n-1 && d[i+1] == 10 {
			// this was CRLF, so skip the LF
			i++
		}
	}
	return res
}

func ExpandTildeInPath(s string) string {
	if s == "~" || strings.HasPrefix(s, "~/") {
		dir, err := os.UserHomeDir()
		if err != nil {
			return s
		}
		return dir + s[1:]
	}
	return s
}

// ParseEnv parses .env format: KEY=value lines, # starts a comment line.
// Values can be quoted with " or '
func ParseEnv(d []byte) (map[string]string, error) {
	lines := strings.Split(string(NormalizeNewlines(d)), "\n")
	m := make(map[string]string)
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, val, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid line %d '%s' in .env", i+1, line)
		}
		val = strings.TrimSpace(val)
		if len(val) >= 2 {
			if c := val[0]; (c == '"' || c == '\'') && val[len(val)-1] == c {
				val = val[1 : len(val)-1]
			}
		}
		m[key] = val
	}
	return m, nil
}

// ParseEnvFile is ParseEnv on the content of a file
func ParseEnvFile(path string) (map[string]string, error) {
	d, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseEnv(d)
}
