// Package dotenv fills the process environment from KEY=VALUE files before
// configuration is read. Variables already set always win.
package dotenv

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Load reads each file in order and returns the paths that existed. Missing
// files are skipped; earlier files win over later ones for the same key.
func Load(paths ...string) (loaded []string, err error) {
	for _, path := range paths {
		ok, err := LoadFile(path)
		if err != nil {
			return loaded, err
		}
		if ok {
			loaded = append(loaded, path)
		}
	}
	return loaded, nil
}

// LoadFile applies one file and reports whether it existed.
func LoadFile(path string) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("open env file %q: %w", path, err)
	}
	defer file.Close()

	pairs, err := Parse(file)
	if err != nil {
		return true, fmt.Errorf("parse env file %q: %w", path, err)
	}
	for _, kv := range pairs {
		if _, exists := os.LookupEnv(kv[0]); exists {
			continue
		}
		if err := os.Setenv(kv[0], kv[1]); err != nil {
			return true, fmt.Errorf("set env %q from %q: %w", kv[0], path, err)
		}
	}
	return true, nil
}

// Parse returns the key/value pairs of a dotenv document in file order.
// Unquoted and double-quoted values expand ${VAR} and $VAR against the
// environment and earlier keys; single-quoted values are literal.
func Parse(r io.Reader) ([][2]string, error) {
	var pairs [][2]string
	seen := make(map[string]string)
	lookup := func(name string) string {
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return seen[name]
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		line = strings.TrimPrefix(line, "export ")
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		if key == "" {
			continue
		}

		val := strings.TrimSpace(line[idx+1:])
		switch {
		case len(val) >= 2 && val[0] == '\'' && val[len(val)-1] == '\'':
			val = val[1 : len(val)-1]
		case len(val) >= 2 && val[0] == '"' && val[len(val)-1] == '"':
			val = os.Expand(val[1:len(val)-1], lookup)
		default:
			if i := strings.Index(val, " #"); i >= 0 {
				val = strings.TrimSpace(val[:i])
			}
			val = os.Expand(val, lookup)
		}

		seen[key] = val
		pairs = append(pairs, [2]string{key, val})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return pairs, nil
}
