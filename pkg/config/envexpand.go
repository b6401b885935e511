package config

import (
	"os"
	"strings"
)

// ExpandEnv substitutes ${VAR} references in raw config bytes with values
// from the process environment. Only the braced form with a conventional
// variable name is recognized; everything else passes through untouched, so
// a bare $ in a password or regex pattern survives, as does a reference to
// an unset variable (validation catches required fields left empty).
func ExpandEnv(data []byte) []byte {
	s := string(data)
	if !strings.Contains(s, "${") {
		return data
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			sb.WriteString(s)
			break
		}
		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			sb.WriteString(s)
			break
		}
		sb.WriteString(s[:start])
		name := s[start+2 : start+end]
		if value, ok := lookupEnvVar(name); ok {
			sb.WriteString(value)
		} else {
			sb.WriteString(s[start : start+end+1])
		}
		s = s[start+end+1:]
	}
	return []byte(sb.String())
}

// lookupEnvVar resolves a ${...} body. Bodies that are not plain variable
// names (shell arrays, empty braces) are left for the caller to keep literal.
func lookupEnvVar(name string) (string, bool) {
	if !validEnvName(name) {
		return "", false
	}
	return os.LookupEnv(name)
}

func validEnvName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
