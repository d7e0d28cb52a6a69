package config

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// EnvEntry is one KEY=value assignment read from an env file.
type EnvEntry struct {
	Key   string
	Value string
	Line  int
}

// ParseEnv reads KEY=value lines. Blank lines and lines starting with # are
// ignored, an "export " prefix is accepted, and values may be single or
// double quoted. Unquoted values end at " #". All malformed lines are
// reported together in a *ConfigError; source names the input in messages.
func ParseEnv(r io.Reader, source string) ([]EnvEntry, error) {
	var (
		entries []EnvEntry
		cerr    ConfigError
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, raw, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok {
			cerr.Add(Problem{Kind: ProblemParse, Source: source, LineNumber: lineNo, Message: "expected KEY=value"})
			continue
		}
		if !validKey(key) {
			cerr.Add(Problem{Kind: ProblemParse, Source: source, LineNumber: lineNo, Message: fmt.Sprintf("invalid key %q", key)})
			continue
		}
		value, err := parseEnvValue(strings.TrimSpace(raw))
		if err != nil {
			cerr.Add(Problem{Key: key, Kind: ProblemParse, Source: source, LineNumber: lineNo, Message: err.Error()})
			continue
		}
		entries = append(entries, EnvEntry{Key: key, Value: value, Line: lineNo})
	}
	if err := scanner.Err(); err != nil {
		cerr.Add(Problem{Kind: ProblemIO, Source: source, Message: err.Error()})
	}
	return entries, cerr.orNil()
}

func parseEnvValue(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	switch raw[0] {
	case '\'':
		end := strings.IndexByte(raw[1:], '\'')
		if end < 0 {
			return "", fmt.Errorf("unterminated single quote")
		}
		if rest := strings.TrimSpace(raw[end+2:]); rest != "" && !strings.HasPrefix(rest, "#") {
			return "", fmt.Errorf("unexpected text after closing quote")
		}
		return raw[1 : end+1], nil
	case '"':
		var b strings.Builder
		for i := 1; i < len(raw); i++ {
			c := raw[i]
			switch {
			case c == '\\' && i+1 < len(raw):
				i++
				switch raw[i] {
				case 'n':
					b.WriteByte('\n')
				case 't':
					b.WriteByte('\t')
				default:
					b.WriteByte(raw[i])
				}
			case c == '"':
				if rest := strings.TrimSpace(raw[i+1:]); rest != "" && !strings.HasPrefix(rest, "#") {
					return "", fmt.Errorf("unexpected text after closing quote")
				}
				return b.String(), nil
			default:
				b.WriteByte(c)
			}
		}
		return "", fmt.Errorf("unterminated double quote")
	}
	if i := strings.Index(raw, " #"); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw), nil
}

// quoteEnvValue renders v so that ParseEnv reads it back unchanged.
func quoteEnvValue(v string) string {
	if v == "" {
		return ""
	}
	if !strings.ContainsAny(v, " \t#'\"\\\n") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\t", `\t`)
	return `"` + r.Replace(v) + `"`
}
