package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// EnvFileCandidates lists the env files consulted by LoadEnvFiles, most
// specific first.
func EnvFileCandidates() []string {
	var out []string
	if explicit := strings.TrimSpace(os.Getenv("SHEETCLAW_ENV_FILE")); explicit != "" {
		out = append(out, explicit)
	}
	if home, err := os.UserHomeDir(); err == nil {
		out = append(out,
			filepath.Join(home, ".config", "sheetclaw", "env"),
			filepath.Join(home, ConfigDir, "env"),
			filepath.Join(home, ConfigDir, ".env"),
		)
	}
	return out
}

// LoadEnvFiles applies every readable candidate and returns the files that
// were loaded. Variables already set in the process environment win, so the
// first file to define a key takes precedence over later ones.
func LoadEnvFiles() []string {
	var loaded []string
	seen := map[string]bool{}
	for _, p := range EnvFileCandidates() {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		if applyEnvFile(p) == nil {
			loaded = append(loaded, p)
		}
	}
	return loaded
}

func applyEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, val, ok := parseEnvLine(sc.Text())
		if !ok {
			continue
		}
		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, val)
		}
	}
	return sc.Err()
}

// parseEnvLine accepts KEY=VALUE with an optional "export " prefix and
// optional matching quotes around VALUE.
func parseEnvLine(line string) (key, val string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
	key, val, found := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" {
		return "", "", false
	}
	val = strings.TrimSpace(val)
	if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
		val = val[1 : len(val)-1]
	}
	return key, val, true
}
