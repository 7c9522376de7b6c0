package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".sheetclaw"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("SHEETCLAW_CONFIG")); explicit != "" {
		return expandHome(explicit)
	}
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

func resolveHomeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("SHEETCLAW_HOME")); h != "" {
		return expandHome(h)
	}
	return os.UserHomeDir()
}

func expandHome(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, p[1:]), nil
}

// Load builds the configuration. Priority: env > config file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if loaded := LoadEnvFiles(); len(loaded) > 0 {
		slog.Debug("Loaded env files", "files", loaded)
	}

	path, err := ConfigPath()
	if err == nil {
		data, err := loadResolvedConfig(path)
		if err == nil {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	// Override with environment variables for each group
	for prefix, group := range map[string]any{
		"SHEETCLAW_PATHS":         &cfg.Paths,
		"SHEETCLAW_MODEL":         &cfg.Model,
		"SHEETCLAW_PROVIDER":      &cfg.Provider,
		"SHEETCLAW_GATEWAY":       &cfg.Gateway,
		"SHEETCLAW_CONFIRMATIONS": &cfg.Confirmations,
		"SHEETCLAW_STORE":         &cfg.Store,
		"SHEETCLAW_AUDIT":         &cfg.Audit,
	} {
		if err := envconfig.Process(prefix, group); err != nil {
			return nil, fmt.Errorf("env %s: %w", prefix, err)
		}
	}
	if lvl := os.Getenv("SHEETCLAW_LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = lvl
	}

	applyProviderFallbacks(&cfg.Provider)
	return normalize(cfg)
}

// applyProviderFallbacks reads the conventional Azure and OpenAI variables
// when the provider group leaves them unset.
func applyProviderFallbacks(p *ProviderConfig) {
	azureKey := os.Getenv("AZURE_OPENAI_API_KEY")
	azureEndpoint := os.Getenv("AZURE_OPENAI_ENDPOINT")
	if p.APIKey == "" && azureKey != "" && azureEndpoint != "" {
		p.Kind = ProviderAzure
		p.APIKey = azureKey
		if p.APIBase == "" {
			p.APIBase = azureEndpoint
		}
	}
	if p.Kind == ProviderAzure {
		if v := os.Getenv("AZURE_OPENAI_API_VERSION"); v != "" {
			p.APIVersion = v
		}
		if v := os.Getenv("AZURE_OPENAI_DEPLOYMENT"); v != "" && p.Deployment == "" {
			p.Deployment = v
		}
	}
	if p.APIKey == "" {
		p.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

func normalize(cfg *Config) (*Config, error) {
	var err error
	for _, p := range []*string{&cfg.Paths.DataDir, &cfg.Paths.Workbook, &cfg.Paths.Database} {
		if *p, err = expandHome(*p); err != nil {
			return nil, err
		}
	}

	cfg.Provider.Kind = strings.ToLower(strings.TrimSpace(cfg.Provider.Kind))
	switch cfg.Provider.Kind {
	case "":
		cfg.Provider.Kind = ProviderOpenAI
	case ProviderOpenAI, ProviderAzure:
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Provider.Kind)
	}
	if cfg.Provider.Kind == ProviderAzure && cfg.Provider.Deployment == "" {
		cfg.Provider.Deployment = cfg.Model.Name
	}

	if cfg.Model.MaxSteps <= 0 {
		cfg.Model.MaxSteps = 5
	}
	if cfg.Confirmations.TTLSeconds <= 0 {
		cfg.Confirmations.TTLSeconds = DefaultConfig().Confirmations.TTLSeconds
	}
	switch cfg.Store.Driver {
	case "", "sqlite":
		cfg.Store.Driver = "sqlite"
	case "sqlite3":
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	return cfg, nil
}

// Save writes cfg as JSON to ConfigPath.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureDir ensures a directory exists with proper permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// loadResolvedConfig reads path (JSON or YAML), follows $include entries and
// substitutes ${VAR} references, returning the merged object as JSON.
func loadResolvedConfig(path string) ([]byte, error) {
	obj, err := loadConfigObject(path, map[string]struct{}{})
	if err != nil {
		return nil, err
	}
	return json.Marshal(obj)
}

func loadConfigObject(path string, visited map[string]struct{}) (map[string]any, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, seen := visited[absPath]; seen {
		return nil, fmt.Errorf("config include cycle detected at %s", absPath)
	}
	visited[absPath] = struct{}{}
	defer delete(visited, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	raw, err := decodeObject(absPath, data)
	if err != nil {
		return nil, err
	}

	merged := map[string]any{}
	if includeRaw, ok := raw["$include"]; ok {
		includes, err := parseIncludes(includeRaw)
		if err != nil {
			return nil, err
		}
		for _, inc := range includes {
			if !filepath.IsAbs(inc) {
				inc = filepath.Join(filepath.Dir(absPath), inc)
			}
			child, err := loadConfigObject(inc, visited)
			if err != nil {
				return nil, err
			}
			deepMerge(merged, child)
		}
	}
	delete(raw, "$include")
	substituteEnvValues(raw)
	deepMerge(merged, raw)
	return merged, nil
}

// decodeObject parses JSON, or YAML for .yaml/.yml files.
func decodeObject(path string, data []byte) (map[string]any, error) {
	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse yaml %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse json %s: %w", path, err)
		}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func parseIncludes(v any) ([]string, error) {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("$include entries must be strings")
			}
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("$include must be a string or array of strings")
}

func deepMerge(dst, src map[string]any) {
	for key, val := range src {
		srcMap, ok := val.(map[string]any)
		if !ok {
			dst[key] = val
			continue
		}
		dstMap, ok := dst[key].(map[string]any)
		if !ok {
			dstMap = map[string]any{}
			dst[key] = dstMap
		}
		deepMerge(dstMap, srcMap)
	}
}

func substituteEnvValues(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = substituteEnvValues(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = substituteEnvValues(item)
		}
		return t
	case string:
		return envPattern.ReplaceAllStringFunc(t, func(match string) string {
			name := envPattern.FindStringSubmatch(match)[1]
			if value, ok := os.LookupEnv(name); ok {
				return value
			}
			return match
		})
	}
	return v
}
