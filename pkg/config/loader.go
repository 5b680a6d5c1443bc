package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadConfig 按层合并配置: <dir>/base.yaml, <dir>/<env>.yaml, ${VAR} 占位符
// (secrets.env 优先，其次进程环境), 最后是 envPaths 中的系统环境变量。
// 只有 base.yaml 是必需的。
func LoadConfig(env string, configDir string) (map[string]any, error) {
	if configDir == "" {
		configDir = "config"
	}

	merged, err := readYAML(filepath.Join(configDir, "base.yaml"))
	if err != nil {
		return nil, fmt.Errorf("load base.yaml: %w", err)
	}

	if env != "" && env != "base" {
		layer, err := readYAML(filepath.Join(configDir, env+".yaml"))
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("load %s.yaml: %w", env, err)
		default:
			merged = deepMerge(merged, layer)
		}
	}

	secrets, err := readEnvFile(filepath.Join(configDir, "secrets.env"))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load secrets.env: %w", err)
	}
	expandPlaceholders(merged, func(key string) string {
		if v, ok := secrets[key]; ok {
			return v
		}
		return os.Getenv(key)
	})

	for key, path := range envPaths {
		if v := os.Getenv(key); v != "" {
			setPath(merged, path, v)
		}
	}
	return merged, nil
}

func readYAML(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// readEnvFile parses KEY=value lines. Blank lines, comments and an optional
// "export " prefix are accepted; one level of matching quotes is removed.
func readEnvFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	out := map[string]string{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if n := len(value); n >= 2 && (value[0] == '"' || value[0] == '\'') && value[n-1] == value[0] {
			value = value[1 : n-1]
		}
		out[strings.TrimSpace(key)] = value
	}
	return out, sc.Err()
}

// deepMerge returns base overlaid with top. Nested maps merge key by key;
// any other value in top replaces the one in base.
func deepMerge(base, top map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(top))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range top {
		bm, bok := out[k].(map[string]any)
		tm, tok := v.(map[string]any)
		if bok && tok {
			out[k] = deepMerge(bm, tm)
			continue
		}
		out[k] = v
	}
	return out
}

// expandPlaceholders rewrites ${VAR} in string values in place. Unknown
// variables are left as written so a missing secret is visible in the value.
func expandPlaceholders(m map[string]any, lookup func(string) string) {
	for k, v := range m {
		switch val := v.(type) {
		case string:
			if strings.Contains(val, "${") {
				m[k] = os.Expand(val, func(name string) string {
					if r := lookup(name); r != "" {
						return r
					}
					return "${" + name + "}"
				})
			}
		case map[string]any:
			expandPlaceholders(val, lookup)
		}
	}
}

// envPaths maps string-valued settings to environment variables. Numeric
// settings (ports, db index) are applied later by the typed Override*FromEnv.
var envPaths = map[string][]string{
	"DB_HOST":         {"db", "host"},
	"DB_USER":         {"db", "user"},
	"DB_PASSWORD":     {"db", "password"},
	"DB_NAME":         {"db", "name"},
	"MQ_URL":          {"mq", "url"},
	"REDIS_ADDR":      {"redis", "addr"},
	"REDIS_PASSWORD":  {"redis", "password"},
	"SERVER_PORT":     {"server", "port"},
	"MAILGUN_DOMAIN":  {"mailgun", "domain"},
	"MAILGUN_API_KEY": {"mailgun", "api_key"},
	"MAILGUN_FROM":    {"mailgun", "from"},
	"REPLY_DOMAIN":    {"reply_domain"},
}

func setPath(m map[string]any, path []string, value string) {
	for _, k := range path[:len(path)-1] {
		next, ok := m[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[k] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}

// GetEnv 获取环境变量，如果未设置则返回默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
