package config

import (
	"os"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every environment variable Load reads, restoring them when the test ends.
func clearEnv(t *testing.T) {
	t.Helper()
	names := []string{"OPENAI_API_KEY", "OPENAI_API_BASE_URL", "MODEL"}
	for key := range defaults {
		names = append(names, EnvPrefix+"_"+strings.ToUpper(key))
	}
	for _, name := range names {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	c, err := Load(LoadOptions{Fs: afero.NewMemMapFs()})
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, c.BaseURL)
	assert.Equal(t, DefaultInitTimeoutSec, c.InitTimeoutSec)
	assert.Equal(t, DefaultToolTimeoutSec, c.ToolTimeoutSec)
	assert.Equal(t, DefaultCompletionTimeoutSec, c.CompletionTimeoutSec)
	assert.False(t, c.StrictArgs)
	assert.False(t, c.TrimUndispatchedCalls)
	assert.Empty(t, c.APIKey)
	assert.Empty(t, c.Model)
	assert.Empty(t, c.AuditDB)
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/etc/mcpchat/config.yaml", `
model: qwen-plus
base_url: https://dashscope.example.com/compatible-mode/v1
tool_timeout_sec: 5
strict_args: true
audit_db: /var/lib/mcpchat/audit.db
provider_env:
  - AMAP_API_KEY=amap-key
  - AREA_CODE_FILE=/data/area_code.csv
provider_headers:
  X-Team: tools
`)

	c, err := Load(LoadOptions{Fs: fs, ConfigFile: "/etc/mcpchat/config.yaml"})
	require.NoError(t, err)

	assert.Equal(t, "qwen-plus", c.Model)
	assert.Equal(t, "https://dashscope.example.com/compatible-mode/v1", c.BaseURL)
	assert.Equal(t, 5, c.ToolTimeoutSec)
	assert.Equal(t, DefaultInitTimeoutSec, c.InitTimeoutSec)
	assert.True(t, c.StrictArgs)
	assert.Equal(t, "/var/lib/mcpchat/audit.db", c.AuditDB)
	assert.Equal(t, []string{"AMAP_API_KEY=amap-key", "AREA_CODE_FILE=/data/area_code.csv"}, c.ProviderEnv)
	assert.Len(t, c.ProviderHeaders, 1)
}

func TestLoadMissingExplicitConfigFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(LoadOptions{Fs: afero.NewMemMapFs(), ConfigFile: "/nope.yaml"})
	assert.Error(t, err)
}

func TestLoadPrecedence(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		flagModel string
		want      string
	}{
		{name: "config file", want: "file-model"},
		{name: "unprefixed env beats file", env: map[string]string{"MODEL": "env-model"}, want: "env-model"},
		{
			name: "prefixed env beats unprefixed env",
			env:  map[string]string{"MODEL": "env-model", "MCPCHAT_MODEL": "prefixed-model"},
			want: "prefixed-model",
		},
		{
			name:      "flag beats env",
			env:       map[string]string{"MODEL": "env-model"},
			flagModel: "flag-model",
			want:      "flag-model",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			fs := afero.NewMemMapFs()
			writeFile(t, fs, "/mcpchat.yaml", "model: file-model\n")

			flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
			flags.String("model", "", "model name")
			flags.Bool("unrelated-flag", false, "not a config key")
			if tt.flagModel != "" {
				require.NoError(t, flags.Set("model", tt.flagModel))
			}

			c, err := Load(LoadOptions{Fs: fs, ConfigFile: "/mcpchat.yaml", Flags: flags})
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Model)
		})
	}
}

func TestLoadFlagWithDashes(t *testing.T) {
	clearEnv(t)
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("base-url", "", "")
	flags.Bool("strict-args", false, "")
	flags.Bool("trim-undispatched-calls", false, "")
	require.NoError(t, flags.Set("base-url", "http://localhost:11434/v1"))
	require.NoError(t, flags.Set("strict-args", "true"))
	require.NoError(t, flags.Set("trim-undispatched-calls", "true"))

	c, err := Load(LoadOptions{Fs: afero.NewMemMapFs(), Flags: flags})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434/v1", c.BaseURL)
	assert.True(t, c.StrictArgs)
	assert.True(t, c.TrimUndispatchedCalls)
}

func TestLoadEnvForOtherKeys(t *testing.T) {
	clearEnv(t)
	t.Setenv("MCPCHAT_TOOL_TIMEOUT_SEC", "7")
	t.Setenv("MCPCHAT_STRICT_ARGS", "true")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	c, err := Load(LoadOptions{Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	assert.Equal(t, 7, c.ToolTimeoutSec)
	assert.True(t, c.StrictArgs)
	assert.Equal(t, "sk-env", c.APIKey)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MODEL", "shell-model")

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/work/.env", "OPENAI_API_KEY=sk-dotenv\nMODEL=dotenv-model\n")

	c, err := Load(LoadOptions{Fs: fs, DotEnvFile: "/work/.env"})
	require.NoError(t, err)
	assert.Equal(t, "sk-dotenv", c.APIKey)
	assert.Equal(t, "shell-model", c.Model, "variables already set are not overridden")
}

func TestLoadMissingDotEnvIsIgnored(t *testing.T) {
	clearEnv(t)
	_, err := Load(LoadOptions{Fs: afero.NewMemMapFs(), DotEnvFile: "/work/.env"})
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Model:                "gpt-4o-mini",
			InitTimeoutSec:       10,
			ToolTimeoutSec:       30,
			CompletionTimeoutSec: 60,
		}
	}

	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{name: "valid", modify: func(c *Config) {}},
		{name: "valid metrics port", modify: func(c *Config) { c.MetricsPort = "9090" }},
		{name: "missing model", modify: func(c *Config) { c.Model = " " }, wantErr: true},
		{name: "zero init timeout", modify: func(c *Config) { c.InitTimeoutSec = 0 }, wantErr: true},
		{name: "negative tool timeout", modify: func(c *Config) { c.ToolTimeoutSec = -1 }, wantErr: true},
		{name: "zero completion timeout", modify: func(c *Config) { c.CompletionTimeoutSec = 0 }, wantErr: true},
		{name: "bad metrics port", modify: func(c *Config) { c.MetricsPort = "http" }, wantErr: true},
		{name: "metrics port out of range", modify: func(c *Config) { c.MetricsPort = "70000" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.modify(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRedactedYAML(t *testing.T) {
	c := &Config{
		APIKey:          "sk-secret",
		Model:           "gpt-4o-mini",
		ProviderToken:   "provider-secret",
		ProviderHeaders: map[string]string{"Authorization": "Basic abc", "X-Team": "tools"},
	}

	out, err := c.YAML()
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, "model: gpt-4o-mini")
	assert.Contains(t, s, redactedValue)
	assert.NotContains(t, s, "sk-secret")
	assert.NotContains(t, s, "provider-secret")
	assert.NotContains(t, s, "Basic abc")
	assert.Contains(t, s, "tools")

	// the original is untouched
	assert.Equal(t, "sk-secret", c.APIKey)
	assert.Equal(t, "Basic abc", c.ProviderHeaders["Authorization"])
}

func TestProviderEnvList(t *testing.T) {
	c := &Config{ProviderEnv: []string{"AMAP_API_KEY=k", "broken", "=novalue", "EMPTY="}}
	assert.Equal(t, []string{"AMAP_API_KEY=k", "EMPTY="}, c.ProviderEnvList())
}

func TestTimeouts(t *testing.T) {
	c := &Config{InitTimeoutSec: 1, ToolTimeoutSec: 2, CompletionTimeoutSec: 3}
	assert.Equal(t, "1s", c.InitTimeout().String())
	assert.Equal(t, "2s", c.ToolTimeout().String())
	assert.Equal(t, "3s", c.CompletionTimeout().String())
}
