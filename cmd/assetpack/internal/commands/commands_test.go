package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/assetpack/internal/buildconfig"
	"github.com/wolfeidau/assetpack/internal/proxy"
	"gopkg.in/yaml.v3"
)

func writeProxyTable(t *testing.T, root string) string {
	t.Helper()
	path := filepath.Join(root, "serverProxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("/api: http://127.0.0.1:8080\n"), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name      string
		mode      buildconfig.Mode
		withTable bool
		wantRules int
		wantPath  bool
	}{
		{name: "development with table", mode: buildconfig.Development, withTable: true, wantRules: 1, wantPath: true},
		{name: "development without table", mode: buildconfig.Development},
		{name: "production ignores table", mode: buildconfig.Production, withTable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			if tt.withTable {
				writeProxyTable(t, root)
			}

			cfg, path, err := loadConfig(&Globals{Root: root, Mode: tt.mode})
			require.NoError(t, err)
			require.Equal(t, tt.mode, cfg.Mode)
			require.Equal(t, tt.wantPath, path != "")

			if tt.mode.IsProduction() {
				require.Nil(t, cfg.DevServer)
				return
			}
			require.Len(t, cfg.DevServer.Proxy, tt.wantRules)
		})
	}
}

func TestLoadConfig_invalidTable(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "serverProxy.yaml"), []byte("/api: [1, 2"), 0600))

	_, _, err := loadConfig(&Globals{Root: root, Mode: buildconfig.Development})
	require.Error(t, err)
}

func TestLoadConfig_tableWithoutTarget(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "serverProxy.yaml"), []byte("/api:\n  changeOrigin: true\n"), 0600))

	_, _, err := loadConfig(&Globals{Root: root, Mode: buildconfig.Development})
	require.ErrorIs(t, err, proxy.ErrInvalidTable)
}

func TestConfigCmd_write(t *testing.T) {
	root := t.TempDir()
	writeProxyTable(t, root)
	cfg, _, err := loadConfig(&Globals{Root: root, Mode: buildconfig.Development})
	require.NoError(t, err)

	t.Run("yaml", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, (&ConfigCmd{Format: "yaml"}).write(buf, cfg))

		var out map[string]any
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
		require.Equal(t, "development", out["mode"])
		require.Contains(t, buf.String(), "http://127.0.0.1:8080")
	})

	t.Run("json", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, (&ConfigCmd{Format: "json"}).write(buf, cfg))

		var out map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
		require.Equal(t, "development", out["mode"])
		require.Contains(t, out, "devServer")
	})

	t.Run("unknown format", func(t *testing.T) {
		require.Error(t, (&ConfigCmd{Format: "toml"}).write(new(bytes.Buffer), cfg))
	})
}
