package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Contains(t, cfg.APIs.Call, "PyObject_CallObject")
	assert.Contains(t, cfg.APIs.Call, "PyEval_CallMethod")
	assert.Len(t, cfg.APIs.Call, 9)

	assert.Equal(t, "PyMethodDef", cfg.Shapes.MethodTableType)
	assert.Equal(t, "PyModuleDef", cfg.Shapes.ModuleDefType)
	assert.Equal(t, "PyInit_", cfg.Shapes.InitPrefix)
	assert.Contains(t, cfg.Shapes.ModuleCreate, "PyModule_Create")

	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
apis:
  call:
    - MyCustom_Call
log:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"MyCustom_Call"}, cfg.APIs.Call)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, "PyMethodDef", cfg.Shapes.MethodTableType)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PYCTRACE_LOG_LEVEL", "error")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.APIs.Call = nil
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Shapes.InitPrefix = ""
	assert.Error(t, cfg.Validate())
}

func TestCallAPISet(t *testing.T) {
	set := Default().CallAPISet()
	_, ok := set["PyObject_Call"]
	assert.True(t, ok)
	_, ok = set["printf"]
	assert.False(t, ok)
}

func TestAPIFamilySets(t *testing.T) {
	cfg := Default()

	_, ok := cfg.LookupSet()["PyObject_GetAttrString"]
	assert.True(t, ok)
	_, ok = cfg.LookupSet()["PyImport_ImportModule"]
	assert.True(t, ok)

	_, ok = cfg.ArgBuildSet()["Py_BuildValue"]
	assert.True(t, ok)
	_, ok = cfg.ArgBuildSet()["PyObject_CallObject"]
	assert.False(t, ok)
}
