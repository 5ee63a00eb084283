// Package config holds the analysis configuration: the recognized
// Python-invocation API names, the registration shape markers, and output
// options. The API lists are configuration rather than constants so they can
// track new C-API revisions without touching the analysis code.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration.
type Config struct {
	APIs   APIConfig    `mapstructure:"apis" yaml:"apis"`
	Shapes ShapeConfig  `mapstructure:"shapes" yaml:"shapes"`
	Output OutputConfig `mapstructure:"output" yaml:"output"`
	LLM    LLMConfig    `mapstructure:"llm" yaml:"llm"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
}

// APIConfig lists the recognized Python C-API name families.
type APIConfig struct {
	// Call is the Python object-invocation family; a call to any of these
	// seeds the dependency slicer.
	Call []string `mapstructure:"call" yaml:"call"`
	// Lookup is the function/attribute lookup family, reported per slice.
	Lookup []string `mapstructure:"lookup" yaml:"lookup"`
	// ArgBuild is the argument construction family, reported per slice.
	ArgBuild []string `mapstructure:"arg_build" yaml:"arg_build"`
	// ParseTuple is the argument-unpacking family scanned for format strings.
	ParseTuple []string `mapstructure:"parse_tuple" yaml:"parse_tuple"`
}

// ShapeConfig describes the three registration shapes by their syntactic
// markers.
type ShapeConfig struct {
	MethodTableType string   `mapstructure:"method_table_type" yaml:"method_table_type"`
	ModuleDefType   string   `mapstructure:"module_def_type" yaml:"module_def_type"`
	InitPrefix      string   `mapstructure:"init_prefix" yaml:"init_prefix"`
	InitMacro       string   `mapstructure:"init_macro" yaml:"init_macro"`
	ModuleCreate    []string `mapstructure:"module_create" yaml:"module_create"`
	MethodFlagMark  string   `mapstructure:"method_flag_mark" yaml:"method_flag_mark"`
}

// OutputConfig controls rendering.
type OutputConfig struct {
	Dir     string   `mapstructure:"dir" yaml:"dir"`
	Formats []string `mapstructure:"formats" yaml:"formats"`
}

// LLMConfig configures the optional enrichment client.
type LLMConfig struct {
	Model     string `mapstructure:"model" yaml:"model"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("apis.call", []string{
		"PyObject_CallObject",
		"PyObject_CallFunction",
		"PyObject_CallMethod",
		"PyObject_Call",
		"PyObject_CallFunctionObjArgs",
		"PyObject_CallMethodObjArgs",
		"PyEval_CallObject",
		"PyEval_CallFunction",
		"PyEval_CallMethod",
	})
	v.SetDefault("apis.lookup", []string{
		"PyImport_ImportModule",
		"PyDict_GetItemString",
		"PyObject_GetAttrString",
		"PyModule_GetDict",
		"PyImport_AddModule",
	})
	v.SetDefault("apis.arg_build", []string{
		"Py_BuildValue",
		"PyTuple_New",
		"PyTuple_SetItem",
		"PyList_New",
		"PyList_SetItem",
	})
	v.SetDefault("apis.parse_tuple", []string{
		"PyArg_ParseTuple",
		"PyArg_ParseTupleAndKeywords",
	})

	v.SetDefault("shapes.method_table_type", "PyMethodDef")
	v.SetDefault("shapes.module_def_type", "PyModuleDef")
	v.SetDefault("shapes.init_prefix", "PyInit_")
	v.SetDefault("shapes.init_macro", "PyMODINIT_FUNC")
	v.SetDefault("shapes.module_create", []string{"PyModule_Create", "PyModule_Create2"})
	v.SetDefault("shapes.method_flag_mark", "METH_")

	v.SetDefault("output.dir", "output")
	v.SetDefault("output.formats", []string{"text", "json"})

	v.SetDefault("llm.model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.max_tokens", 8192)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration from defaults, an optional YAML file, and
// PYCTRACE_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("PYCTRACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// Defaults always validate; reaching here is a programming error.
		panic(err)
	}
	return cfg
}

// Validate checks the parts of the configuration the analysis depends on.
func (c *Config) Validate() error {
	if len(c.APIs.Call) == 0 {
		return fmt.Errorf("config: apis.call must not be empty")
	}
	if c.Shapes.MethodTableType == "" || c.Shapes.ModuleDefType == "" {
		return fmt.Errorf("config: shapes.method_table_type and shapes.module_def_type are required")
	}
	if c.Shapes.InitPrefix == "" {
		return fmt.Errorf("config: shapes.init_prefix is required")
	}
	if len(c.Shapes.ModuleCreate) == 0 {
		return fmt.Errorf("config: shapes.module_create must not be empty")
	}
	return nil
}

// CallAPISet returns the invocation family as a lookup set.
func (c *Config) CallAPISet() map[string]struct{} {
	return asSet(c.APIs.Call)
}

// ParseTupleSet returns the argument-unpacking family as a lookup set.
func (c *Config) ParseTupleSet() map[string]struct{} {
	return asSet(c.APIs.ParseTuple)
}

// LookupSet returns the function-lookup family as a lookup set.
func (c *Config) LookupSet() map[string]struct{} {
	return asSet(c.APIs.Lookup)
}

// ArgBuildSet returns the argument-building family as a lookup set.
func (c *Config) ArgBuildSet() map[string]struct{} {
	return asSet(c.APIs.ArgBuild)
}

func asSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}
