package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuangxiangkan/PyCTrace/internal/model"
)

type fakeMessenger struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeMessenger) Complete(_ context.Context, _, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func sampleChain() model.ModuleChain {
	return model.ModuleChain{
		Init: model.InitFunction{
			Name:       "PyInit_calc",
			ModuleName: "calc",
			Code:       "PyMODINIT_FUNC PyInit_calc(void) { return PyModule_Create(&calcmodule); }",
		},
		ModuleDef: &model.ModuleDefinition{
			Name:       "calcmodule",
			ModuleName: "calc",
			Doc:        "A calculator.",
		},
		MethodTable: &model.MethodTable{
			Name: "CalcMethods",
			Entries: []model.MethodEntry{
				{PythonName: "add", CFunction: "calc_add", ParamFormat: "ii", Resolved: true, Doc: "Add."},
				{PythonName: "noargs", CFunction: "calc_noargs", Resolved: true},
			},
		},
		Complete: true,
	}
}

func TestCleanJSONResponse(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `{"a":1}`, CleanJSONResponse("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, CleanJSONResponse("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, CleanJSONResponse(`{"a":1}`))
}

func TestParseModuleInfo(t *testing.T) {
	t.Parallel()
	response := "```json\n" + `{
  "module_name": "calc",
  "functions": [
    {"python_name": "add", "c_function": "calc_add",
     "params": [{"name": "a", "type": "int"}, {"name": "b", "type": "int"}],
     "return_type": "int"}
  ]
}` + "\n```"

	info, err := ParseModuleInfo(response)
	require.NoError(t, err)
	assert.Equal(t, "calc", info.ModuleName)
	require.Len(t, info.Functions, 1)
	assert.Equal(t, "add", info.Functions[0].PythonName)
	require.Len(t, info.Functions[0].Params, 2)
	assert.Equal(t, "int", info.Functions[0].Params[0].Type)
}

func TestParseModuleInfoRejectsGarbage(t *testing.T) {
	t.Parallel()
	_, err := ParseModuleInfo("not json at all")
	assert.Error(t, err)

	_, err = ParseModuleInfo(`{"functions": []}`)
	assert.Error(t, err, "module_name is required")
}

func TestParamsFromFormat(t *testing.T) {
	t.Parallel()
	params := ParamsFromFormat("si|O:func_name")
	require.Len(t, params, 3)
	assert.Equal(t, ParamInfo{Name: "arg0", Type: "str"}, params[0])
	assert.Equal(t, ParamInfo{Name: "arg1", Type: "int"}, params[1])
	assert.Equal(t, ParamInfo{Name: "arg2", Type: "object"}, params[2])

	assert.Empty(t, ParamsFromFormat(""))
}

func TestFromChain(t *testing.T) {
	t.Parallel()
	info := FromChain(sampleChain())
	assert.Equal(t, "calc", info.ModuleName)
	assert.Equal(t, "A calculator.", info.Doc)
	require.Len(t, info.Functions, 2)

	add := info.Functions[0]
	assert.Equal(t, "add", add.PythonName)
	assert.Equal(t, "ii", add.ParamFormat)
	require.Len(t, add.Params, 2)
	assert.Equal(t, "int", add.Params[0].Type)

	assert.Empty(t, info.Functions[1].Params)
}

func TestEnrichUsesModelResponse(t *testing.T) {
	t.Parallel()
	m := &fakeMessenger{response: `{"module_name": "calc", "functions": [
        {"python_name": "add", "c_function": "calc_add",
         "params": [{"name": "left", "type": "int"}, {"name": "right", "type": "int"}]}
    ]}`}

	infos := Enrich(context.Background(), m, []model.ModuleChain{sampleChain()}, nil)
	require.Len(t, infos, 1)
	require.Len(t, infos[0].Functions, 1)
	assert.Equal(t, "left", infos[0].Functions[0].Params[0].Name)

	// The prompt carries the chain source for the model to read.
	require.Len(t, m.prompts, 1)
	assert.Contains(t, m.prompts[0], "PyInit_calc")
}

func TestEnrichFallsBackOnError(t *testing.T) {
	t.Parallel()
	m := &fakeMessenger{err: errors.New("api down")}

	infos := Enrich(context.Background(), m, []model.ModuleChain{sampleChain()}, nil)
	require.Len(t, infos, 1)
	assert.Equal(t, "calc", infos[0].ModuleName)
	assert.Len(t, infos[0].Functions, 2)
}

func TestEnrichFallsBackOnBadJSON(t *testing.T) {
	t.Parallel()
	m := &fakeMessenger{response: "I cannot help with that."}

	infos := Enrich(context.Background(), m, []model.ModuleChain{sampleChain()}, nil)
	require.Len(t, infos, 1)
	assert.Equal(t, "calc", infos[0].ModuleName)
}
