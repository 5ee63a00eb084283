package slicer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuangxiangkan/PyCTrace/internal/config"
	"github.com/shuangxiangkan/PyCTrace/internal/model"
	"github.com/shuangxiangkan/PyCTrace/internal/parse"
	"github.com/shuangxiangkan/PyCTrace/internal/registry"
)

// parseAll parses sources in the given order, mirroring discovery order.
func parseAll(t *testing.T, sources map[string]string, order ...string) ([]*model.SourceFile, *registry.Registry) {
	t.Helper()
	parser := parse.NewParser()
	var files []*model.SourceFile
	for _, path := range order {
		res, err := parse.File(parser, []byte(sources[path]), path)
		require.NoError(t, err)
		files = append(files, res.File)
	}
	return files, registry.Build(files)
}

func locateOne(t *testing.T, files []*model.SourceFile) model.CallOfInterest {
	t.Helper()
	apiSet := config.Default().CallAPISet()
	var calls []model.CallOfInterest
	for _, f := range files {
		calls = append(calls, Locate(f, apiSet)...)
	}
	require.Len(t, calls, 1)
	return calls[0]
}

const mainWithNoise = `
#include <Python.h>

void run(void) {
    int unrelated = 41;
    unrelated = unrelated + 1;
    Py_Initialize();
    PyObject *pModule = PyImport_ImportModule("mymod");
    PyObject *pFunc = PyObject_GetAttrString(pModule, "process");
    PyObject *pArgs = build_args();
    PyObject *pResult = PyObject_CallObject(pFunc, pArgs);
    if (pResult != NULL) {
        Py_DECREF(pResult);
    }
}
`

const helperFile = `
#include <Python.h>

PyObject* build_args(void) {
    return Py_BuildValue("(i)", 42);
}
`

func TestLocateFindsCallAPIs(t *testing.T) {
	t.Parallel()
	files, _ := parseAll(t, map[string]string{"main.c": mainWithNoise}, "main.c")

	call := locateOne(t, files)
	assert.Equal(t, "PyObject_CallObject", call.API)
	assert.Equal(t, "main.c", call.File)
	assert.Equal(t, []string{"pFunc", "pArgs"}, call.Args)
	require.NotNil(t, call.Function)
	assert.Equal(t, "run", call.Function.Name)
}

func TestSliceExcludesUnrelatedStatements(t *testing.T) {
	t.Parallel()
	files, reg := parseAll(t,
		map[string]string{"main.c": mainWithNoise, "helpers.c": helperFile},
		"main.c", "helpers.c")

	sl, diags := Slice(locateOne(t, files), reg)
	assert.Empty(t, diags)

	var texts []string
	for _, stmt := range sl.Statements {
		texts = append(texts, stmt.Text)
	}
	assert.Contains(t, texts, `PyObject *pModule = PyImport_ImportModule("mymod");`)
	assert.Contains(t, texts, `PyObject *pFunc = PyObject_GetAttrString(pModule, "process");`)
	assert.Contains(t, texts, "PyObject *pArgs = build_args();")
	assert.Contains(t, texts, "PyObject *pResult = PyObject_CallObject(pFunc, pArgs);")
	assert.Contains(t, texts, "if (pResult != NULL)")
	assert.Contains(t, texts, "Py_DECREF(pResult);")

	assert.NotContains(t, texts, "int unrelated = 41;")
	assert.NotContains(t, texts, "unrelated = unrelated + 1;")
	assert.NotContains(t, texts, "Py_Initialize();")
}

func TestSliceStatementsInProgramOrder(t *testing.T) {
	t.Parallel()
	files, reg := parseAll(t, map[string]string{"main.c": mainWithNoise}, "main.c")

	sl, _ := Slice(locateOne(t, files), reg)
	for i := 1; i < len(sl.Statements); i++ {
		assert.GreaterOrEqual(t, sl.Statements[i].Line, sl.Statements[i-1].Line)
	}
}

func TestSlicePullsCrossFileHelpers(t *testing.T) {
	t.Parallel()
	files, reg := parseAll(t,
		map[string]string{"main.c": mainWithNoise, "helpers.c": helperFile},
		"main.c", "helpers.c")

	sl, _ := Slice(locateOne(t, files), reg)
	require.Len(t, sl.Related, 1)
	assert.Equal(t, "build_args", sl.Related[0].Name)
	assert.Equal(t, "helpers.c", sl.Related[0].File)
	assert.Contains(t, sl.Related[0].Code, "Py_BuildValue")
}

func TestSliceRecordsUnresolvedCallTargets(t *testing.T) {
	t.Parallel()
	// build_args has no definition anywhere.
	files, reg := parseAll(t, map[string]string{"main.c": mainWithNoise}, "main.c")

	sl, _ := Slice(locateOne(t, files), reg)
	assert.Empty(t, sl.Related)
	assert.Contains(t, sl.Unresolved, "build_args")
	assert.Contains(t, sl.Unresolved, "PyImport_ImportModule")
}

func TestSliceRecordsUnresolvedVariables(t *testing.T) {
	t.Parallel()
	src := `
#include <Python.h>
extern PyObject *g_func;
extern PyObject *g_args;

void trigger(void) {
    PyObject *res = PyObject_CallObject(g_func, g_args);
    if (res) Py_DECREF(res);
}
`
	files, reg := parseAll(t, map[string]string{"main.c": src}, "main.c")

	sl, _ := Slice(locateOne(t, files), reg)
	assert.Contains(t, sl.Unresolved, "g_func")
	assert.Contains(t, sl.Unresolved, "g_args")
	assert.NotContains(t, sl.Unresolved, "res")
}

func TestSliceParametersAreNotUnresolved(t *testing.T) {
	t.Parallel()
	src := `
#include <Python.h>

void call_it(PyObject *func, PyObject *args) {
    PyObject *res = PyObject_CallObject(func, args);
    Py_XDECREF(res);
}
`
	files, reg := parseAll(t, map[string]string{"main.c": src}, "main.c")

	sl, _ := Slice(locateOne(t, files), reg)
	assert.NotContains(t, sl.Unresolved, "func")
	assert.NotContains(t, sl.Unresolved, "args")
}

func TestSliceAmbiguousHelperDiagnostic(t *testing.T) {
	t.Parallel()
	dup := `
#include <Python.h>
PyObject* build_args(void) { return Py_BuildValue("(i)", 1); }
`
	files, reg := parseAll(t,
		map[string]string{"a.c": dup, "b.c": dup, "main.c": mainWithNoise},
		"a.c", "b.c", "main.c")

	sl, diags := Slice(locateOne(t, files), reg)
	require.Len(t, sl.Related, 1)
	assert.Equal(t, "a.c", sl.Related[0].File)
	require.Len(t, diags, 1)
	assert.Equal(t, model.AmbiguousSymbol, diags[0].Kind)
	assert.Contains(t, diags[0].Detail, "build_args")
}

func TestSliceDuplicateHelperInCallFileStillWarns(t *testing.T) {
	t.Parallel()
	withHelper := mainWithNoise + `
PyObject* build_args(void) { return Py_BuildValue("(i)", 7); }
`
	dup := `
#include <Python.h>
PyObject* build_args(void) { return Py_BuildValue("(i)", 1); }
`
	files, reg := parseAll(t,
		map[string]string{"a.c": dup, "main.c": withHelper},
		"a.c", "main.c")

	sl, diags := Slice(locateOne(t, files), reg)
	require.Len(t, sl.Related, 1)
	assert.Equal(t, "main.c", sl.Related[0].File)
	require.Len(t, diags, 1)
	assert.Equal(t, model.AmbiguousSymbol, diags[0].Kind)
	assert.Contains(t, diags[0].Detail, "build_args")
	assert.Contains(t, diags[0].Detail, "main.c")
}

func TestSliceIsIdempotent(t *testing.T) {
	t.Parallel()
	files, reg := parseAll(t,
		map[string]string{"main.c": mainWithNoise, "helpers.c": helperFile},
		"main.c", "helpers.c")
	call := locateOne(t, files)

	first, _ := Slice(call, reg)
	second, _ := Slice(call, reg)
	assert.Equal(t, first, second)
}

const twoCallsSharedImport = `
#include <Python.h>

void run_both(void) {
    PyObject *pModule = PyImport_ImportModule("math");
    PyObject *pSqrt = PyObject_GetAttrString(pModule, "sqrt");
    PyObject *sqrtArgs = sqrt_args();
    PyObject *sqrtResult = PyObject_CallObject(pSqrt, sqrtArgs);
    Py_XDECREF(sqrtResult);
    PyObject *pPow = PyObject_GetAttrString(pModule, "pow");
    PyObject *powArgs = pow_args();
    PyObject *powResult = PyObject_CallObject(pPow, powArgs);
    Py_XDECREF(powResult);
}
`

const twoCallHelpers = `
#include <Python.h>

PyObject* sqrt_args(void) { return Py_BuildValue("(d)", 2.0); }
PyObject* pow_args(void) { return Py_BuildValue("(dd)", 2.0, 8.0); }
`

func locateAll(t *testing.T, files []*model.SourceFile) []model.CallOfInterest {
	t.Helper()
	apiSet := config.Default().CallAPISet()
	var calls []model.CallOfInterest
	for _, f := range files {
		calls = append(calls, Locate(f, apiSet)...)
	}
	return calls
}

// Two call chains off the same imported module must not cross-include each
// other's statements or helpers.
func TestSliceIndependentCallsStayDisjoint(t *testing.T) {
	t.Parallel()
	files, reg := parseAll(t,
		map[string]string{"main.c": twoCallsSharedImport, "helpers.c": twoCallHelpers},
		"main.c", "helpers.c")

	calls := locateAll(t, files)
	require.Len(t, calls, 2)

	sqrtSlice, _ := Slice(calls[0], reg)
	powSlice, _ := Slice(calls[1], reg)

	var sqrtTexts, powTexts []string
	for _, stmt := range sqrtSlice.Statements {
		sqrtTexts = append(sqrtTexts, stmt.Text)
	}
	for _, stmt := range powSlice.Statements {
		powTexts = append(powTexts, stmt.Text)
	}

	shared := `PyObject *pModule = PyImport_ImportModule("math");`
	assert.Contains(t, sqrtTexts, shared)
	assert.Contains(t, powTexts, shared)

	assert.Contains(t, sqrtTexts, "PyObject *sqrtArgs = sqrt_args();")
	assert.NotContains(t, sqrtTexts, "PyObject *powArgs = pow_args();")
	assert.NotContains(t, sqrtTexts, "Py_XDECREF(powResult);")

	assert.Contains(t, powTexts, "PyObject *powArgs = pow_args();")
	assert.NotContains(t, powTexts, "PyObject *sqrtArgs = sqrt_args();")
	assert.NotContains(t, powTexts, "Py_XDECREF(sqrtResult);")

	// Each call pulls only its own helper.
	require.Len(t, sqrtSlice.Related, 1)
	assert.Equal(t, "sqrt_args", sqrtSlice.Related[0].Name)
	require.Len(t, powSlice.Related, 1)
	assert.Equal(t, "pow_args", powSlice.Related[0].Name)
}

const twoCallsWithResultUse = `
#include <Python.h>

void compute(void) {
    PyObject *pModule = PyImport_ImportModule("math");
    PyObject *pSqrt = PyObject_GetAttrString(pModule, "sqrt");
    PyObject *pArgs1 = Py_BuildValue("(d)", 16.0);
    PyObject *pResult1 = PyObject_CallObject(pSqrt, pArgs1);
    double sqrt_result = PyFloat_AsDouble(pResult1);
    printf("sqrt: %f\n", sqrt_result);
    Py_DECREF(pResult1);
    PyObject *pPow = PyObject_GetAttrString(pModule, "pow");
    PyObject *pArgs2 = Py_BuildValue("(dd)", 2.0, 10.0);
    PyObject *pResult2 = PyObject_CallObject(pPow, pArgs2);
    double pow_result = PyFloat_AsDouble(pResult2);
    Py_DECREF(pResult2);
}
`

// Statements consuming a call's result belong to its slice even when they
// bind new names, and those names keep propagating downstream. Sibling call
// chains sharing only the module object still stay out.
func TestSliceIncludesResultConsumers(t *testing.T) {
	t.Parallel()
	files, reg := parseAll(t, map[string]string{"main.c": twoCallsWithResultUse}, "main.c")

	calls := locateAll(t, files)
	require.Len(t, calls, 2)

	sqrtSlice, _ := Slice(calls[0], reg)
	powSlice, _ := Slice(calls[1], reg)

	var sqrtTexts, powTexts []string
	for _, stmt := range sqrtSlice.Statements {
		sqrtTexts = append(sqrtTexts, stmt.Text)
	}
	for _, stmt := range powSlice.Statements {
		powTexts = append(powTexts, stmt.Text)
	}

	assert.Contains(t, sqrtTexts, "double sqrt_result = PyFloat_AsDouble(pResult1);")
	assert.Contains(t, sqrtTexts, `printf("sqrt: %f\n", sqrt_result);`)
	assert.Contains(t, sqrtTexts, "Py_DECREF(pResult1);")
	assert.NotContains(t, sqrtTexts, "double pow_result = PyFloat_AsDouble(pResult2);")
	assert.NotContains(t, sqrtTexts, `PyObject *pPow = PyObject_GetAttrString(pModule, "pow");`)

	assert.Contains(t, powTexts, "double pow_result = PyFloat_AsDouble(pResult2);")
	assert.NotContains(t, powTexts, "double sqrt_result = PyFloat_AsDouble(pResult1);")
	assert.NotContains(t, powTexts, `printf("sqrt: %f\n", sqrt_result);`)
}

func TestAnnotateClassifiesLookupAndArgBuild(t *testing.T) {
	t.Parallel()
	files, reg := parseAll(t, map[string]string{"main.c": twoCallsWithResultUse}, "main.c")
	cfg := config.Default()

	calls := locateAll(t, files)
	require.Len(t, calls, 2)

	sl, _ := Slice(calls[0], reg)
	Annotate(&sl, cfg.LookupSet(), cfg.ArgBuildSet())

	var lookups, builds []string
	for _, c := range sl.Lookups {
		lookups = append(lookups, c.Name)
	}
	for _, c := range sl.ArgBuilds {
		builds = append(builds, c.Name)
	}
	assert.Contains(t, lookups, "PyImport_ImportModule")
	assert.Contains(t, lookups, "PyObject_GetAttrString")
	assert.Contains(t, builds, "Py_BuildValue")
	assert.NotContains(t, builds, "PyFloat_AsDouble")
}

// Adding a dependency-free statement to the function must not change the
// slice of an existing call.
func TestSliceMonotoneUnderUnrelatedStatements(t *testing.T) {
	t.Parallel()
	withNoise := `
#include <Python.h>

void run(void) {
    int counter = 0;
    PyObject *pModule = PyImport_ImportModule("mymod");
    counter = counter + 1;
    PyObject *pFunc = PyObject_GetAttrString(pModule, "process");
    log_progress(counter);
    PyObject *pArgs = build_args();
    PyObject *pResult = PyObject_CallObject(pFunc, pArgs);
    if (pResult != NULL) {
        Py_DECREF(pResult);
    }
}
`
	base, baseReg := parseAll(t,
		map[string]string{"main.c": mainWithNoise, "helpers.c": helperFile},
		"main.c", "helpers.c")
	noisy, noisyReg := parseAll(t,
		map[string]string{"main.c": withNoise, "helpers.c": helperFile},
		"main.c", "helpers.c")

	baseSlice, _ := Slice(locateOne(t, base), baseReg)
	noisySlice, _ := Slice(locateOne(t, noisy), noisyReg)

	var baseTexts, noisyTexts []string
	for _, stmt := range baseSlice.Statements {
		baseTexts = append(baseTexts, stmt.Text)
	}
	for _, stmt := range noisySlice.Statements {
		noisyTexts = append(noisyTexts, stmt.Text)
	}
	assert.Equal(t, baseTexts, noisyTexts)
}

// Every name an included statement uses must be defined inside the slice,
// be a parameter of the enclosing function, or appear in Unresolved.
func TestSliceIsClosed(t *testing.T) {
	t.Parallel()
	files, reg := parseAll(t,
		map[string]string{"main.c": mainWithNoise, "helpers.c": helperFile},
		"main.c", "helpers.c")

	sl, _ := Slice(locateOne(t, files), reg)

	defined := map[string]bool{}
	for _, stmt := range sl.Statements {
		for _, d := range stmt.Defs {
			defined[d] = true
		}
	}
	for _, p := range sl.Call.Function.ParamNames {
		defined[p] = true
	}
	unresolved := map[string]bool{}
	for _, u := range sl.Unresolved {
		unresolved[u] = true
	}
	for _, stmt := range sl.Statements {
		for _, use := range stmt.Uses {
			assert.True(t, defined[use] || unresolved[use],
				"use %q at line %d neither defined in slice nor unresolved", use, stmt.Line)
		}
	}
}
