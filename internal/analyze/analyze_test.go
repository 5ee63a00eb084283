package analyze

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuangxiangkan/PyCTrace/internal/model"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunFullPipeline(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"main.c": `
#include <Python.h>

void invoke(void) {
    PyObject *pModule = PyImport_ImportModule("calc");
    PyObject *pFunc = PyObject_GetAttrString(pModule, "add");
    PyObject *pArgs = make_args();
    PyObject *pResult = PyObject_CallObject(pFunc, pArgs);
    Py_XDECREF(pResult);
}
`,
		"helpers.c": `
#include <Python.h>

PyObject* make_args(void) {
    return Py_BuildValue("(ii)", 1, 2);
}
`,
		"module.c": `
#include <Python.h>

static PyObject* calc_add(PyObject* self, PyObject* args) {
    int a, b;
    if (!PyArg_ParseTuple(args, "ii", &a, &b)) return NULL;
    return PyLong_FromLong(a + b);
}

static PyMethodDef CalcMethods[] = {
    {"add", calc_add, METH_VARARGS, "Add."},
    {NULL, NULL, 0, NULL}
};

static struct PyModuleDef calcmodule = {
    PyModuleDef_HEAD_INIT,
    "calc",
    NULL,
    -1,
    CalcMethods
};

PyMODINIT_FUNC PyInit_calc(void) {
    return PyModule_Create(&calcmodule);
}
`,
		"driver.py": `
import calc


def compute():
    return calc.add(1, 2)


compute()
`,
	})

	report, err := Run(context.Background(), root, Options{Logger: quietLogger()})
	require.NoError(t, err)

	assert.Equal(t, []string{"helpers.c", "main.c", "module.c"}, report.Files)
	assert.Equal(t, []string{"driver.py"}, report.PythonFiles)

	require.Len(t, report.Slices, 1)
	sl := report.Slices[0]
	assert.Equal(t, "PyObject_CallObject", sl.Call.API)
	assert.Equal(t, "main.c", sl.Call.File)
	require.Len(t, sl.Related, 1)
	assert.Equal(t, "make_args", sl.Related[0].Name)
	assert.Equal(t, "helpers.c", sl.Related[0].File)

	var lookups []string
	for _, c := range sl.Lookups {
		lookups = append(lookups, c.Name)
	}
	assert.Contains(t, lookups, "PyObject_GetAttrString")

	require.Len(t, report.Chains, 1)
	chain := report.Chains[0]
	assert.True(t, chain.Complete)
	assert.Equal(t, "calc", chain.Init.ModuleName)
	require.Len(t, chain.Functions, 1)
	assert.Equal(t, "ii", chain.MethodTable.Entries[0].ParamFormat)

	// Registered functions carry their Python name in the merged graph.
	var callers []string
	for _, edge := range report.CallEdges {
		callers = append(callers, edge.Caller)
	}
	assert.Contains(t, callers, "calc_add(add)")

	// The Python caller links to the registered C function.
	assert.Contains(t, report.CallEdges, model.CallEdge{Caller: "compute", Callee: "calc_add(add)"})
	assert.Contains(t, report.CallEdges, model.CallEdge{Caller: "<module>", Callee: "compute"})
}

func TestRunEmptyTree(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"README.md": "no C here"})

	_, err := Run(context.Background(), root, Options{Logger: quietLogger()})
	assert.Error(t, err)
}

func TestRunRecordsParseFailureDiagnostics(t *testing.T) {
	t.Parallel()
	if os.Geteuid() == 0 {
		t.Skip("permission bits are ignored when running as root")
	}
	root := writeTree(t, map[string]string{
		"ok.c":       "int main(void) { return 0; }",
		"deny/bad.c": "int x;",
	})
	require.NoError(t, os.Chmod(filepath.Join(root, "deny", "bad.c"), 0o000))
	t.Cleanup(func() { _ = os.Chmod(filepath.Join(root, "deny", "bad.c"), 0o644) })

	report, err := Run(context.Background(), root, Options{Logger: quietLogger()})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok.c"}, report.Files)

	var kinds []model.DiagnosticKind
	for _, d := range report.Diagnostics {
		kinds = append(kinds, d.Kind)
	}
	assert.Contains(t, kinds, model.ParseFailure)
}

func TestRunWorkerCountIrrelevant(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"a.c": "void a(void) {}",
		"b.c": "void b(void) {}",
		"c.c": "void c(void) {}",
	})

	one, err := Run(context.Background(), root, Options{Workers: 1, Logger: quietLogger()})
	require.NoError(t, err)
	many, err := Run(context.Background(), root, Options{Workers: 8, Logger: quietLogger()})
	require.NoError(t, err)

	assert.Equal(t, one.Files, many.Files)
	assert.Equal(t, one.CallEdges, many.CallEdges)
}