// Package analyze orchestrates a full run: discover files, parse them
// concurrently, build the symbol registry, then derive call slices,
// registration chains, the merged C/Python call graph and embedded Python
// snippets.
package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/shuangxiangkan/PyCTrace/internal/callgraph"
	"github.com/shuangxiangkan/PyCTrace/internal/config"
	"github.com/shuangxiangkan/PyCTrace/internal/discover"
	"github.com/shuangxiangkan/PyCTrace/internal/model"
	"github.com/shuangxiangkan/PyCTrace/internal/parse"
	"github.com/shuangxiangkan/PyCTrace/internal/pycall"
	"github.com/shuangxiangkan/PyCTrace/internal/pystr"
	"github.com/shuangxiangkan/PyCTrace/internal/regchain"
	"github.com/shuangxiangkan/PyCTrace/internal/registry"
	"github.com/shuangxiangkan/PyCTrace/internal/slicer"
)

// Options configures a run.
type Options struct {
	Config  *config.Config
	Workers int
	Logger  *slog.Logger
}

// Run analyzes the C sources under root and returns the full report.
// Individual file failures become diagnostics, not errors; Run fails only
// when nothing can proceed.
func Run(ctx context.Context, root string, opts Options) (*model.Report, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	entries, err := discover.Files(root)
	if err != nil {
		return nil, fmt.Errorf("discovering files: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no C/C++ source files under %s", root)
	}
	logger.Info("discovered sources", "root", root, "files", len(entries))

	results, parseDiags := parseAll(ctx, root, entries, workers, logger)

	report := &model.Report{Root: root}
	report.Diagnostics = append(report.Diagnostics, parseDiags...)

	var files []*model.SourceFile
	for _, res := range results {
		if res == nil {
			continue
		}
		files = append(files, res.File)
		report.Files = append(report.Files, res.Path)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("all %d files failed to parse", len(entries))
	}

	reg := registry.Build(files)

	apiSet := cfg.CallAPISet()
	lookupSet := cfg.LookupSet()
	argBuildSet := cfg.ArgBuildSet()
	for _, f := range files {
		for _, call := range slicer.Locate(f, apiSet) {
			sl, diags := slicer.Slice(call, reg)
			slicer.Annotate(&sl, lookupSet, argBuildSet)
			report.Slices = append(report.Slices, sl)
			report.Diagnostics = append(report.Diagnostics, diags...)
		}
	}
	logger.Info("located python invocations", "count", len(report.Slices))

	var comps []regchain.Components
	for _, res := range results {
		if res == nil {
			continue
		}
		comps = append(comps, regchain.Extract(res, cfg.Shapes))
	}
	chains, chainDiags := regchain.Resolve(comps, reg, cfg.ParseTupleSet())
	report.Chains = chains
	report.Diagnostics = append(report.Diagnostics, chainDiags...)
	logger.Info("resolved module chains", "count", len(chains))

	pyEdges := pythonEdges(root, report, logger)

	edges := callgraph.Build(files)
	report.CallEdges = callgraph.Merge(edges, pyEdges, chains)
	report.PythonSnippets = pystr.Extract(files)

	return report, nil
}

// pythonEdges parses standalone Python sources under root so calls into the
// extension modules show up in the merged graph. Python files are optional;
// failures degrade to diagnostics.
func pythonEdges(root string, report *model.Report, logger *slog.Logger) []model.CallEdge {
	entries, err := discover.PythonFiles(root)
	if err != nil || len(entries) == 0 {
		return nil
	}

	parser := pycall.NewParser()
	var edges []model.CallEdge
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(root, entry.Path))
		if err != nil {
			report.Diagnostics = append(report.Diagnostics, model.Diagnostic{
				Kind:   model.ParseFailure,
				File:   entry.Path,
				Detail: err.Error(),
			})
			continue
		}
		_, fileEdges, err := pycall.File(parser, data, entry.Path)
		if err != nil {
			report.Diagnostics = append(report.Diagnostics, model.Diagnostic{
				Kind:   model.ParseFailure,
				File:   entry.Path,
				Detail: err.Error(),
			})
			continue
		}
		report.PythonFiles = append(report.PythonFiles, entry.Path)
		edges = append(edges, fileEdges...)
	}
	logger.Info("parsed python sources", "files", len(report.PythonFiles), "edges", len(edges))
	return edges
}

// parseAll parses entries concurrently. Each worker owns its parser; trees
// are written into a per-index slot so no locking is needed.
func parseAll(ctx context.Context, root string, entries []discover.FileEntry, workers int, logger *slog.Logger) ([]*parse.Result, []model.Diagnostic) {
	results := make([]*parse.Result, len(entries))
	diagSlots := make([]*model.Diagnostic, len(entries))

	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan int)

	g.Go(func() error {
		defer close(jobs)
		for i := range entries {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			parser := parse.NewParser()
			for idx := range jobs {
				entry := entries[idx]
				data, err := os.ReadFile(filepath.Join(root, entry.Path))
				if err != nil {
					diagSlots[idx] = &model.Diagnostic{
						Kind:   model.ParseFailure,
						File:   entry.Path,
						Detail: err.Error(),
					}
					continue
				}
				res, err := parse.File(parser, data, entry.Path)
				if err != nil {
					diagSlots[idx] = &model.Diagnostic{
						Kind:   model.ParseFailure,
						File:   entry.Path,
						Detail: err.Error(),
					}
					continue
				}
				results[idx] = res
			}
			return nil
		})
	}

	// Worker errors are impossible today; Wait still fences the slots.
	_ = g.Wait()

	var diags []model.Diagnostic
	for _, d := range diagSlots {
		if d != nil {
			logger.Warn("file skipped", "file", d.File, "reason", d.Detail)
			diags = append(diags, *d)
		}
	}
	return results, diags
}
