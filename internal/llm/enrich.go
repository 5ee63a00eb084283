package llm

import (
	"context"
	"log/slog"

	"github.com/shuangxiangkan/PyCTrace/internal/model"
)

// Enrich asks the model to describe each chain's exported interface. A chain
// whose request or decode fails falls back to the syntactic description, so
// the result always has one entry per chain.
func Enrich(ctx context.Context, m Messenger, chains []model.ModuleChain, logger *slog.Logger) []ModuleInfo {
	if logger == nil {
		logger = slog.Default()
	}
	out := make([]ModuleInfo, 0, len(chains))
	for _, chain := range chains {
		response, err := m.Complete(ctx, systemPrompt, ChainPrompt(chain))
		if err != nil {
			logger.Warn("llm enrichment failed, using syntactic description",
				"module", chain.Init.ModuleName, "error", err)
			out = append(out, FromChain(chain))
			continue
		}
		info, err := ParseModuleInfo(response)
		if err != nil {
			logger.Warn("llm response unusable, using syntactic description",
				"module", chain.Init.ModuleName, "error", err)
			out = append(out, FromChain(chain))
			continue
		}
		out = append(out, *info)
	}
	return out
}

// FromChain derives a ModuleInfo from the chain alone. Parameter types come
// from format strings when present; undescribed methods keep an untyped
// signature.
func FromChain(chain model.ModuleChain) ModuleInfo {
	info := ModuleInfo{ModuleName: chain.Init.ModuleName}
	if chain.ModuleDef != nil {
		if chain.ModuleDef.ModuleName != "" {
			info.ModuleName = chain.ModuleDef.ModuleName
		}
		info.Doc = chain.ModuleDef.Doc
	}
	if chain.MethodTable == nil {
		return info
	}
	for _, entry := range chain.MethodTable.Entries {
		fn := FunctionInfo{
			PythonName:  entry.PythonName,
			CFunction:   entry.CFunction,
			Doc:         entry.Doc,
			ParamFormat: entry.ParamFormat,
			ReturnType:  "object",
		}
		if entry.ParamFormat != "" {
			fn.Params = ParamsFromFormat(entry.ParamFormat)
		}
		info.Functions = append(info.Functions, fn)
	}
	return info
}
