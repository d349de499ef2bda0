package openapi2mcp

import (
	"sort"

	"github.com/yosida95/uritemplate/v3"
	"go.uber.org/zap"
)

// lintPath checks that a path template parses and that its variables line up
// with the declared path parameters. Mismatches are diagnostics only; a
// placeholder without a parameter surfaces at call time as an unresolved path.
func (e *Extractor) lintPath(path string, params []ExecutionParameter) {
	tmpl, err := uritemplate.New(path)
	if err != nil {
		e.logger.Debug("path template does not parse", zap.String("path", path), zap.Error(err))
		return
	}

	declared := make(map[string]bool)
	for _, p := range params {
		if p.In == InPath {
			declared[p.Name] = true
		}
	}

	used := make(map[string]bool)
	var undeclared []string
	for _, name := range tmpl.Varnames() {
		used[name] = true
		if !declared[name] {
			undeclared = append(undeclared, name)
		}
	}
	var unused []string
	for name := range declared {
		if !used[name] {
			unused = append(unused, name)
		}
	}
	sort.Strings(unused)

	if len(undeclared) > 0 {
		e.logger.Warn("path placeholders without a path parameter",
			zap.String("path", path), zap.Strings("placeholders", undeclared))
	}
	if len(unused) > 0 {
		e.logger.Warn("path parameters missing from the path template",
			zap.String("path", path), zap.Strings("parameters", unused))
	}
}
