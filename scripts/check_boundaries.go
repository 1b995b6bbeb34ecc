package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

// layerRule constrains the imports of one hexagonal layer. Relative
// prefixes are resolved against the owning service; absolute ones against
// the module root.
type layerRule struct {
	forbidden map[string]string
	allowed   []string
	// thirdParty permits non-module, non-stdlib imports.
	thirdParty bool
}

var layerRules = map[string]layerRule{
	"domain": {
		forbidden: map[string]string{
			"/adapters/": "domain must not import adapters",
			"/internal/": "domain must not import runtime infrastructure",
		},
		allowed: []string{"@/domain"},
	},
	"ports": {
		forbidden: map[string]string{
			"/adapters/":          "ports must not import adapters",
			"/internal/platform/": "ports must not import runtime infrastructure",
		},
		allowed: []string{"@/domain", "internal/shared/events"},
	},
	"application": {
		forbidden: map[string]string{
			"/adapters/":          "application must not import adapters",
			"/internal/platform/": "application must not import runtime infrastructure",
		},
		allowed: []string{"@/application", "@/domain", "@/ports"},
	},
	"transport": {
		forbidden: map[string]string{
			"/internal/": "transport DTOs must not import runtime infrastructure",
		},
		allowed: []string{"@/transport"},
	},
	"adapters": {
		forbidden: map[string]string{
			"/internal/platform/httpserver": "adapters must not import the HTTP server",
			"/internal/app/":                "adapters must not import the composition root",
		},
		allowed:    []string{"@", "internal/shared", "internal/platform"},
		thirdParty: true,
	},
}

func main() {
	root := flag.String("root", ".", "module root containing go.mod")
	flag.Parse()

	modulePath, err := readModulePath(filepath.Join(*root, "go.mod"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	violations := collectViolations(filepath.Join(*root, "contexts"), modulePath)
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}

	sort.Slice(violations, func(i, j int) bool {
		a, b := violations[i], violations[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Import < b.Import
	})

	fmt.Printf("%d boundary violations found:\n", len(violations))
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q (%s)\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

func readModulePath(goModPath string) (string, error) {
	f, err := os.Open(goModPath)
	if err != nil {
		return "", fmt.Errorf("open go.mod: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if rest, ok := strings.CutPrefix(line, "module "); ok {
			return strings.Trim(strings.TrimSpace(rest), `"`), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read go.mod: %w", err)
	}
	return "", errors.New("go.mod has no module directive")
}

func collectViolations(contextsDir string, modulePath string) []violation {
	var violations []violation

	_ = filepath.WalkDir(contextsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		rel, err := filepath.Rel(filepath.Dir(contextsDir), path)
		if err != nil {
			return nil
		}

		// contexts/<context>/<service>/<layer>/...
		normalized := filepath.ToSlash(rel)
		parts := strings.Split(normalized, "/")
		if len(parts) < 5 || parts[0] != "contexts" {
			return nil
		}
		servicePrefix := strings.Join([]string{modulePath, "contexts", parts[1], parts[2]}, "/")

		violations = append(violations, validateFile(path, normalized, parts[3], modulePath, servicePrefix)...)
		return nil
	})

	return violations
}

func validateFile(path string, normalizedPath string, layer string, modulePath string, servicePrefix string) []violation {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return []violation{{File: normalizedPath, Line: 1, Rule: "file must parse"}}
	}

	var violations []violation
	for _, imp := range file.Imports {
		importPath := strings.Trim(imp.Path.Value, `"`)
		add := func(rule string) {
			violations = append(violations, violation{
				File:   normalizedPath,
				Line:   fset.Position(imp.Pos()).Line,
				Import: importPath,
				Rule:   rule,
			})
		}

		if hasPrefix(importPath, modulePath+"/contexts") && !hasPrefix(importPath, servicePrefix) {
			add("cross-service imports are forbidden")
		}

		rule, ok := layerRules[layer]
		if !ok || isStdlib(importPath, modulePath) {
			continue
		}
		internal := hasPrefix(importPath, modulePath)
		for fragment, message := range rule.forbidden {
			if internal && strings.Contains(strings.TrimPrefix(importPath, modulePath), fragment) {
				add(message)
			}
		}
		if !internal {
			if !rule.thirdParty {
				add(layer + " must not import third-party packages")
			}
			continue
		}
		if !isAllowed(importPath, resolveAllowed(rule.allowed, modulePath, servicePrefix)) {
			add(layer + " import is outside explicit allowlist")
		}
	}
	return violations
}

func resolveAllowed(allowed []string, modulePath string, servicePrefix string) []string {
	resolved := make([]string, 0, len(allowed))
	for _, prefix := range allowed {
		if rest, ok := strings.CutPrefix(prefix, "@"); ok {
			resolved = append(resolved, servicePrefix+rest)
			continue
		}
		resolved = append(resolved, modulePath+"/"+prefix)
	}
	return resolved
}

func hasPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isAllowed(importPath string, allowedPrefixes []string) bool {
	for _, p := range allowedPrefixes {
		if hasPrefix(importPath, p) {
			return true
		}
	}
	return false
}

func isStdlib(importPath string, modulePath string) bool {
	if hasPrefix(importPath, modulePath) {
		return false
	}
	first, _, _ := strings.Cut(importPath, "/")
	return !strings.Contains(first, ".")
}
