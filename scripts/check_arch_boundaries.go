package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const modulePrefix = "yt-clip-studio/internal/"

// internal import graph, keyed by the importing package. Entries under cmd/
// use the binary directory name.
var allowed = map[string][]string{
	"cli":      {"api", "config", "download", "editor", "logging", "media", "model", "poller", "runstore", "ytdlp"},
	"sim":      {"logging", "model", "ytdlp"},
	"download": {"api", "media", "model", "runstore"},
	"api":      {"model"},
	"editor":   {"model"},
	"poller":   {"model"},
	"runstore": {"model"},
	"config":   {"runstore"},
	"logging":  nil,
	"media":    nil,
	"model":    nil,
	"ytdlp":    nil,

	"cmd/yt-clip-studio": {"cli"},
	"cmd/clip-sim":       {"config", "logging", "sim", "ytdlp"},
}

// thirdParty confines each external module to the packages that own its concern.
var thirdParty = map[string][]string{
	"github.com/charmbracelet/":           {"cli"},
	"github.com/go-chi/chi/":              {"sim"},
	"github.com/go-playground/validator/": {"sim"},
	"modernc.org/sqlite":                  {"sim"},
	"github.com/google/uuid":              {"api", "sim"},
	"golang.org/x/sync/":                  {"download"},
}

func main() {
	violations := []string{}
	for _, root := range []string{"internal", "cmd"} {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			found, err := checkFile(path)
			if err != nil {
				return err
			}
			violations = append(violations, found...)
			return nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "boundary walk failed: %v\n", err)
			os.Exit(1)
		}
	}

	if len(violations) > 0 {
		sort.Strings(violations)
		fmt.Fprintln(os.Stderr, "architecture boundary violations detected:")
		for _, v := range violations {
			fmt.Fprintf(os.Stderr, "- %s\n", v)
		}
		os.Exit(1)
	}

	fmt.Println("architecture boundary check: OK")
}

func checkFile(path string) ([]string, error) {
	srcPkg := sourcePackage(path)
	if srcPkg == "" {
		return nil, nil
	}
	allowList, ok := allowed[srcPkg]
	if !ok {
		return []string{fmt.Sprintf("%s: unknown source package %q", path, srcPkg)}, nil
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, imp := range file.Imports {
		impPath := strings.Trim(imp.Path.Value, "\"")
		if tgtPkg, ok := targetPackage(impPath); ok {
			if tgtPkg != srcPkg && !contains(allowList, tgtPkg) {
				out = append(out, fmt.Sprintf("%s: %s -> %s is forbidden", path, srcPkg, tgtPkg))
			}
			continue
		}
		for prefix, owners := range thirdParty {
			if strings.HasPrefix(impPath, prefix) && !contains(owners, srcPkg) {
				out = append(out, fmt.Sprintf("%s: %s may not import %s (owned by %s)", path, srcPkg, impPath, strings.Join(owners, ", ")))
			}
		}
	}
	return out, nil
}

func sourcePackage(path string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) < 2 {
		return ""
	}
	switch parts[0] {
	case "internal":
		return parts[1]
	case "cmd":
		return "cmd/" + parts[1]
	}
	return ""
}

func targetPackage(importPath string) (string, bool) {
	rest, ok := strings.CutPrefix(importPath, modulePrefix)
	if !ok || rest == "" {
		return "", false
	}
	pkg, _, _ := strings.Cut(rest, "/")
	return pkg, true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
