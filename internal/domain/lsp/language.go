package lsp

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Language is a normalized language key. Exactly one language server runs
// per Language value.
type Language string

const (
	LangTypeScript Language = "typescript"
	LangPython     Language = "python"
	LangJava       Language = "java"
	LangVue        Language = "vue"
)

// Normalize maps user-facing language names and aliases to a Language.
// Returns an error for unsupported languages.
func Normalize(language string) (Language, error) {
	switch strings.ToLower(language) {
	case "typescript", "javascript", "ts", "js", "tsx", "jsx":
		return LangTypeScript, nil
	case "python", "py":
		return LangPython, nil
	case "java":
		return LangJava, nil
	case "vue":
		return LangVue, nil
	default:
		return "", fmt.Errorf("unsupported language: %s", language)
	}
}

// ServerConfig defines how to launch a language server for a Language.
type ServerConfig struct {
	Command  []string       // e.g. ["typescript-language-server", "--stdio"]
	Probe    []string       // optional version probe run before spawn, e.g. ["tsc", "--version"]
	InitOpts map[string]any // LSP initializationOptions (optional)
}

// DefaultServers maps each Language to its default server configuration.
// All servers communicate via stdio. Java is resolved separately because
// jdtls is commonly installed outside PATH (see JavaServerConfig).
var DefaultServers = map[Language]ServerConfig{
	LangTypeScript: {
		Command: []string{"typescript-language-server", "--stdio"},
		Probe:   []string{"tsc", "--version"},
	},
	LangPython: {
		Command: []string{"pyright-langserver", "--stdio"},
		Probe:   []string{"pyright", "--version"},
	},
	LangVue: {
		Command: []string{"vue-language-server", "--stdio"},
		InitOpts: map[string]any{
			"typescript": map[string]any{"tsdk": "node_modules/typescript/lib"},
		},
	},
}

// jdtlsCandidates are common install locations checked before PATH.
var jdtlsCandidates = []string{
	"/usr/local/bin/jdtls",
	"/opt/homebrew/bin/jdtls",
}

// JavaDataDirName is the jdtls workspace-data directory created under the
// workspace root.
const JavaDataDirName = ".jdtls_workspace"

// JavaServerConfig locates the jdtls binary and returns a ServerConfig
// pointing its workspace-data directory under workspace. Returns an error
// when jdtls cannot be found anywhere.
func JavaServerConfig(workspace string) (ServerConfig, error) {
	path := ""
	candidates := append([]string{}, jdtlsCandidates...)
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".local", "bin", "jdtls"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			path = c
			break
		}
	}
	if path == "" {
		p, err := exec.LookPath("jdtls")
		if err != nil {
			return ServerConfig{}, fmt.Errorf("jdtls not found in %v or PATH", candidates)
		}
		path = p
	}
	return ServerConfig{
		Command: []string{path, "-data", filepath.Join(workspace, JavaDataDirName)},
	}, nil
}

// LanguageID returns the textDocument languageId sent to the server for a
// document identified by its normalized language and file extension.
func (l Language) LanguageID(path string) string {
	if l == LangVue && !strings.HasSuffix(strings.ToLower(path), ".vue") {
		return "typescript"
	}
	return string(l)
}

// TempExtension returns the file extension used when synthesizing a scratch
// document path for content-only checks.
func (l Language) TempExtension() string {
	switch l {
	case LangTypeScript:
		return ".ts"
	case LangPython:
		return ".py"
	case LangJava:
		return ".java"
	case LangVue:
		return ".vue"
	default:
		return ".txt"
	}
}

// Extensions returns the file-extension allowlist used by directory checks.
func (l Language) Extensions() []string {
	switch l {
	case LangTypeScript:
		return []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"}
	case LangVue:
		return []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".vue"}
	case LangPython:
		return []string{".py"}
	case LangJava:
		return []string{".java"}
	default:
		return nil
	}
}

// skipFiles are build/config filenames excluded from directory checks. They
// are valid project files but not targets for generated-code validation.
var skipFiles = map[string]bool{
	"vite.config.ts":    true,
	"vite.config.js":    true,
	"webpack.config.js": true,
	"webpack.config.ts": true,
	"rollup.config.js":  true,
	"rollup.config.ts":  true,
	"next.config.js":    true,
	"next.config.ts":    true,
	"tsconfig.json":     true,
	"jsconfig.json":     true,
	"package.json":      true,
	"pom.xml":           true,
	"build.gradle":      true,
}

// skipPrefixes exclude hidden files, Python cache dirs, and vendored deps.
var skipPrefixes = []string{".", "__", "node_modules"}

// SkipPath reports whether a workspace-relative file path should be excluded
// from directory checks: known build/config filenames, and any path whose
// filename or leading path element starts with a skip prefix.
func SkipPath(relPath string) bool {
	name := filepath.Base(relPath)
	if skipFiles[name] {
		return true
	}
	for _, p := range skipPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
		if strings.HasPrefix(filepath.ToSlash(relPath), p) {
			return true
		}
	}
	return false
}

// FileURI converts an absolute filesystem path to a file:// URI.
func FileURI(absPath string) string {
	return "file://" + filepath.ToSlash(absPath)
}
