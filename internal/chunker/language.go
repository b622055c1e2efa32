package chunker

import (
	"bytes"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// languageByExtension maps file extensions to language tags.
var languageByExtension = map[string]string{
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".go":    "go",
	".java":  "java",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".rb":    "ruby",
	".php":   "php",
	".rs":    "rust",
	".swift": "swift",
	".kt":    "kotlin",
	".scala": "scala",
	".sh":    "shell",
	".bash":  "shell",
	".zsh":   "shell",
	".md":    "markdown",
	".txt":   "text",
	".rst":   "text",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".xml":   "xml",
	".html":  "html",
	".css":   "css",
	".scss":  "css",
	".sql":   "sql",
	".proto": "proto",
}

// languageByName maps well-known extensionless file names to language tags.
var languageByName = map[string]string{
	"dockerfile": "dockerfile",
	"makefile":   "makefile",
	"rakefile":   "ruby",
	"gemfile":    "ruby",
	"readme":     "text",
	"license":    "text",
	"changelog":  "text",
	"authors":    "text",
}

// DetectLanguage infers a language tag from a file path.
// Returns "" when nothing is known about the file.
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := languageByExtension[ext]; ok {
		return lang
	}
	name := strings.ToLower(filepath.Base(path))
	if lang, ok := languageByName[name]; ok {
		return lang
	}
	return ""
}

// isBinary reports whether content looks like binary data: a NUL byte or
// invalid UTF-8 marks the file as binary and it is skipped.
func isBinary(content []byte) bool {
	if bytes.IndexByte(content, 0) >= 0 {
		return true
	}
	return !utf8.Valid(content)
}
