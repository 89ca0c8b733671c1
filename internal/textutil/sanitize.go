package textutil

import (
	"path"
	"strings"
)

// fileNameReplacer replaces path- and URL-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	" ", "-",
	"?", "",
	"#", "",
	"%", "",
	"&", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName reduces a client-supplied filename to a single safe object
// name segment. Directory components are dropped, unsafe characters become
// dashes or are removed, and the extension is lower-cased. Empty results fall
// back to fallback.
func SanitizeFileName(name, fallback string) string {
	name = strings.TrimSpace(name)
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		name = ""
	}
	name = strings.Trim(fileNameReplacer.Replace(name), "-.")
	if name == "" {
		return fallback
	}
	if ext := path.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext) + strings.ToLower(ext)
	}
	return name
}

// SanitizeToken converts a string to a lowercase path-safe token.
// Letters are lowercased, digits and hyphens/underscores are kept, everything
// else becomes an underscore. Returns "unknown" for empty input.
func SanitizeToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_-")
	if out == "" {
		return "unknown"
	}
	return out
}
