package constants

import (
	"path"
	"strings"
)

// SupportedExtensions holds the fax formats accepted for intake (lowercased, without '.').
var SupportedExtensions = map[string]struct{}{
	"pdf":  {},
	"tiff": {},
	"tif":  {},
}

// FolderSeparator separates the per-document folder from the file name in organized paths.
const FolderSeparator = "/"

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsSupported reports whether p carries one of the supported fax extensions.
func IsSupported(p string) bool {
	_, ok := SupportedExtensions[NormalizeExt(path.Ext(p))]
	return ok
}
