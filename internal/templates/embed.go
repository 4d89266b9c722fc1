// Package templates embeds the built-in project templates shipped with the binary.
package templates

import (
	"embed"
	"io/fs"
)

// builtinTemplates holds one directory per template:
//   - builtin/<template-name>/template.yaml
//   - builtin/<template-name>/<tree to instantiate>
//
//go:embed all:builtin
var builtinTemplates embed.FS

// BuiltinFS returns the built-in templates rooted so that each top-level
// directory is one template.
func BuiltinFS() fs.FS {
	sub, err := fs.Sub(builtinTemplates, "builtin")
	if err != nil {
		// fs.Sub only fails for invalid paths; "builtin" is a constant.
		panic(err)
	}
	return sub
}
