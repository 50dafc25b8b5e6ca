// Package assets holds the files shipped inside the binaries.
package assets

import "embed"

// FS holds the email templates and the common passwords list.
// templates are listed by pattern so that the _base layouts are kept.
//go:embed templates/email/* common-passwords.txt.gz
var FS embed.FS
