// Package assets embeds the map page template and its static resources.
package assets

import _ "embed"

//go:embed index.html.tpl
var IndexTemplate string

//go:embed style.css
var Style string

//go:embed script.js
var Script string

//go:embed favicon.svg
var Favicon []byte
