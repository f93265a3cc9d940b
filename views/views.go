// Package views holds the account page templates.
package views

import (
	"embed"
	"net/http"

	"github.com/gofiber/template/django/v3"
)

//go:embed *.html auth/*.html cookies/*.html errors/*.html notifications/*.html partials/*.html
var FS embed.FS

// Extension is the template file extension.
const Extension = ".html"

// NewEngine returns a django engine over the embedded templates. Reload
// re-parses templates on every render, for local development.
func NewEngine(reload bool) *django.Engine {
	engine := django.NewPathForwardingFileSystem(http.FS(FS), "/", Extension)
	engine.Reload(reload)
	return engine
}
