// Package prompts renders generation requests for every pipeline stage from
// embedded templates.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"

	"booksmith/llm"
	"booksmith/sanitize"
)

//go:embed templates/*.tmpl
var templateFiles embed.FS

// Kind names a request type, each kind has "<kind>.system" and "<kind>.user"
// templates.
type Kind string

const (
	Concept  Kind = "concept"
	Title    Kind = "title"
	Outline  Kind = "outline"
	Profiles Kind = "profiles"
	Chapter  Kind = "chapter"
	Summary  Kind = "summary"
	Enhance  Kind = "enhance"
	Compress Kind = "compress"
)

// Values is a struct that holds variables we make available for prompt expansion.
type Values struct {
	Genre     string
	Topic     string
	Concept   string
	Title     string
	Outline   string
	Profiles  string
	Context   string
	Chapter   string
	Summaries []string
	Index     int
	Total     int

	// set automatically
	TitleDirective string
}

type Catalog struct {
	tmpl *template.Template
}

func NewCatalog() (*Catalog, error) {
	tmpl, err := template.New("prompts").Funcs(sprig.FuncMap()).ParseFS(templateFiles, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("unable to parse prompt templates: %w", err)
	}
	return &Catalog{tmpl: tmpl}, nil
}

func (c *Catalog) expand(name string, v Values) (string, error) {
	buf := new(bytes.Buffer)
	if err := c.tmpl.ExecuteTemplate(buf, name, v); err != nil {
		return "", fmt.Errorf("unable to expand prompt %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Build returns ordered request messages of the requested kind.
func (c *Catalog) Build(kind Kind, v Values) ([]llm.Message, error) {
	v.TitleDirective = sanitize.TitleDirective

	system, err := c.expand(string(kind)+".system", v)
	if err != nil {
		return nil, err
	}
	user, err := c.expand(string(kind)+".user", v)
	if err != nil {
		return nil, err
	}
	return []llm.Message{llm.System(system), llm.User(user)}, nil
}
