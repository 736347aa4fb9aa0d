package archive

import (
	"fmt"
	"html/template"
	"os"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<style>
  body { font-family: Arial, sans-serif; margin: 2rem; }
  h1 { color: #333; border-bottom: 2px solid #eee; }
  ol { list-style-type: none; padding: 0; }
  li { margin: 0.8rem 0; }
  a { text-decoration: none; color: #0066cc; }
  a:hover { text-decoration: underline; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<ol>
{{- range .Entries}}
  <li><a href="{{.File}}">{{.Title}}</a></li>
{{- end}}
</ol>
<p>Total chapters: {{len .Entries}}</p>
</body>
</html>
`))

// WriteIndex writes the book index listing completed chapters in canonical
// order. It is written exactly once per run, after every chapter has settled.
func WriteIndex(path, title string, entries []IndexEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index %s: %w", path, err)
	}
	defer f.Close()
	data := struct {
		Title   string
		Entries []IndexEntry
	}{Title: title, Entries: entries}
	if err := indexTemplate.Execute(f, data); err != nil {
		return fmt.Errorf("render index: %w", err)
	}
	return nil
}
