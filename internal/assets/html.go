package assets

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ReloadPath is the websocket endpoint the hot reload client connects to.
const ReloadPath = "/__assetpack/ws"

const defaultTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{ .Title }}</title>
</head>
<body>
<div id="app"></div>
</body>
</html>
`

const reloadClient = `<script>(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "` + ReloadPath + `");
  ws.onmessage = function (e) {
    var msg = JSON.parse(e.data);
    if (msg.type === "reload") { location.reload(); }
  };
})();</script>`

// Shell lists the files the HTML shell references for an entry point.
type Shell struct {
	Scripts []string
	Styles  []string
}

// LoadScripts returns the ordered list of script and stylesheet URLs needed for the
// given entry point, which is relative to the project root.
func (p *Pipeline) LoadScripts(entryPointPath string) (*Shell, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.metadata == nil {
		return nil, ErrNotBuilt
	}

	return p.shellFor(p.metadata, entryPointPath)
}

func (p *Pipeline) shellFor(meta *BuildMetadata, entryPointPath string) (*Shell, error) {
	shell := &Shell{}
	visited := make(map[string]bool)

	for outputPath, info := range meta.Outputs {
		if info.EntryPoint != entryPointPath || !strings.HasSuffix(outputPath, ".js") {
			continue
		}

		visited[outputPath] = true
		shell.Scripts = append(shell.Scripts, p.publicURL(outputPath))
		if info.CSSBundle != "" {
			shell.Styles = append(shell.Styles, p.publicURL(info.CSSBundle))
		}
		p.addDependencies(meta, info, shell, visited)
		return shell, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entryPointPath)
}

func (p *Pipeline) addDependencies(meta *BuildMetadata, output OutputInfo, shell *Shell, visited map[string]bool) {
	for _, imp := range output.Imports {
		if imp.External || visited[imp.Path] {
			continue
		}
		visited[imp.Path] = true

		switch {
		case strings.HasSuffix(imp.Path, ".css"):
			shell.Styles = append(shell.Styles, p.publicURL(imp.Path))
		case strings.HasSuffix(imp.Path, ".js"):
			shell.Scripts = append(shell.Scripts, p.publicURL(imp.Path))
		}

		if chunkInfo, exists := meta.Outputs[imp.Path]; exists {
			p.addDependencies(meta, chunkInfo, shell, visited)
		}
	}
}

// publicURL maps a metafile output path to the URL it is served at from the output
// directory.
func (p *Pipeline) publicURL(outputPath string) string {
	abs := filepath.Join(p.config.Root, filepath.FromSlash(outputPath))
	rel, err := filepath.Rel(p.config.Output.Directory, abs)
	if err != nil {
		rel = outputPath
	}
	return "/" + filepath.ToSlash(rel)
}

// RenderHTML renders the HTML shell template and adds any tags the template does not
// reference itself, the way a generated page would.
func RenderHTML(tmplSource string, shell *Shell, hotReload bool) ([]byte, error) {
	funcs := template.FuncMap{
		"marshal": marshal,
		"safe": func(s string) template.HTML {
			return template.HTML(s) //nolint:gosec
		},
	}

	tmpl, err := template.New("index").Funcs(funcs).Parse(tmplSource)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html template: %w", err)
	}

	data := map[string]any{
		"Title":   "",
		"Scripts": shell.Scripts,
		"Styles":  shell.Styles,
	}

	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, data); err != nil {
		return nil, fmt.Errorf("failed to render html template: %w", err)
	}
	page := buf.String()

	var head, body strings.Builder
	for _, href := range shell.Styles {
		if !strings.Contains(page, href) {
			fmt.Fprintf(&head, "<link rel=\"stylesheet\" href=\"%s\">\n", template.HTMLEscapeString(href))
		}
	}
	for _, src := range shell.Scripts {
		if !strings.Contains(page, src) {
			fmt.Fprintf(&body, "<script src=\"%s\"></script>\n", template.HTMLEscapeString(src))
		}
	}
	if hotReload {
		body.WriteString(reloadClient + "\n")
	}

	page = insertBefore(page, "</head>", head.String())
	page = insertBefore(page, "</body>", body.String())

	return []byte(page), nil
}

func insertBefore(page, marker, snippet string) string {
	if snippet == "" {
		return page
	}
	idx := strings.LastIndex(strings.ToLower(page), marker)
	if idx == -1 {
		return page + snippet
	}
	return page[:idx] + snippet + page[idx:]
}

// writeHTML renders the shell for the main entry into the output directory.
func (p *Pipeline) writeHTML(meta *BuildMetadata, templatePath string, hotReload bool) error {
	source := defaultTemplate
	data, err := os.ReadFile(templatePath)
	switch {
	case err == nil:
		source = string(data)
	case errors.Is(err, fs.ErrNotExist):
		// fall back to the built in page
	default:
		return err
	}

	shell, err := p.shellFor(meta, p.mainEntry())
	if err != nil {
		return err
	}

	page, err := RenderHTML(source, shell, hotReload)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(p.config.Output.Directory, "index.html"), page, 0o644) //nolint:gosec
}

// mainEntry returns the last file entry relative to the root, the form esbuild uses
// in the metafile.
func (p *Pipeline) mainEntry() string {
	for i := len(p.config.Entries) - 1; i >= 0; i-- {
		entry := p.config.Entries[i]
		if !filepath.IsAbs(entry) {
			continue
		}
		rel, err := filepath.Rel(p.config.Root, entry)
		if err != nil {
			return entry
		}
		return filepath.ToSlash(rel)
	}
	return ""
}

func marshal(value any) string {
	buf := new(bytes.Buffer)

	if err := json.NewEncoder(buf).Encode(value); err != nil {
		panic(errors.New("context can only be json serializable"))
	}

	return buf.String()
}
