package server

import (
	"fmt"
	"html/template"
	"net/http"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/peterlharding/dserver/pkg/source"
)

var statusTemplate = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head><title>Served Tables</title></head>
<body>
<h1>dserver {{.Version}}</h1>
<p>Environment: {{if .Environment}}{{.Environment}}{{else}}-{{end}} &middot; Up {{.Uptime}} &middot; {{.Connections}} open connections</p>
<hr>
<table>
<tr><th width="60">Handle</th><th width="160">Name</th><th width="120">Type</th><th width="100">Size</th><th width="240">Notes</th></tr>
{{- range .Rows}}
<tr><td>{{.Handle}}</td><td>{{if .Sample}}<a href="/?msg={{.Sample}}">{{.Name}}</a>{{else}}{{.Name}}{{end}}</td><td>{{.Type}}</td><td align="right">{{.Size}}</td><td>{{.Summary}}</td></tr>
{{- end}}
</table>
<hr>
</body>
</html>
`))

type statusRow struct {
	Handle  int
	Name    string
	Type    source.Type
	Size    string
	Summary string
	Sample  template.URL
}

type statusPage struct {
	Version     string
	Environment string
	Uptime      string
	Connections int
	Rows        []statusRow
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	p := message.NewPrinter(language.English)

	page := statusPage{
		Version:     s.version,
		Environment: s.environment,
		Uptime:      s.Uptime().Truncate(time.Second).String(),
		Connections: s.conns.Count(),
	}
	if s.sources != nil {
		for i, src := range s.sources.All() {
			row := statusRow{
				Handle:  i,
				Name:    src.Name(),
				Type:    src.Type(),
				Size:    p.Sprintf("%d", src.Attributes().Size),
				Summary: src.Summary(),
			}
			if sample := sampleRequest(i, src); sample != "" {
				row.Sample = template.URL(queryEscape(sample))
			}
			page.Rows = append(page.Rows, row)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusTemplate.Execute(w, page); err != nil {
		s.logger.Error("failed to render status page", "error", err)
	}
}

// sampleRequest builds a request that reads from src, for the status page
// links. Keyed types use their first key.
func sampleRequest(handle int, src source.Source) string {
	firstKey := func() string {
		if k, ok := src.(source.Keyer); ok {
			if keys := k.Keys(); len(keys) > 0 {
				return keys[0]
			}
		}
		return ""
	}

	switch src.(type) {
	case source.NextReader:
		return fmt.Sprintf("GETN|%d", handle)
	case source.IndexReader:
		return fmt.Sprintf("GETI|%d|0", handle)
	}

	key := firstKey()
	if key == "" {
		return ""
	}
	switch src.(type) {
	case source.HashReader:
		return fmt.Sprintf("GETH|%d|%s", handle, key)
	case source.GroupReader:
		return fmt.Sprintf("GETK|%d|%s", handle, key)
	case source.KeyReader:
		return fmt.Sprintf("GETKS|%d|%s", handle, key)
	case source.BarcodeReader:
		return fmt.Sprintf("GETB|%d|%s", handle, key)
	}
	return ""
}
