package smtp

import (
	"bytes"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/utils"
)

const summaryTemplate = `The data sync has been completed successfully.
- Items updated: {{ .Updated }}
- New items added: {{ .Inserted }}
- Failed syncs: {{ failedTables .FailedTables }}
- Failed rows: {{ .FailedRowCount }}

Run {{ .RunID }} ({{ .Mode }}) processed {{ .ItemsConsidered }} message(s) and {{ .FilesParsed }} file(s).
{{- if .Watermark }}
Watermark: {{ watermark .Watermark }}
{{- end }}
{{- if .Tables }}

Tables:
{{- range .Tables }}
- {{ .Table }}: {{ .Inserted }} inserted, {{ .Updated }} updated, {{ len .FailedRows }} failed
{{- if .Condition }} [{{ .Condition }}{{ if .Detail }}: {{ .Detail }}{{ end }}]{{ end }}
{{- end }}
{{- end }}
{{- if .FilesFailed }}

Files that could not be read:
{{- range .FilesFailed }}
- {{ base .Path }}: {{ .Reason }}
{{- end }}
{{- end }}
`

var summaryTmpl = template.Must(template.New("summary").Funcs(template.FuncMap{
	"failedTables": func(tables []string) string {
		if len(tables) == 0 {
			return "none"
		}
		return strings.Join(tables, ", ")
	},
	"watermark": func(ts *time.Time) string {
		return utils.FormatWatermark(*ts)
	},
	"base": filepath.Base,
}).Parse(summaryTemplate))

// RenderSummary renders the plain text notification body.
func RenderSummary(summary *models.RunSummary) (string, error) {
	var buf bytes.Buffer
	if err := summaryTmpl.Execute(&buf, summary); err != nil {
		return "", err
	}
	return buf.String(), nil
}
