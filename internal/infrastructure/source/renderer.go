package source

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
)

// NullMarker stands in for missing or null fields so offsets stay reproducible.
const NullMarker = "null"

var DefaultFields = []string{
	"Data_Reclamacao",
	"Órgão",
	"Local",
	"Setor",
	"Descrição",
	"Status",
	"Data_Resolucao",
}

// Renderer turns records into documents using a fixed field order.
type Renderer struct {
	fields []string
}

func NewRenderer(fields []string) *Renderer {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	return &Renderer{fields: append([]string(nil), fields...)}
}

func (r *Renderer) Fields() []string {
	return append([]string(nil), r.fields...)
}

// DocumentID is derived from the record position in the source.
func DocumentID(index int) string {
	return fmt.Sprintf("doc-%06d", index)
}

func (r *Renderer) Render(sourceName string, records []domain.Record) []domain.Document {
	docs := make([]domain.Document, 0, len(records))
	for i, record := range records {
		docs = append(docs, domain.Document{
			ID:      DocumentID(i),
			Content: r.RenderRecord(record),
			Metadata: map[string]any{
				"index":  i,
				"source": sourceName,
			},
		})
	}
	return docs
}

func (r *Renderer) RenderRecord(record domain.Record) string {
	lines := make([]string, len(r.fields))
	for i, field := range r.fields {
		lines[i] = field + ": " + formatValue(record[field])
	}
	return strings.Join(lines, "\n")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return NullMarker
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return formatFloat(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case []any, map[string]any:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(raw)
	default:
		return fmt.Sprint(val)
	}
}

func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprint(f)
}
