package feed

import (
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"strings"

	"github.com/athebyme/catalog-sync/internal/domain/models"
	"github.com/athebyme/catalog-sync/pkg/interfaces"
)

// utf8BOM добавляется в начало CSV: Excel без него ломает кириллицу
// и диакритику
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Renderer строит фиды по схеме. Результат детерминирован: одинаковые
// товары в одинаковом порядке дают байт-в-байт одинаковый фид
type Renderer struct {
	schema Schema
	logger interfaces.LoggerPort
}

// NewRenderer создает рендерер фида
func NewRenderer(schema Schema, logger interfaces.LoggerPort) *Renderer {
	return &Renderer{schema: schema, logger: logger}
}

// cell возвращает значение колонки с подстановкой сигнального значения
// вместо пустого обязательного поля
func (r *Renderer) cell(col Column, p *models.CanonicalProduct) string {
	value := col.Extract(p)
	if value == "" && col.Required {
		r.logger.Warn("У товара отсутствует обязательное поле фида",
			interfaces.LogField{Key: "product_id", Value: p.ID},
			interfaces.LogField{Key: "column", Value: col.Header})
		return missingFieldSentinel
	}
	return value
}

// RenderCSV строит CSV фид с заголовком и BOM
func (r *Renderer) RenderCSV(products []*models.CanonicalProduct) []byte {
	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)

	header := make([]string, len(r.schema.Columns))
	for i, col := range r.schema.Columns {
		header[i] = col.Header
	}
	w.Write(header)

	row := make([]string, len(r.schema.Columns))
	for _, p := range products {
		for i, col := range r.schema.Columns {
			row[i] = r.cell(col, p)
		}
		w.Write(row)
	}

	w.Flush()
	return buf.Bytes()
}

// RenderXML строит RSS 2.0 фид с пространством имен g:
// (формат Google Merchant, его же принимает Facebook)
func (r *Renderer) RenderXML(products []*models.CanonicalProduct) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<rss version="2.0" xmlns:g="http://base.google.com/ns/1.0">` + "\n")
	b.WriteString("<channel>\n")
	b.WriteString("<title>" + xmlEscape(r.schema.Name) + "</title>\n")
	b.WriteString("<link>" + xmlEscape(strings.TrimRight(r.schema.StoreURL, "/")) + "</link>\n")
	b.WriteString("<description>Products feed</description>\n")

	for _, p := range products {
		b.WriteString("<item>\n")
		for _, col := range r.schema.Columns {
			value := r.cell(col, p)
			if value == "" {
				continue
			}
			if col.CDATA {
				b.WriteString("<g:" + col.Header + "><![CDATA[" + value + "]]></g:" + col.Header + ">\n")
			} else {
				b.WriteString("<g:" + col.Header + ">" + xmlEscape(value) + "</g:" + col.Header + ">\n")
			}
		}
		b.WriteString("</item>\n")
	}

	b.WriteString("</channel>\n")
	b.WriteString("</rss>\n")
	return []byte(b.String())
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
