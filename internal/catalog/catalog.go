package catalog

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/I2S9/sql-query-optimization-benchmarking/pkg/models"
)

// CatalogError reports a malformed query catalog.
type CatalogError struct {
	Source string
	Reason string
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("query catalog %s: %s", e.Source, e.Reason)
}

// headerPattern matches "-- Query N: description" lines. An optional
// "[tags: a,b]" suffix on the description carries category tags.
var (
	headerPattern = regexp.MustCompile(`(?m)^-- Query (\d+):\s*(.+)$`)
	tagsPattern   = regexp.MustCompile(`\[tags:\s*([^\]]+)\]\s*$`)
)

// LoadFile parses benchmark queries from a SQL file. Each query starts
// with a "-- Query N: description" header; everything up to the next
// header (comments stripped) is its SQL text.
func LoadFile(path string) ([]models.QuerySpec, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &CatalogError{Source: path, Reason: err.Error()}
	}
	queries, err := Parse(string(content))
	if err != nil {
		if ce, ok := err.(*CatalogError); ok {
			ce.Source = path
		}
		return nil, err
	}
	return queries, nil
}

// Parse extracts the ordered query sequence from catalog file content.
// Fails if a query id repeats or a query body is empty.
func Parse(content string) ([]models.QuerySpec, error) {
	headers := headerPattern.FindAllStringSubmatchIndex(content, -1)
	if len(headers) == 0 {
		return nil, &CatalogError{Source: "catalog", Reason: "no query headers found"}
	}

	queries := make([]models.QuerySpec, 0, len(headers))
	seen := make(map[string]bool)

	for i, h := range headers {
		num := content[h[2]:h[3]]
		desc := strings.TrimSpace(content[h[4]:h[5]])

		bodyEnd := len(content)
		if i+1 < len(headers) {
			bodyEnd = headers[i+1][0]
		}
		body := content[h[1]:bodyEnd]

		id := "query_" + pad2(num)
		if seen[id] {
			return nil, &CatalogError{Source: "catalog", Reason: fmt.Sprintf("duplicate query id %s", id)}
		}
		seen[id] = true

		sql := cleanSQL(body)
		if sql == "" {
			return nil, &CatalogError{Source: "catalog", Reason: fmt.Sprintf("query %s has empty SQL", id)}
		}

		var categories []string
		if m := tagsPattern.FindStringSubmatch(desc); m != nil {
			for _, tag := range strings.Split(m[1], ",") {
				if tag = strings.TrimSpace(tag); tag != "" {
					categories = append(categories, tag)
				}
			}
			desc = strings.TrimSpace(tagsPattern.ReplaceAllString(desc, ""))
		}

		queries = append(queries, models.QuerySpec{
			ID:         id,
			SQL:        sql,
			Categories: categories,
		})
	}

	return queries, nil
}

// cleanSQL strips comment lines, collapses to one line and drops the
// trailing semicolon so the statement can be wrapped by EXPLAIN.
func cleanSQL(raw string) string {
	var parts []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		parts = append(parts, line)
	}
	sql := strings.Join(parts, " ")
	sql = strings.TrimSuffix(sql, ";")
	return strings.TrimSpace(sql)
}

func pad2(num string) string {
	if len(num) < 2 {
		return "0" + num
	}
	return num
}
