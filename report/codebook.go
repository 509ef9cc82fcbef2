package report

import "sort"

// CodebookRow describes one plan column for the exported data dictionary.
type CodebookRow struct {
	Field string
	Table string
	Type  string
	Title string
	// Choices lists "code - title" pairs, the latest title per code.
	Choices      []string
	Required     bool
	Collection   bool
	Publications []string
}

// Codebook derives the data dictionary from a column plan: one row per
// column, carrying the latest version's metadata and the union of every
// version's choice codes.
func Codebook(plan *ColumnPlan) []CodebookRow {
	rows := make([]CodebookRow, 0, len(plan.Columns))
	for _, col := range plan.Columns {
		latest := col.latest()
		rows = append(rows, CodebookRow{
			Field:        col.Key,
			Table:        plan.Schema,
			Type:         string(col.Type),
			Title:        latest.Title,
			Choices:      choiceUnion(col),
			Required:     latest.IsRequired,
			Collection:   latest.IsCollection,
			Publications: col.Publications,
		})
	}
	return rows
}

// choiceUnion merges choice codes across the column's versions; the most
// recent title per code wins.
func choiceUnion(col *Column) []string {
	if col.Choice != nil {
		return []string{col.Choice.Name + " - " + col.Choice.Title}
	}

	titles := make(map[string]string)
	orders := make(map[string]int)
	for _, a := range col.Attributes {
		for _, c := range a.Choices {
			titles[c.Name] = c.Title
			orders[c.Name] = c.Order
		}
	}
	if len(titles) == 0 {
		return nil
	}

	codes := make([]string, 0, len(titles))
	for code := range titles {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool {
		if orders[codes[i]] != orders[codes[j]] {
			return orders[codes[i]] < orders[codes[j]]
		}
		return codes[i] < codes[j]
	})

	out := make([]string, len(codes))
	for i, code := range codes {
		out[i] = code + " - " + titles[code]
	}
	return out
}
