package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/squirrel"
	perrors "github.com/kristinauko/BookStoreInventory/internal/errors"
)

// AllColumns is the default projection in table order.
var AllColumns = []string{ColumnID, ColumnName, ColumnPrice, ColumnQuantity, ColumnSupplier, ColumnPhone}

var integerColumns = map[string]bool{
	ColumnID:       true,
	ColumnPrice:    true,
	ColumnQuantity: true,
}

// columnAliases maps accepted spellings onto table columns.
var columnAliases = map[string]string{
	ColumnID:         ColumnID,
	"id":             ColumnID,
	ColumnName:       ColumnName,
	ColumnPrice:      ColumnPrice,
	ColumnQuantity:   ColumnQuantity,
	ColumnSupplier:   ColumnSupplier,
	"supplier_name":  ColumnSupplier,
	ColumnPhone:      ColumnPhone,
	"supplier_phone": ColumnPhone,
}

// ResolveColumn maps a column name or alias onto the table column.
func ResolveColumn(name string) (string, error) {
	col, ok := columnAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: unknown column %q", perrors.ErrInvalidQuery, name)
	}
	return col, nil
}

// ResolveColumns resolves a projection; an empty list selects all columns.
// Duplicates are dropped, order is kept.
func ResolveColumns(names []string) ([]string, error) {
	if len(names) == 0 {
		out := make([]string, len(AllColumns))
		copy(out, AllColumns)
		return out, nil
	}
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		col, err := ResolveColumn(n)
		if err != nil {
			return nil, err
		}
		if !seen[col] {
			seen[col] = true
			out = append(out, col)
		}
	}
	return out, nil
}

// parseSortOrder turns "name, price DESC" into ORDER BY terms.
func parseSortOrder(order string) ([]string, error) {
	if strings.TrimSpace(order) == "" {
		return []string{ColumnID + " ASC"}, nil
	}
	var terms []string
	for _, part := range strings.Split(order, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 || len(fields) > 2 {
			return nil, fmt.Errorf("%w: bad sort term %q", perrors.ErrInvalidQuery, strings.TrimSpace(part))
		}
		col, err := ResolveColumn(fields[0])
		if err != nil {
			return nil, err
		}
		direction := "ASC"
		if len(fields) == 2 {
			direction = strings.ToUpper(fields[1])
			if direction != "ASC" && direction != "DESC" {
				return nil, fmt.Errorf("%w: bad sort direction %q", perrors.ErrInvalidQuery, fields[1])
			}
		}
		terms = append(terms, col+" "+direction)
	}
	return terms, nil
}

// buildFilter resolves filter columns and converts text values of integer columns.
func buildFilter(filter map[string]any) (squirrel.Eq, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	eq := make(squirrel.Eq, len(filter))
	for name, value := range filter {
		col, err := ResolveColumn(name)
		if err != nil {
			return nil, err
		}
		if s, ok := value.(string); ok && integerColumns[col] {
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s must be an integer, got %q", perrors.ErrInvalidQuery, col, s)
			}
			value = n
		}
		eq[col] = value
	}
	return eq, nil
}

// scanTargets returns the destinations for cols in p.
func scanTargets(p *Product, cols []string) []any {
	dest := make([]any, len(cols))
	for i, col := range cols {
		switch col {
		case ColumnID:
			dest[i] = &p.ID
		case ColumnName:
			dest[i] = &p.Name
		case ColumnPrice:
			dest[i] = &p.Price
		case ColumnQuantity:
			dest[i] = &p.Quantity
		case ColumnSupplier:
			dest[i] = &p.Supplier
		case ColumnPhone:
			dest[i] = &p.Phone
		}
	}
	return dest
}
