package postgres

import (
	"fmt"

	"library-api/internal/pkg/apperrors"
	"library-api/internal/pkg/query"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

// filterExpressions translates predicates into goqu conditions. columns maps a field name to its column.
func filterExpressions(filter query.Filter, columns map[string]exp.IdentifierExpression) ([]exp.Expression, error) {
	exprs := make([]exp.Expression, 0)
	for _, p := range filter.Predicates() {
		col, ok := columns[p.Field]
		if !ok {
			return nil, fmt.Errorf("%w: unknown filter field %q", apperrors.ErrInvalidArgument, p.Field)
		}
		switch p.Op {
		case query.Equals:
			exprs = append(exprs, col.Eq(p.Value))
		case query.Contains:
			exprs = append(exprs, col.ILike(containsPattern(p.Value)))
		default:
			return nil, fmt.Errorf("%w: unsupported operator %s", apperrors.ErrInvalidArgument, p.Op)
		}
	}
	return exprs, nil
}

func pageWindow(ds *goqu.SelectDataset, page query.PageRequest) *goqu.SelectDataset {
	return ds.Limit(uint(page.Size)).Offset(uint(page.Offset()))
}
