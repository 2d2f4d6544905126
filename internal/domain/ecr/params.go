package ecr

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ecr/ecrviewer/internal/platform/gate"
)

type paramValidator func(q *gate.Query) bool

func checkPositiveInt(key string) paramValidator {
	return func(q *gate.Query) bool {
		if _, ok := positiveInt(q.Get(key)); !ok {
			return q.Del(key)
		}
		return false
	}
}

func checkColumnID(q *gate.Query) bool {
	if !IsSortableColumn(q.Get(ParamColumnID)) {
		// direction means nothing without its column
		changed := q.Del(ParamColumnID)
		return q.Del(ParamDirection) || changed
	}
	return false
}

func checkDirection(q *gate.Query) bool {
	if !IsSortDirection(q.Get(ParamDirection)) {
		return q.Del(ParamDirection)
	}
	return false
}

func checkDates(q *gate.Query) bool {
	dateRange := q.Get(ParamDateRange)
	dates, hasDates := q.Lookup(ParamDates)
	if (dateRange != "" || dates != "") && !IsValidParamDates(dateRange, dates) {
		changed := q.Del(ParamDates)
		return q.Del(ParamDateRange) || changed
	}
	if dateRange != RangeCustom && hasDates {
		return q.Del(ParamDates)
	}
	return false
}

// libraryParams lists the validated parameters in check order. condition
// and search only get the duplicate check.
var libraryParams = []struct {
	key      string
	validate paramValidator
}{
	{ParamItemsPerPage, checkPositiveInt(ParamItemsPerPage)},
	{ParamPage, checkPositiveInt(ParamPage)},
	{ParamColumnID, checkColumnID},
	{ParamDirection, checkDirection},
	{ParamCondition, nil},
	{ParamDates, checkDates},
	{ParamDateRange, checkDates},
	{ParamSearch, nil},
}

// SanitizeQuery repairs the library parameters in q: repeated parameters
// keep their first value and invalid values are dropped. Unknown parameters
// are left alone. It reports whether q changed.
func SanitizeQuery(q *gate.Query) bool {
	changed := false
	for _, p := range libraryParams {
		if !q.Has(p.key) {
			continue
		}
		if q.KeepFirst(p.key) {
			changed = true
		}
		if p.validate != nil && p.validate(q) {
			changed = true
		}
	}
	return changed
}

// NewParamStage returns the gate stage that sanitizes the library query
// string on libraryPath and redirects once to the corrected URL.
func NewParamStage(libraryPath string) gate.Stage {
	libraryPath = strings.TrimSuffix(libraryPath, "/")
	return gate.StageFunc("params", func(c echo.Context, _ *gate.State) (gate.Result, error) {
		u := c.Request().URL
		if strings.TrimSuffix(u.Path, "/") != libraryPath {
			return gate.Continue, nil
		}

		q := gate.ParseQuery(u.RawQuery)
		if !SanitizeQuery(q) {
			return gate.Continue, nil
		}
		return gate.Halt, c.Redirect(http.StatusTemporaryRedirect, gate.WithQuery(u.Path, q))
	})
}
