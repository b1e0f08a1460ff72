package sqlbuild

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/triage-ai/sqlgate/internal/apperr"
)

// maxExactInt is the first integer a float64 cannot tell apart from its
// neighbour.
const maxExactInt = 1 << 53

// BindValue converts a decoded JSON value into a driver argument. Integral
// numbers bind as int64 so they reach INT/BIGINT columns without a float
// round-trip; nested objects and lists have no column representation.
//
// float64 input has already been through a float decode, so an integral
// value at or beyond 2^53 may not be what the caller sent and is refused.
func BindValue(column string, v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return x, nil
		}
		if math.Abs(x) >= maxExactInt {
			return nil, apperr.New(apperr.ValidationError,
				"column %q: integer %.0f exceeds 2^53 and may have lost precision; send it as a string", column, x)
		}
		return int64(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		if !strings.ContainsAny(x.String(), ".eE") {
			return nil, apperr.New(apperr.ValidationError, "column %q: integer %s is out of BIGINT range", column, x.String())
		}
		f, err := x.Float64()
		if err != nil {
			return nil, apperr.New(apperr.ValidationError, "column %q: invalid number %q", column, x.String())
		}
		return f, nil
	default:
		return nil, apperr.New(apperr.ValidationError, "column %q: unsupported value of type %T", column, v)
	}
}
