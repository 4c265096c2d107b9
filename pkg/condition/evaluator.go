// Package condition evaluates field-comparison predicates against entity
// snapshots. Evaluation is deterministic and side-effect free so runs can be
// replayed and resumed.
package condition

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/flowpilot-io/flowpilot/pkg/models"
)

// Evaluate applies the operator to the field value and target. Numeric
// comparisons coerce both sides and fail closed: a side that is not
// numerically comparable yields false. `contains` on a non-string, non-array
// left-hand value returns false rather than erroring.
func Evaluate(fieldValue any, operator models.Operator, target any) bool {
	switch operator {
	case models.OperatorEquals:
		return equals(fieldValue, target)
	case models.OperatorNotEquals:
		return !equals(fieldValue, target)
	case models.OperatorContains:
		return contains(fieldValue, target)
	case models.OperatorGreaterThan:
		left, right, ok := numericPair(fieldValue, target)

		return ok && left > right
	case models.OperatorLessThan:
		left, right, ok := numericPair(fieldValue, target)

		return ok && left < right
	default:
		return false
	}
}

func equals(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}

	// JSON decoding turns numbers into float64; compare numerically when
	// both sides coerce so 1 == 1.0 == "1".
	leftNum, leftOK := toFloat(left)
	rightNum, rightOK := toFloat(right)

	if leftOK && rightOK {
		return leftNum == rightNum
	}

	leftStr, leftIsStr := left.(string)
	rightStr, rightIsStr := right.(string)

	if leftIsStr && rightIsStr {
		return leftStr == rightStr
	}

	if leftIsStr || rightIsStr {
		return stringify(left) == stringify(right) && stringify(left) != ""
	}

	return reflect.DeepEqual(left, right)
}

func contains(haystack, needle any) bool {
	target := stringify(needle)

	switch v := haystack.(type) {
	case string:
		return strings.Contains(v, target)
	case []string:
		for _, item := range v {
			if item == target {
				return true
			}
		}

		return false
	case []any:
		for _, item := range v {
			if equals(item, needle) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

func numericPair(left, right any) (float64, float64, bool) {
	leftNum, leftOK := toFloat(left)
	rightNum, rightOK := toFloat(right)

	return leftNum, rightNum, leftOK && rightOK
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)

		return parsed, err == nil
	case bool:
		if v {
			return 1, true
		}

		return 0, true
	default:
		return 0, false
	}
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
