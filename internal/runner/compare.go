package runner

import (
	"fmt"
	"strconv"
)

// compare evaluates a branch predicate against the runtime value of its left
// operand. When both operands parse as numbers the comparison is numeric;
// otherwise operands are compared as strings, lexicographically for the
// relational operators.
func compare(left any, operator string, right any) (bool, error) {
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if lok && rok {
		return compareFloats(lf, operator, rf)
	}
	return compareStrings(fmt.Sprint(left), operator, fmt.Sprint(right))
}

func compareFloats(left float64, operator string, right float64) (bool, error) {
	switch operator {
	case "==":
		return left == right, nil
	case "!=":
		return left != right, nil
	case ">":
		return left > right, nil
	case "<":
		return left < right, nil
	case ">=":
		return left >= right, nil
	case "<=":
		return left <= right, nil
	}
	return false, fmt.Errorf("unsupported operator %q", operator)
}

func compareStrings(left, operator, right string) (bool, error) {
	switch operator {
	case "==":
		return left == right, nil
	case "!=":
		return left != right, nil
	case ">":
		return left > right, nil
	case "<":
		return left < right, nil
	case ">=":
		return left >= right, nil
	case "<=":
		return left <= right, nil
	}
	return false, fmt.Errorf("unsupported operator %q", operator)
}

func toFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case float32:
		return float64(value), true
	case float64:
		return value, true
	case string:
		f, err := strconv.ParseFloat(value, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
