package builtin

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/MrWong99/jarvis/internal/capability"
)

var errBadExpression = errors.New("unsupported expression")

// spokenOperators rewrites spoken arithmetic into symbols. Longer phrases
// come first so "divided by" wins over "by".
var spokenOperators = compileOperators([]struct{ from, to string }{
	{"multiplied by", "*"},
	{"divided by", "/"},
	{"to the power of", "^"},
	{"raised to", "^"},
	{"over", "/"},
	{"times", "*"},
	{"x", "*"},
	{"plus", "+"},
	{"add", "+"},
	{"minus", "-"},
	{"subtract", "-"},
	{"mod", "%"},
	{"modulo", "%"},
	{"percent of", "/100*"},
})

type operator struct {
	re *regexp.Regexp
	to string
}

func compileOperators(ops []struct{ from, to string }) []operator {
	out := make([]operator, len(ops))
	for i, op := range ops {
		out[i] = operator{re: regexp.MustCompile(`\b` + regexp.QuoteMeta(op.from) + `\b`), to: " " + op.to + " "}
	}
	return out
}

var (
	squaredRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*squared`)
	cubedRe   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*cubed`)
	sqrtRe    = regexp.MustCompile(`square root of\s*(\d+(?:\.\d+)?)`)
	powerRe   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*\^\s*(\d+(?:\.\d+)?)`)
	// "subtract 3 from 10" and "add 3 to 10" put the operands in reverse.
	subtractFromRe = regexp.MustCompile(`\bsubtract\s+(\d+(?:\.\d+)?)\s+from\s+(\d+(?:\.\d+)?)`)
	addToRe        = regexp.MustCompile(`\badd\s+(\d+(?:\.\d+)?)\s+to\s+(\d+(?:\.\d+)?)`)
	// allowedExpr is the character set left after function names are removed.
	allowedExpr = regexp.MustCompile(`^[0-9+\-*/%.() ;]+$`)
	fillerRe    = regexp.MustCompile(`^(what is|what's|whats|calculate|compute|how much is)\s+`)
)

// ToExpression converts spoken arithmetic ("5 plus 3 times 2", "9 squared")
// into a jq arithmetic expression.
func ToExpression(spoken string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(spoken))
	s = strings.TrimRight(s, "?.! ")
	s = fillerRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "×", "*")
	s = strings.ReplaceAll(s, "÷", "/")

	s = subtractFromRe.ReplaceAllString(s, "$2 - $1")
	s = addToRe.ReplaceAllString(s, "$2 + $1")
	s = sqrtRe.ReplaceAllString(s, "($1|sqrt)")
	s = squaredRe.ReplaceAllString(s, "pow($1;2)")
	s = cubedRe.ReplaceAllString(s, "pow($1;3)")
	for _, op := range spokenOperators {
		s = op.re.ReplaceAllString(s, op.to)
	}
	s = powerRe.ReplaceAllString(s, "pow($1;$2)")
	s = strings.Join(strings.Fields(s), " ")

	check := strings.NewReplacer("pow(", "(", "|sqrt", "").Replace(s)
	if s == "" || !allowedExpr.MatchString(check) {
		return "", fmt.Errorf("%w: %q", errBadExpression, spoken)
	}
	return s, nil
}

// Evaluate computes a jq arithmetic expression produced by [ToExpression].
func Evaluate(ctx context.Context, expr string) (float64, error) {
	q, err := gojq.Parse(expr)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", expr, err)
	}
	v, ok := q.RunWithContext(ctx, nil).Next()
	if !ok {
		return 0, fmt.Errorf("%w: no result", errBadExpression)
	}
	switch n := v.(type) {
	case error:
		return 0, n
	case int:
		return float64(n), nil
	case float64:
		if math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, fmt.Errorf("%w: result is not a number", errBadExpression)
		}
		return n, nil
	case *big.Int:
		f, _ := new(big.Float).SetInt(n).Float64()
		return f, nil
	default:
		return 0, fmt.Errorf("%w: result %T", errBadExpression, v)
	}
}

// FormatNumber renders n without trailing zeros, rounded to 6 decimals.
func FormatNumber(n float64) string {
	n = math.Round(n*1e6) / 1e6
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func calculate(ctx context.Context, req capability.Request) capability.Result {
	spoken := req.Param("expression")
	if spoken == "" {
		spoken = req.Raw
	}
	expr, err := ToExpression(spoken)
	if err != nil {
		return capability.Fail("I couldn't understand that calculation")
	}
	v, err := Evaluate(ctx, expr)
	if err != nil {
		if msg := err.Error(); strings.HasPrefix(msg, "cannot divide") || strings.HasPrefix(msg, "cannot modulo") {
			return capability.Fail("Cannot divide by zero")
		}
		return capability.Fail("I couldn't calculate %s", spoken)
	}
	return capability.OK("The answer is %s", FormatNumber(v))
}

// ── unit conversion ──────────────────────────────────────────────────────────

type unit struct {
	kind   string
	factor float64 // to the kind's base unit
}

var units = map[string]unit{
	"mm": {"length", 0.001}, "millimeter": {"length", 0.001}, "millimeters": {"length", 0.001},
	"cm": {"length", 0.01}, "centimeter": {"length", 0.01}, "centimeters": {"length", 0.01},
	"m": {"length", 1}, "meter": {"length", 1}, "meters": {"length", 1},
	"km": {"length", 1000}, "kilometer": {"length", 1000}, "kilometers": {"length", 1000},
	"in": {"length", 0.0254}, "inch": {"length", 0.0254}, "inches": {"length", 0.0254},
	"ft": {"length", 0.3048}, "foot": {"length", 0.3048}, "feet": {"length", 0.3048},
	"yd": {"length", 0.9144}, "yard": {"length", 0.9144}, "yards": {"length", 0.9144},
	"mi": {"length", 1609.344}, "mile": {"length", 1609.344}, "miles": {"length", 1609.344},

	"mg": {"weight", 0.001}, "milligram": {"weight", 0.001}, "milligrams": {"weight", 0.001},
	"g": {"weight", 1}, "gram": {"weight", 1}, "grams": {"weight", 1},
	"kg": {"weight", 1000}, "kilogram": {"weight", 1000}, "kilograms": {"weight", 1000},
	"oz": {"weight", 28.349523125}, "ounce": {"weight", 28.349523125}, "ounces": {"weight", 28.349523125},
	"lb": {"weight", 453.59237}, "lbs": {"weight", 453.59237}, "pound": {"weight", 453.59237}, "pounds": {"weight", 453.59237},

	"ml": {"volume", 0.001}, "milliliter": {"volume", 0.001}, "milliliters": {"volume", 0.001},
	"l": {"volume", 1}, "liter": {"volume", 1}, "liters": {"volume", 1},
	"cup": {"volume", 0.2365882365}, "cups": {"volume", 0.2365882365},
	"pint": {"volume", 0.473176473}, "pints": {"volume", 0.473176473},
	"quart": {"volume", 0.946352946}, "quarts": {"volume", 0.946352946},
	"gallon": {"volume", 3.785411784}, "gallons": {"volume", 3.785411784},

	"c": {"temperature", 0}, "celsius": {"temperature", 0},
	"f": {"temperature", 0}, "fahrenheit": {"temperature", 0},
	"k": {"temperature", 0}, "kelvin": {"temperature", 0},
}

// Convert converts value between two units of the same kind.
func Convert(value float64, from, to string) (float64, error) {
	from, to = strings.ToLower(strings.TrimSpace(from)), strings.ToLower(strings.TrimSpace(to))
	uf, ok1 := units[from]
	ut, ok2 := units[to]
	if !ok1 || !ok2 {
		return 0, fmt.Errorf("unknown unit %q or %q", from, to)
	}
	if uf.kind != ut.kind {
		return 0, fmt.Errorf("cannot convert %s to %s", uf.kind, ut.kind)
	}
	if uf.kind == "temperature" {
		return convertTemperature(value, from[:1], to[:1]), nil
	}
	return value * uf.factor / ut.factor, nil
}

func convertTemperature(v float64, from, to string) float64 {
	var c float64
	switch from {
	case "f":
		c = (v - 32) * 5 / 9
	case "k":
		c = v - 273.15
	default:
		c = v
	}
	switch to {
	case "f":
		return c*9/5 + 32
	case "k":
		return c + 273.15
	default:
		return c
	}
}

func convertUnits(_ context.Context, req capability.Request) capability.Result {
	value, err := strconv.ParseFloat(req.Param("value"), 64)
	if err != nil {
		return capability.Fail("I need a number to convert")
	}
	from, to := req.Param("from"), req.Param("to")
	out, err := Convert(value, from, to)
	if err != nil {
		return capability.Fail("I can't convert %s to %s", from, to)
	}
	return capability.OK("%s %s is %s %s", FormatNumber(value), from, FormatNumber(out), to)
}
