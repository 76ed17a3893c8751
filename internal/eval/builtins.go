package eval

import (
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kasuganosora/memdb/internal/value"
)

var upperCaser = cases.Upper(language.Und)
var lowerCaser = cases.Lower(language.Und)

func defaultBuiltins() []*FunctionInfo {
	return []*FunctionInfo{
		{Name: "UPPER", Arity: 1, Handler: func(args []value.Value) (value.Value, error) {
			s, ok := args[0].AsString()
			if !ok {
				return value.Null(), nil
			}
			return value.NewText(upperCaser.String(s)), nil
		}},
		{Name: "LOWER", Arity: 1, Handler: func(args []value.Value) (value.Value, error) {
			s, ok := args[0].AsString()
			if !ok {
				return value.Null(), nil
			}
			return value.NewText(lowerCaser.String(s)), nil
		}},
		{Name: "LENGTH", Arity: 1, Handler: func(args []value.Value) (value.Value, error) {
			s, ok := args[0].AsString()
			if !ok {
				return value.Null(), nil
			}
			return value.NewInteger(int64(len(s))), nil
		}},
		{Name: "CONCAT", Variadic: true, Handler: func(args []value.Value) (value.Value, error) {
			var sb strings.Builder
			for _, a := range args {
				if a.IsNull() {
					return value.Null(), nil
				}
				sb.WriteString(a.String())
			}
			return value.NewText(sb.String()), nil
		}},
		{Name: "COALESCE", Variadic: true, Handler: func(args []value.Value) (value.Value, error) {
			for _, a := range args {
				if !a.IsNull() {
					return a, nil
				}
			}
			return value.Null(), nil
		}},
		{Name: "ABS", Arity: 1, Handler: func(args []value.Value) (value.Value, error) {
			if i, ok := args[0].AsInt64(); ok {
				if i < 0 {
					i = -i
				}
				return value.NewInteger(i), nil
			}
			if f, ok := args[0].AsFloat64(); ok {
				return value.NewFloat(math.Abs(f)), nil
			}
			return value.Null(), nil
		}},
		{Name: "ROUND", Variadic: true, Handler: func(args []value.Value) (value.Value, error) {
			f, ok := args[0].AsFloat64()
			if !ok {
				return value.Null(), nil
			}
			prec := 0
			if len(args) > 1 {
				if p, ok := args[1].AsInt64(); ok {
					prec = int(p)
				}
			}
			mul := math.Pow(10, float64(prec))
			return value.NewFloat(math.Round(f*mul) / mul), nil
		}},
		{Name: "NOW", Arity: 0, Handler: func(args []value.Value) (value.Value, error) {
			return value.NewTimestamp(time.Now().UTC()), nil
		}},
		{Name: "IFNULL", Arity: 2, Handler: func(args []value.Value) (value.Value, error) {
			if args[0].IsNull() {
				return args[1], nil
			}
			return args[0], nil
		}},
	}
}

func checkArity(info *FunctionInfo, n int) error {
	if info.Variadic {
		return nil
	}
	if info.Arity != n {
		return fmt.Errorf("eval: %s expects %d argument(s), got %d", info.Name, info.Arity, n)
	}
	return nil
}
