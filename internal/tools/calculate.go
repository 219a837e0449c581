package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"procdexeh/mcpcore/internal/mcp"
)

const (
	defaultPrecision = 2
	maxPrecision     = 10
)

// Calculate evaluates a single binary arithmetic expression such as "2 + 3"
// or "-1.5 * 4".
type Calculate struct{}

func (Calculate) Definition() mcp.Tool {
	return mcp.Tool{
		Name:        "calculate",
		Description: "Perform basic mathematical calculations",
		InputSchema: json.RawMessage(`{
            "type": "object",
            "properties": {
                "expression": {
                    "type": "string",
                    "description": "Binary expression to evaluate (e.g., '2 + 3')"
                },
                "precision": {
                    "type": "integer",
                    "description": "Number of decimal places",
                    "default": 2,
                    "minimum": 0,
                    "maximum": 10
                }
            },
            "required": ["expression"]
        }`),
	}
}

func (Calculate) Timeout() time.Duration { return 10 * time.Second }

func (Calculate) ValidateArgs(args map[string]any) error {
	expr, ok := args["expression"]
	if !ok {
		return errors.New("missing required 'expression' argument")
	}
	if _, ok := expr.(string); !ok {
		return errors.New("'expression' must be a string")
	}
	if v, ok := args["precision"]; ok {
		if _, err := precisionOf(v); err != nil {
			return err
		}
	}
	return nil
}

func (Calculate) Execute(_ context.Context, args map[string]any) (*mcp.CallToolResponse, error) {
	expr, ok := args["expression"].(string)
	if !ok {
		return nil, errors.New("missing 'expression' argument")
	}
	precision := defaultPrecision
	if v, ok := args["precision"]; ok {
		p, err := precisionOf(v)
		if err != nil {
			return nil, err
		}
		precision = p
	}

	value, err := evaluate(expr)
	if err != nil {
		return nil, err
	}
	return mcp.TextResult("Result: " + strconv.FormatFloat(value, 'f', precision, 64)), nil
}

func precisionOf(v any) (int, error) {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || f < 0 {
		return 0, errors.New("'precision' must be a non-negative integer")
	}
	if f > maxPrecision {
		return 0, fmt.Errorf("'precision' must be at most %d", maxPrecision)
	}
	return int(f), nil
}

func evaluate(expr string) (float64, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, errors.New("empty expression")
	}

	i := operatorIndex(expr)
	if i < 0 {
		v, err := parseOperand(expr)
		if err != nil {
			return 0, errors.New("invalid expression format")
		}
		return v, nil
	}

	left, err := parseOperand(expr[:i])
	if err != nil {
		return 0, errors.New("invalid left operand")
	}
	right, err := parseOperand(expr[i+1:])
	if err != nil {
		return 0, errors.New("invalid right operand")
	}

	switch expr[i] {
	case '+':
		return left + right, nil
	case '-':
		return left - right, nil
	case '*':
		return left * right, nil
	default:
		if right == 0 {
			return 0, errors.New("division by zero")
		}
		return left / right, nil
	}
}

func isOperator(c byte) bool {
	return c == '+' || c == '-' || c == '*' || c == '/'
}

// operatorIndex returns the position of the binary operator, or -1.
// A sign at the start, after another operator, or inside an exponent
// ("1e-3") belongs to an operand.
func operatorIndex(expr string) int {
	for i := 1; i < len(expr); i++ {
		if !isOperator(expr[i]) {
			continue
		}
		prev := strings.TrimRight(expr[:i], " \t")
		if prev == "" {
			continue
		}
		p := prev[len(prev)-1]
		if isOperator(p) {
			continue
		}
		if (expr[i] == '+' || expr[i] == '-') && (p == 'e' || p == 'E') && len(prev) == i {
			continue
		}
		return i
	}
	return -1
}

func parseOperand(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, errors.New("operand is not finite")
	}
	return v, nil
}
