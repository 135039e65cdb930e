package routing

import (
	"math"
	"strconv"
	"strings"

	"github.com/goliatone/go-ingress/core"
)

type Operator string

const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpIn           Operator = "in"
)

// Condition is a parsed route filter: `<path> <op> <literal>` or
// `<path> in [<literal>, ...]`.
type Condition struct {
	Path     string
	Operator Operator
	Value    any
	Values   []any
}

func ParseCondition(expr string) (Condition, error) {
	source := expr
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Condition{}, core.ErrConditionInvalidSyntax(source, "empty condition")
	}

	opIndex, op := findOperator(expr)
	inIndex := strings.Index(expr, " in ")
	if inIndex > 0 && (opIndex < 0 || inIndex < opIndex) {
		return parseInCondition(source, expr[:inIndex], expr[inIndex+len(" in "):])
	}
	if opIndex < 0 {
		return Condition{}, core.ErrConditionInvalidSyntax(source, "no recognized operator")
	}

	path, err := parseConditionPath(source, expr[:opIndex])
	if err != nil {
		return Condition{}, err
	}
	literal := strings.TrimSpace(expr[opIndex+len(op):])
	if literal == "" {
		return Condition{}, core.ErrConditionInvalidSyntax(source, "missing literal")
	}
	value, err := parseLiteral(source, literal)
	if err != nil {
		return Condition{}, err
	}
	return Condition{Path: path, Operator: op, Value: value}, nil
}

// EvaluateCondition parses expr and evaluates it against payload.
func EvaluateCondition(expr string, payload any) (bool, error) {
	condition, err := ParseCondition(expr)
	if err != nil {
		return false, err
	}
	return condition.Evaluate(payload)
}

// Evaluate fails with a path-not-found error when the path is absent.
// Type mismatches on ordering operators evaluate to false.
func (c Condition) Evaluate(payload any) (bool, error) {
	actual, ok := ExtractPath(payload, c.Path)
	if !ok {
		return false, core.ErrPathNotFound(c.Path)
	}
	switch c.Operator {
	case OpEqual:
		return valuesEqual(actual, c.Value), nil
	case OpNotEqual:
		return !valuesEqual(actual, c.Value), nil
	case OpIn:
		for _, candidate := range c.Values {
			if valuesEqual(actual, candidate) {
				return true, nil
			}
		}
		return false, nil
	}

	cmp, comparable := compareOrdered(actual, c.Value)
	if !comparable {
		return false, nil
	}
	switch c.Operator {
	case OpGreater:
		return cmp > 0, nil
	case OpLess:
		return cmp < 0, nil
	case OpGreaterEqual:
		return cmp >= 0, nil
	case OpLessEqual:
		return cmp <= 0, nil
	default:
		return false, core.ErrConditionInvalidSyntax(string(c.Operator), "unsupported operator")
	}
}

// ValidateConfig parses every route condition so syntax errors surface when
// configuration loads.
func ValidateConfig(cfg core.Config) error {
	for _, name := range cfg.EndpointNames() {
		for eventType, route := range cfg.Endpoints[name].Routes {
			if strings.TrimSpace(route.Condition) == "" {
				continue
			}
			if _, err := ParseCondition(route.Condition); err != nil {
				return core.ErrConfigInvalid("endpoint " + name + " route " + eventType + ": " + err.Error())
			}
		}
	}
	return nil
}

// findOperator returns the first comparison operator left of any literal.
// Paths never contain quotes or brackets, so scanning stops there.
func findOperator(expr string) (int, Operator) {
	for index := 0; index < len(expr); index++ {
		switch expr[index] {
		case '\'', '"', '[':
			return -1, ""
		}
		if index+1 < len(expr) {
			switch Operator(expr[index : index+2]) {
			case OpGreaterEqual, OpLessEqual, OpEqual, OpNotEqual:
				return index, Operator(expr[index : index+2])
			}
		}
		switch expr[index] {
		case '>':
			return index, OpGreater
		case '<':
			return index, OpLess
		}
	}
	return -1, ""
}

func parseInCondition(source, rawPath, rawList string) (Condition, error) {
	path, err := parseConditionPath(source, rawPath)
	if err != nil {
		return Condition{}, err
	}
	rawList = strings.TrimSpace(rawList)
	if len(rawList) < 2 || rawList[0] != '[' || rawList[len(rawList)-1] != ']' {
		return Condition{}, core.ErrConditionInvalidSyntax(source, "in expects a bracketed list")
	}
	items, err := splitListItems(source, rawList[1:len(rawList)-1])
	if err != nil {
		return Condition{}, err
	}
	values := make([]any, 0, len(items))
	for _, item := range items {
		value, err := parseLiteral(source, item)
		if err != nil {
			return Condition{}, err
		}
		values = append(values, value)
	}
	return Condition{Path: path, Operator: OpIn, Values: values}, nil
}

func parseConditionPath(source, raw string) (string, error) {
	path := strings.TrimSpace(raw)
	if path == "" {
		return "", core.ErrConditionInvalidSyntax(source, "missing path")
	}
	if strings.ContainsAny(path, " \t\r\n") {
		return "", core.ErrConditionInvalidSyntax(source, "path must not contain whitespace")
	}
	return path, nil
}

func splitListItems(source, body string) ([]string, error) {
	if strings.TrimSpace(body) == "" {
		return nil, nil
	}
	items := []string{}
	var quote byte
	start := 0
	for index := 0; index < len(body); index++ {
		ch := body[index]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == ',':
			items = append(items, strings.TrimSpace(body[start:index]))
			start = index + 1
		}
	}
	if quote != 0 {
		return nil, core.ErrConditionInvalidSyntax(source, "unterminated string literal")
	}
	items = append(items, strings.TrimSpace(body[start:]))
	for _, item := range items {
		if item == "" {
			return nil, core.ErrConditionInvalidSyntax(source, "empty list item")
		}
	}
	return items, nil
}

// parseLiteral tries quoted string, integer, float, boolean and null in that
// order.
func parseLiteral(source, text string) (any, error) {
	if first := text[0]; first == '\'' || first == '"' {
		if len(text) < 2 || text[len(text)-1] != first {
			return nil, core.ErrConditionInvalidSyntax(source, "unterminated string literal")
		}
		return text[1 : len(text)-1], nil
	}
	if value, err := strconv.ParseInt(text, 10, 64); err == nil {
		return value, nil
	}
	if value, err := strconv.ParseFloat(text, 64); err == nil && !math.IsInf(value, 0) && !math.IsNaN(value) {
		return value, nil
	}
	switch strings.ToLower(text) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return nil, nil
	}
	return nil, core.ErrConditionInvalidSyntax(source, "unrecognized literal "+text)
}
