package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/goliatone/go-ingress/core"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type procedureResult struct {
	Success *bool          `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

// StoredProcedureHandler calls a database function inside the processing
// transaction with the mapped params as one JSON argument. Targets look like
// "sql:fn_name" or "sql:schema.fn_name".
//
// A JSON object result with "success": false is a rejection and commits the
// event as failed. A NULL or non-object result counts as handled.
type StoredProcedureHandler struct {
	// Placeholder is the bind marker for the argument. bun rewrites "?" for
	// every dialect; plain *sql.Tx on postgres needs "$1".
	Placeholder string
}

func NewStoredProcedureHandler() *StoredProcedureHandler {
	return &StoredProcedureHandler{Placeholder: "?"}
}

func (h *StoredProcedureHandler) Handle(ctx context.Context, inv core.HandlerInvocation) (core.HandlerResult, error) {
	if inv.Tx == nil {
		return core.HandlerResult{}, fmt.Errorf("handlers: stored procedure %q needs a transaction", inv.Target)
	}
	_, name := SplitTarget(inv.Target)
	query, err := h.Query(name)
	if err != nil {
		return core.HandlerResult{}, err
	}
	params := inv.Params
	if params == nil {
		params = map[string]any{}
	}
	arg, err := json.Marshal(params)
	if err != nil {
		return core.HandlerResult{}, fmt.Errorf("handlers: encode params: %w", err)
	}

	var raw sql.NullString
	if err := inv.Tx.QueryRowContext(ctx, query, string(arg)).Scan(&raw); err != nil {
		return core.HandlerResult{}, fmt.Errorf("handlers: call %s: %w", name, err)
	}
	return parseProcedureResult(raw)
}

// Query builds the call statement for a validated function name.
func (h *StoredProcedureHandler) Query(name string) (string, error) {
	quoted, err := quoteFunctionName(name)
	if err != nil {
		return "", err
	}
	placeholder := "?"
	if h != nil && strings.TrimSpace(h.Placeholder) != "" {
		placeholder = strings.TrimSpace(h.Placeholder)
	}
	return fmt.Sprintf("SELECT %s(%s)", quoted, placeholder), nil
}

func quoteFunctionName(name string) (string, error) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if name == "" || len(parts) > 2 {
		return "", core.ErrConfigInvalid(fmt.Sprintf("invalid stored procedure name %q", name))
	}
	quoted := make([]string, 0, len(parts))
	for _, part := range parts {
		if !identifierPattern.MatchString(part) {
			return "", core.ErrConfigInvalid(fmt.Sprintf("invalid stored procedure name %q", name))
		}
		quoted = append(quoted, `"`+part+`"`)
	}
	return strings.Join(quoted, "."), nil
}

func parseProcedureResult(raw sql.NullString) (core.HandlerResult, error) {
	value := strings.TrimSpace(raw.String)
	if !raw.Valid || value == "" {
		return core.HandlerResult{Success: true}, nil
	}
	if !strings.HasPrefix(value, "{") {
		return core.HandlerResult{Success: true, Data: map[string]any{"result": value}}, nil
	}
	var parsed procedureResult
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		return core.HandlerResult{}, errors.Join(fmt.Errorf("handlers: decode procedure result"), err)
	}
	success := parsed.Success == nil || *parsed.Success
	return core.HandlerResult{Success: success, Message: parsed.Message, Data: parsed.Data}, nil
}

var _ core.EventHandler = (*StoredProcedureHandler)(nil)
