package inbound

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ingress/core"
)

func inboundError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode).
		WithSeverity(goerrors.SeverityInfo)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func inboundWrapError(
	source error,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return inboundError(message, goerrors.CategoryBadInput, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, goerrors.CategoryBadInput, message).
		WithCode(code).
		WithTextCode(textCode).
		WithSeverity(goerrors.SeverityInfo)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func inboundBadInput(message string, metadata map[string]any) error {
	return inboundError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.ErrorBadInput,
		metadata,
	)
}

func inboundPayloadTooLarge(endpoint string, limit int64) error {
	return inboundError(
		"inbound: request body exceeds the size limit",
		goerrors.CategoryBadInput,
		http.StatusRequestEntityTooLarge,
		core.ErrorPayloadInvalid,
		map[string]any{"endpoint": endpoint, "max_bytes": limit},
	)
}
