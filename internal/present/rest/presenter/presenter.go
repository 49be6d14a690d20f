package presenter

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/graftnet/graft/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

// OK wraps a successful response.
func OK(c echo.Context, payload any) error {
	return c.JSON(http.StatusOK, payload)
}

// Created wraps a creation response carrying the new resource location.
func Created(c echo.Context, location string, payload any) error {
	c.Response().Header().Set(echo.HeaderLocation, location)
	return c.JSON(http.StatusCreated, payload)
}

func BadRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func BadRequestMessage(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func NotFound(c echo.Context, msg string) error {
	return c.JSON(http.StatusNotFound, errorResponse{Error: msg})
}

func NotImplemented(c echo.Context, msg string) error {
	return c.JSON(http.StatusNotImplemented, errorResponse{Error: msg})
}

func MethodNotAllowed(c echo.Context) error {
	return c.JSON(http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
}

// InternalError logs the cause and answers with a generic message so
// internal detail never reaches the client.
func InternalError(c echo.Context, err error) error {
	slog.ErrorContext(c.Request().Context(), "Internal error",
		slog.String("error", err.Error()),
		slog.String("path", c.Request().URL.Path),
	)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

// Error maps a domain error onto its response class.
func Error(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		return BadRequest(c, err)
	case errors.Is(err, domain.ErrNotFound):
		return NotFound(c, err.Error())
	case errors.Is(err, domain.ErrNotImplemented):
		return NotImplemented(c, err.Error())
	default:
		return InternalError(c, err)
	}
}
