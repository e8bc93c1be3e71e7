package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"unibuy/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusFromError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{models.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{models.ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
		{models.ErrEmptyCart, http.StatusUnprocessableEntity, "EMPTY_CART"},
		{models.ErrInsufficientStock, http.StatusConflict, "INSUFFICIENT_STOCK"},
		{models.ErrGatewayUnavailable, http.StatusBadGateway, "GATEWAY_UNAVAILABLE"},
		{models.ErrGatewayMisconfigured, http.StatusInternalServerError, "GATEWAY_MISCONFIGURED"},
		{errors.New("something else"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			status, code := httpStatusFromError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, code)
		})
	}
}

func TestHTTPStatusFromWrappedError(t *testing.T) {
	// Services wrap sentinels with context; the mapping must see through.
	err := fmt.Errorf("product 7 (Widget), requested 2: %w", models.ErrInsufficientStock)
	status, code := httpStatusFromError(err)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INSUFFICIENT_STOCK", code)
}
