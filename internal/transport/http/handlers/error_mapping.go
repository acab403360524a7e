package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/carehub/clinic-api/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// revocationErrorCases cover every error the revocation services return.
var revocationErrorCases = []ErrorCase{
	{Err: usecase.ErrInvalidRevocationTarget, Status: http.StatusBadRequest, Message: "session or user id is required"},
	{Err: usecase.ErrRoleUnchanged, Status: http.StatusUnprocessableEntity, Message: "role is unchanged"},
	{Err: usecase.ErrRevocationUnavailable, Status: http.StatusServiceUnavailable, Message: "revocation store unavailable"},
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
			return
		}
	}

	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}
