package response

import (
	"net/http"

	"ticketflow/internal/shared/apperror"
	"ticketflow/pkg/logger"

	"github.com/gin-gonic/gin"
)

// StatusFor maps an error kind to its HTTP status
func StatusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindBadRequest:
		return http.StatusBadRequest
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindConflict:
		return http.StatusConflict
	case apperror.KindExternalService:
		return http.StatusBadGateway
	case apperror.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// RespondError renders err using the standard envelope. Internal causes are not exposed.
func RespondError(c *gin.Context, err error) {
	appErr, ok := apperror.As(err)
	if !ok {
		appErr = apperror.Internal("Internal server error", err)
	}

	code := StatusFor(appErr.Kind)
	message := appErr.Message
	if appErr.Kind == apperror.KindInternal {
		message = "Internal server error"
		_ = c.Error(err)
	}
	if code >= http.StatusInternalServerError {
		logger.GetDefault().LogHTTPError(c, err, code)
	}

	errorBody := gin.H{"kind": appErr.Kind.String()}
	if len(appErr.Meta) > 0 {
		errorBody["meta"] = appErr.Meta
	}

	RespondJSON(c, "error", code, message, nil, errorBody)
}
