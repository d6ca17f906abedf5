package helper

import (
	"fmt"
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/playletworks/drama-api/common"
	"github.com/playletworks/drama-api/common/random"
)

const RequestIdKey = "X-Drama-Request-Id"

func GenRequestID() string {
	return GetTimeString() + random.GetRandomString(8)
}

func MessageWithRequestId(message string, id string) string {
	return fmt.Sprintf("%s (request id: %s)", message, id)
}

// statusForError maps core error kinds to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrConflict),
		errors.Is(err, common.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, common.ErrInsufficientQuota):
		return http.StatusPaymentRequired
	case errors.Is(err, common.ErrDeclinedByUser),
		errors.Is(err, common.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes the standard error envelope, mapping core error kinds
// to status codes. The request id is appended so users can report failures.
func RespondError(c *gin.Context, err error) {
	c.JSON(statusForError(err), gin.H{
		"success": false,
		"message": MessageWithRequestId(err.Error(), c.GetString(RequestIdKey)),
	})
}

// RespondSuccess writes the standard success envelope.
func RespondSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    data,
	})
}
