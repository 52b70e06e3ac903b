package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/queueforge/taskqueue/internal/models"
)

// ValidationMiddleware validates request bodies against their struct tags
// before a handler ever sees them.
type ValidationMiddleware struct {
	validator *validator.Validate
	logger    *slog.Logger
}

func NewValidationMiddleware(logger *slog.Logger) *ValidationMiddleware {
	return &ValidationMiddleware{validator: validator.New(), logger: logger}
}

// ValidateJSON binds the body into a fresh instance of modelType and runs
// struct-tag validation, storing the validated value for the handler.
func (vm *ValidationMiddleware) ValidateJSON(modelType interface{}) gin.HandlerFunc {
	return func(c *gin.Context) {
		model := reflect.New(reflect.TypeOf(modelType)).Interface()

		if err := c.ShouldBindJSON(model); err != nil {
			vm.logger.Warn("JSON binding failed", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request format",
				"details": err.Error(),
			})
			c.Abort()
			return
		}

		if err := vm.validator.Struct(model); err != nil {
			vm.logger.Warn("validation failed", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "Validation failed",
				"validation_errors": vm.formatValidationErrors(err),
			})
			c.Abort()
			return
		}

		c.Set("validated_body", model)
		c.Next()
	}
}

// ValidateQueueCreation validates POST /api/queue bodies.
func (vm *ValidationMiddleware) ValidateQueueCreation() gin.HandlerFunc {
	return vm.ValidateJSON(models.CreateQueueRequest{})
}

func (vm *ValidationMiddleware) formatValidationErrors(err error) []map[string]string {
	var errs []map[string]string
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errs
	}
	for _, fe := range validationErrs {
		errs = append(errs, map[string]string{
			"field":   fe.Field(),
			"value":   fmt.Sprintf("%v", fe.Value()),
			"tag":     fe.Tag(),
			"message": vm.getValidationMessage(fe),
		})
	}
	return errs
}

func (vm *ValidationMiddleware) getValidationMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", err.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
	case "dive":
		return fmt.Sprintf("%s contains an invalid entry", err.Field())
	default:
		return fmt.Sprintf("%s failed validation: %s", err.Field(), err.Tag())
	}
}

// RequestSizeLimit caps the request body at maxBytes.
func RequestSizeLimit(logger *slog.Logger, maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			logger.Warn("request body too large", "content_length", c.Request.ContentLength, "max_bytes", maxBytes)
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("request body too large, maximum size: %d bytes", maxBytes),
			})
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
