package handlers

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"lessontalk/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	// report binding failures by their JSON names
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
	}
}

var statusByKind = map[services.Kind]int{
	services.KindValidation: http.StatusBadRequest,
	services.KindNotFound:   http.StatusNotFound,
	services.KindForbidden:  http.StatusForbidden,
	services.KindConflict:   http.StatusConflict,
}

// writeError maps engine errors onto status codes. Anything that is not an
// engine error is logged through c.Error and answered with a bare 500.
func writeError(c *gin.Context, err error) {
	kind := services.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"code":  "internal",
			"error": "internal server error",
		})
		return
	}

	var e *services.Error
	msg := err.Error()
	if errors.As(err, &e) && e.Message != "" {
		msg = e.Message
	}
	c.AbortWithStatusJSON(status, gin.H{"code": string(kind), "error": msg})
}

// bindError answers a request body or query that failed to bind.
func bindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"code":  string(services.KindValidation),
			"error": "malformed request body",
		})
		return
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describe(fe)
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"code":   string(services.KindValidation),
		"error":  "invalid request",
		"fields": fields,
	})
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag()
	}
}
