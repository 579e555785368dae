package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-register-api/internal/middleware"
	"github.com/noah-isme/studio-register-api/internal/models"
	appErrors "github.com/noah-isme/studio-register-api/pkg/errors"
	"github.com/noah-isme/studio-register-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		return nil
	}
	return claims
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "invalid query parameter"), map[string]string{key: "must be an integer"})
	}
	return value, nil
}

func queryBool(c *gin.Context, key string) (*bool, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "invalid query parameter"), map[string]string{key: "must be true or false"})
	}
	return &value, nil
}

func queryDate(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	value, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "invalid query parameter"), map[string]string{key: "must be a date in YYYY-MM-DD format"})
	}
	return &value, nil
}

// bindJSON decodes the request body and answers 400 on failure.
func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}
