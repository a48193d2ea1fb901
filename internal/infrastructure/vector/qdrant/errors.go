package qdrant

import (
	"errors"
	"net/http"

	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/resilience"
)

// 409 on collection create means it already exists.
func isConflict(err error) bool {
	var statusErr *resilience.HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict
}
