package httpserver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/miporis/compliance-evaluator/internal/domain"
)

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// validateStruct returns ErrInvalidArgument with per-field tags as details.
func validateStruct(v interface{}) (map[string]string, error) {
	err := getValidator().Struct(v)
	if err == nil {
		return nil, nil
	}
	verrs := map[string]string{}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			verrs[fieldName(fe.Namespace())] = fe.Tag()
		}
	}
	return verrs, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument)
}

// fieldName drops the root struct name: "importRequest.Data[0].ControlID"
// becomes "data[0].controlid".
func fieldName(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	return strings.ToLower(ns)
}

// parseInstant accepts unix milliseconds or RFC3339.
func parseInstant(field, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", domain.ErrInvalidArgument, field)
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be unix milliseconds or RFC3339", domain.ErrInvalidArgument, field)
	}
	return t.UTC(), nil
}

// parseLimit returns 0 when v is empty so the service default applies.
func parseLimit(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", domain.ErrInvalidArgument)
	}
	return n, nil
}
