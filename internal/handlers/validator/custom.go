package validator

import (
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kubev2v/media-analyzer/internal/store/model"
)

func jobStatusValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return model.JobStatus(strings.ToUpper(val)).IsValid()
}

func jobIDValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	_, err := uuid.Parse(val)
	return err == nil
}

// plainFilenameValidator rejects names carrying a directory part.
func plainFilenameValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return val != "" && filepath.Base(val) == val && val != "." && val != ".."
}
