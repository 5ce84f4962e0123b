package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	JobKind = "job"
)

var (
	pluralKinds = map[string]string{
		JobKind: "jobs",
	}
)

// parseAndValidateKindId splits TYPE or TYPE/ID. The id is empty when only a type was given.
func parseAndValidateKindId(arg string) (string, string, error) {
	kind, id, _ := strings.Cut(arg, "/")
	kind = singular(kind)
	if _, ok := pluralKinds[kind]; !ok {
		return "", "", fmt.Errorf("invalid resource kind: %s", kind)
	}
	if id != "" {
		if err := validateJobID(id); err != nil {
			return "", "", err
		}
	}
	return kind, id, nil
}

// parseJobArg accepts either ID or job/ID.
func parseJobArg(arg string) (string, error) {
	if strings.Contains(arg, "/") {
		kind, id, err := parseAndValidateKindId(arg)
		if err != nil {
			return "", err
		}
		if kind != JobKind || id == "" {
			return "", fmt.Errorf("expected a job id, got %q", arg)
		}
		return id, nil
	}
	return arg, validateJobID(arg)
}

func validateJobID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid job id %q: %w", id, err)
	}
	return nil
}

func singular(kind string) string {
	for singular, plural := range pluralKinds {
		if kind == plural {
			return singular
		}
	}
	return kind
}

func plural(kind string) string {
	return pluralKinds[kind]
}
