package domain

import (
	"fmt"
	"strings"
)

// FailureType is the high-level category assigned to a test failure.
type FailureType string

const (
	FailureTimeout           FailureType = "timeout"
	FailureSelector          FailureType = "selector_issue"
	FailureNetwork           FailureType = "network_instability"
	FailureDataSetup         FailureType = "data_setup_issue"
	FailureEnvironment       FailureType = "environment_issue"
	FailureGenuineRegression FailureType = "genuine_regression"
	FailureUnknown           FailureType = "unknown"
)

var failureTypeLabels = map[FailureType]string{
	FailureTimeout:           "TIMEOUT",
	FailureSelector:          "SELECTOR",
	FailureNetwork:           "NETWORK",
	FailureDataSetup:         "DATA_SETUP",
	FailureEnvironment:       "ENVIRONMENT",
	FailureGenuineRegression: "GENUINE_REGRESSION",
	FailureUnknown:           "UNKNOWN",
}

// AllFailureTypes lists every category in display order.
var AllFailureTypes = []FailureType{
	FailureTimeout,
	FailureSelector,
	FailureNetwork,
	FailureDataSetup,
	FailureEnvironment,
	FailureGenuineRegression,
	FailureUnknown,
}

// Label returns the upper-case tag, e.g. "DATA_SETUP".
func (t FailureType) Label() string {
	if l, ok := failureTypeLabels[t]; ok {
		return l
	}
	return strings.ToUpper(string(t))
}

func (t FailureType) Valid() bool {
	_, ok := failureTypeLabels[t]
	return ok
}

// ParseFailureType accepts either the wire value ("selector_issue") or the
// tag ("SELECTOR"), case-insensitively.
func ParseFailureType(s string) (FailureType, error) {
	s = strings.TrimSpace(s)
	for t, label := range failureTypeLabels {
		if strings.EqualFold(s, string(t)) || strings.EqualFold(s, label) {
			return t, nil
		}
	}
	if strings.EqualFold(s, "GENUINE_BUG") {
		return FailureGenuineRegression, nil
	}
	return "", fmt.Errorf("unknown failure type %q", s)
}

func (t *FailureType) UnmarshalText(b []byte) error {
	parsed, err := ParseFailureType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t FailureType) MarshalText() ([]byte, error) {
	return []byte(t), nil
}
