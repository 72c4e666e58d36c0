// Package domain provides the type definitions shared by the deployer stages.
package domain

import (
	"fmt"
	"strings"
)

// Service is the service selection offered to the operator before a build.
type Service string

const (
	// ServiceAll selects every configured service.
	ServiceAll Service = "all"

	// ServiceBento selects the BentoML model-serving image.
	ServiceBento Service = "bento"

	// ServiceFrontend selects the web frontend image.
	ServiceFrontend Service = "frontend"
)

// Services lists the valid selections in the order they are offered.
func Services() []Service {
	return []Service{ServiceAll, ServiceBento, ServiceFrontend}
}

// ServiceNames returns Services as plain strings.
func ServiceNames() []string {
	services := Services()
	names := make([]string, len(services))
	for i, s := range services {
		names[i] = string(s)
	}
	return names
}

// ParseService parses a selection case-insensitively.
func ParseService(s string) (Service, error) {
	candidate := Service(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Services() {
		if candidate == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown service %q (expected one of %s)", s, strings.Join(ServiceNames(), ", "))
}

// String returns the string representation of the Service.
func (s Service) String() string {
	return string(s)
}

// Includes reports whether the selection covers the named service.
func (s Service) Includes(name string) bool {
	return s == ServiceAll || string(s) == name
}

// ServiceKind selects how a service image is built.
type ServiceKind string

const (
	// KindBento builds with `bentoml build` followed by `bentoml containerize`.
	KindBento ServiceKind = "bento"

	// KindDocker builds with `docker build`.
	KindDocker ServiceKind = "docker"
)

// String returns the string representation of the ServiceKind.
func (k ServiceKind) String() string {
	return string(k)
}

// Valid reports whether k is a known kind.
func (k ServiceKind) Valid() bool {
	return k == KindBento || k == KindDocker
}

// StageStatus represents the execution status of a pipeline stage.
type StageStatus string

const (
	// StageStatusPending indicates the stage has not started.
	StageStatusPending StageStatus = "PENDING"

	// StageStatusRunning indicates the stage is in progress.
	StageStatusRunning StageStatus = "RUNNING"

	// StageStatusSuccess indicates the stage completed successfully.
	StageStatusSuccess StageStatus = "SUCCESS"

	// StageStatusFailed indicates the stage completed with errors.
	StageStatusFailed StageStatus = "FAILED"

	// StageStatusSkipped indicates the stage did not run, either because it was
	// disabled, had nothing to do, or an earlier stage failed.
	StageStatusSkipped StageStatus = "SKIPPED"
)

// String returns the string representation of the StageStatus.
func (s StageStatus) String() string {
	return string(s)
}

// Terminal reports whether the status is final.
func (s StageStatus) Terminal() bool {
	return s == StageStatusSuccess || s == StageStatusFailed || s == StageStatusSkipped
}
