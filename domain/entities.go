package domain

import (
	"fmt"
	"time"

	"github.com/distribution/reference"
)

// Image is a container image reference produced by a build.
type Image struct {
	// Service is the configured service that produced the image.
	Service string `json:"service"`

	// Repository is the image name without tag, as configured
	// (e.g. "docker.io/acme/housing-predictor").
	Repository string `json:"repository"`

	// Tag is the image tag.
	Tag string `json:"tag"`

	// Digest is the registry manifest digest, filled in after a verified push.
	Digest string `json:"digest,omitempty"`
}

// NewImage validates repository and tag and returns the combined Image.
func NewImage(service, repository, tag string) (Image, error) {
	named, err := reference.ParseNormalizedNamed(repository)
	if err != nil {
		return Image{}, fmt.Errorf("invalid image repository %q: %w", repository, err)
	}
	if _, ok := named.(reference.Tagged); ok {
		return Image{}, fmt.Errorf("image repository %q must not carry a tag", repository)
	}
	if _, ok := named.(reference.Digested); ok {
		return Image{}, fmt.Errorf("image repository %q must not carry a digest", repository)
	}
	if _, err := reference.WithTag(named, tag); err != nil {
		return Image{}, fmt.Errorf("invalid tag %q for %s: %w", tag, repository, err)
	}
	return Image{Service: service, Repository: repository, Tag: tag}, nil
}

// Ref returns "<repository>:<tag>".
func (i Image) Ref() string {
	return i.Repository + ":" + i.Tag
}

// WithTag returns a copy of the image with a different tag and no digest.
func (i Image) WithTag(tag string) Image {
	i.Tag = tag
	i.Digest = ""
	return i
}

// String implements fmt.Stringer.
func (i Image) String() string {
	if i.Digest != "" {
		return i.Ref() + "@" + i.Digest
	}
	return i.Ref()
}

// SplitImage splits an image string into its repository and the tag or
// digest suffix, following the distribution reference grammar.
func SplitImage(image string) (repository, tag, digest string, err error) {
	named, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return "", "", "", fmt.Errorf("invalid image reference %q: %w", image, err)
	}
	if t, ok := named.(reference.Tagged); ok {
		tag = t.Tag()
	}
	if d, ok := named.(reference.Digested); ok {
		digest = d.Digest().String()
	}
	return named.Name(), tag, digest, nil
}

// SameRepository reports whether a and b name the same repository once
// normalized ("nginx" and "docker.io/library/nginx" match). Tags and digests
// are ignored. Unparseable input never matches.
func SameRepository(a, b string) bool {
	ra, _, _, errA := SplitImage(a)
	rb, _, _, errB := SplitImage(b)
	if errA != nil || errB != nil {
		return false
	}
	return ra == rb
}

// StageResult records the outcome of one pipeline stage.
type StageResult struct {
	Name      string        `json:"name"`
	Status    StageStatus   `json:"status"`
	StartedAt time.Time     `json:"started_at,omitempty"`
	Duration  time.Duration `json:"duration"`
	Detail    string        `json:"detail,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// RunReport summarizes a deployer run.
type RunReport struct {
	BuildNumber string        `json:"build_number"`
	Tag         string        `json:"tag"`
	Selection   Service       `json:"selection"`
	Services    []string      `json:"services"`
	DryRun      bool          `json:"dry_run"`
	Stages      []StageResult `json:"stages"`
	Images      []Image       `json:"images"`
	Manifests   []string      `json:"manifests"`
	Commit      string        `json:"commit,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     time.Time     `json:"ended_at"`
}

// Failed reports whether any stage failed.
func (r *RunReport) Failed() bool {
	for _, s := range r.Stages {
		if s.Status == StageStatusFailed {
			return true
		}
	}
	return false
}

// Stage returns the named stage result, or nil.
func (r *RunReport) Stage(name string) *StageResult {
	for i := range r.Stages {
		if r.Stages[i].Name == name {
			return &r.Stages[i]
		}
	}
	return nil
}

// Duration returns the wall-clock time of the run.
func (r *RunReport) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}
