// Package version derives image tags from CI build numbers.
package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/saimanas17/housing-price-prediction-mlops/errors"
)

// DefaultPrefix is prepended to every derived tag unless overridden.
const DefaultPrefix = "v"

// tagPattern is the OCI distribution tag grammar.
var tagPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]{0,127}$`)

// Options controls tag derivation.
type Options struct {
	// Prefix is prepended to the tag. Nil means DefaultPrefix; use a pointer
	// to an empty string for no prefix.
	Prefix *string

	// Base is an optional semantic version ("1", "1.2", "1.2.0"). When set the
	// build number becomes the patch component.
	Base string
}

// Tag derives the image tag for buildNumber.
//
// Without a base version the tag is "<prefix><build>" (v42). With a base
// version it is "<prefix><major>.<minor>.<build>" (v1.2.42).
func Tag(buildNumber string, opts Options) (string, error) {
	build, err := parseBuildNumber(buildNumber)
	if err != nil {
		return "", err
	}

	prefix := DefaultPrefix
	if opts.Prefix != nil {
		prefix = *opts.Prefix
	}

	var tag string
	if strings.TrimSpace(opts.Base) == "" {
		tag = fmt.Sprintf("%s%d", prefix, build)
	} else {
		base, perr := semver.NewVersion(strings.TrimSpace(opts.Base))
		if perr != nil {
			return "", errors.WrapWithContext(perr, errors.CodeInvalidConfig, "invalid base version",
				map[string]interface{}{"base": opts.Base})
		}
		tag = fmt.Sprintf("%s%d.%d.%d", prefix, base.Major(), base.Minor(), build)
	}

	if err := Validate(tag); err != nil {
		return "", err
	}
	return tag, nil
}

// Validate checks that tag is a well-formed image tag.
func Validate(tag string) error {
	if !tagPattern.MatchString(tag) {
		return errors.New(errors.CodeInvalidInput, "malformed image tag").WithContext("tag", tag)
	}
	return nil
}

// Compare orders two tags produced by Tag. Tags that are not semantic
// versions are compared by their trailing build number.
func Compare(a, b string) (int, error) {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA == nil && errB == nil {
		return va.Compare(vb), nil
	}

	na, err := trailingNumber(a)
	if err != nil {
		return 0, err
	}
	nb, err := trailingNumber(b)
	if err != nil {
		return 0, err
	}

	switch {
	case na < nb:
		return -1, nil
	case na > nb:
		return 1, nil
	default:
		return 0, nil
	}
}

func parseBuildNumber(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New(errors.CodeInvalidInput, "build number is required")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.WrapWithContext(err, errors.CodeInvalidInput, "build number must be a non-negative integer",
			map[string]interface{}{"build_number": s})
	}
	return n, nil
}

func trailingNumber(tag string) (uint64, error) {
	end := len(tag)
	start := end
	for start > 0 && tag[start-1] >= '0' && tag[start-1] <= '9' {
		start--
	}
	if start == end {
		return 0, errors.New(errors.CodeInvalidInput, "tag has no build number").WithContext("tag", tag)
	}
	n, err := strconv.ParseUint(tag[start:end], 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeInvalidInput, "tag build number out of range")
	}
	return n, nil
}
