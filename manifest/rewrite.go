// Package manifest rewrites container image references in Kubernetes
// manifests. Edits are made line by line so formatting, comments and
// unrelated fields stay byte-identical, and every result is validated before
// it is written back.
package manifest

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/saimanas17/housing-price-prediction-mlops/domain"
	"github.com/saimanas17/housing-price-prediction-mlops/errors"
)

// imageLine matches `image: value` and `- image: value` lines, with the value
// optionally quoted and followed by a comment.
var imageLine = regexp.MustCompile(`^(\s*(?:-\s+)?image:\s*)(["']?)([^"'\s#]+)(["']?)(\s*(?:#.*)?)$`)

// Rewrite replaces the tag of every image whose repository equals repository
// with tag. It returns the new content and the number of lines replaced.
// The repository text already present in the manifest is preserved; only the
// tag (and any digest) is swapped.
func Rewrite(content []byte, repository, tag string) ([]byte, int, error) {
	if strings.TrimSpace(repository) == "" {
		return nil, 0, errors.New(errors.CodeInvalidInput, "repository is required")
	}
	if strings.TrimSpace(tag) == "" {
		return nil, 0, errors.New(errors.CodeInvalidInput, "tag is required")
	}

	lines := bytes.Split(content, []byte("\n"))
	replaced := 0

	for i, raw := range lines {
		line := string(raw)
		cr := strings.HasSuffix(line, "\r")
		line = strings.TrimSuffix(line, "\r")

		m := imageLine.FindStringSubmatch(line)
		if m == nil || m[2] != m[4] {
			continue
		}

		value := m[3]
		if !domain.SameRepository(value, repository) {
			continue
		}

		newLine := m[1] + m[2] + stripTagAndDigest(value) + ":" + tag + m[4] + m[5]
		if cr {
			newLine += "\r"
		}
		lines[i] = []byte(newLine)
		replaced++
	}

	return bytes.Join(lines, []byte("\n")), replaced, nil
}

// stripTagAndDigest removes a trailing ":tag" and/or "@digest" from an image
// string while leaving registry ports ("host:5000/app") alone.
func stripTagAndDigest(image string) string {
	if at := strings.Index(image, "@"); at >= 0 {
		image = image[:at]
	}
	slash := strings.LastIndex(image, "/")
	if colon := strings.LastIndex(image, ":"); colon > slash {
		image = image[:colon]
	}
	return image
}
