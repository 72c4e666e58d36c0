package git

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leodido/go-conventionalcommits"
	"github.com/leodido/go-conventionalcommits/parser"
)

// DeployScope is the Conventional Commits scope used for image updates.
const DeployScope = "deploy"

// ValidateCommitMessage checks that msg is a Conventional Commits message
// using one of the conventional types (feat, fix, chore, ...).
func ValidateCommitMessage(msg string) error {
	machine := parser.NewMachine(conventionalcommits.WithTypes(conventionalcommits.TypesConventional))
	parsed, err := machine.Parse([]byte(strings.TrimSpace(msg)))
	if err != nil {
		return WrapErrorf(ErrInvalidCommitMessage, "%q: %s", firstLine(msg), err.Error())
	}
	if parsed == nil || !parsed.Ok() {
		return WrapErrorf(ErrInvalidCommitMessage, "%q", firstLine(msg))
	}
	return nil
}

// DeployMessage builds the commit message recording that services were
// moved to tag, e.g. "chore(deploy): update api, web images to v42".
func DeployMessage(tag string, services ...string) string {
	names := append([]string(nil), services...)
	sort.Strings(names)

	subject := "images"
	if len(names) > 0 {
		subject = strings.Join(names, ", ") + " images"
	}
	if len(names) == 1 {
		subject = names[0] + " image"
	}
	return fmt.Sprintf("chore(%s): update %s to %s", DeployScope, subject, tag)
}

func firstLine(msg string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(msg), "\n")
	return line
}
