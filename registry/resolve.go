package registry

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/distribution/reference"
	"github.com/opencontainers/go-digest"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/errcode"
	"oras.land/oras-go/v2/registry/remote/retry"

	"github.com/saimanas17/housing-price-prediction-mlops/errors"
)

// Resolve asks the registry for the manifest digest of ref. It confirms a
// pushed tag is really available remotely. Credentials from the last Login
// are used; otherwise the request is anonymous.
func (c *Client) Resolve(ctx context.Context, ref string) (digest.Digest, error) {
	named, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return "", errors.WrapWithContext(err, errors.CodeInvalidInput, "invalid image reference",
			map[string]interface{}{"image": ref})
	}
	tagged, ok := named.(reference.Tagged)
	if !ok {
		return "", errors.New(errors.CodeInvalidInput, "image reference has no tag").WithContext("image", ref)
	}

	repo, err := c.repository(named)
	if err != nil {
		return "", err
	}

	desc, err := repo.Resolve(ctx, tagged.Tag())
	if err != nil {
		return "", mapResolveError(ref, err)
	}
	if err := desc.Digest.Validate(); err != nil {
		return "", errors.WrapWithContext(err, errors.CodePublishFailed, "registry returned an invalid digest",
			map[string]interface{}{"image": ref})
	}

	c.log(ctx, "image resolved",
		slog.String("image", ref),
		slog.String("digest", desc.Digest.String()),
	)
	return desc.Digest, nil
}

// repository builds an oras remote repository for named with the client's
// transport and credentials.
func (c *Client) repository(named reference.Named) (*remote.Repository, error) {
	repo, err := remote.NewRepository(named.Name())
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeInvalidInput, "failed to create repository",
			map[string]interface{}{"repository": named.Name()})
	}
	repo.PlainHTTP = c.plainHTTP

	httpClient := retry.DefaultClient
	if c.transport != nil {
		httpClient = &http.Client{Transport: c.transport}
	}

	client := &auth.Client{
		Client: httpClient,
		Cache:  auth.NewCache(),
	}
	client.SetUserAgent("housing-deployer")
	if c.creds != nil {
		client.Credential = auth.StaticCredential(reference.Domain(named), auth.Credential{
			Username: c.creds.Username,
			Password: c.creds.Password,
		})
	}
	repo.Client = client

	return repo, nil
}

func mapResolveError(ref string, err error) error {
	ctx := map[string]interface{}{"image": ref}

	if errors.IsCancellation(err) {
		return errors.Wrap(err, errors.CodeCancelled, "resolve cancelled")
	}
	if stderrors.Is(err, errdef.ErrNotFound) {
		return errors.WrapWithContext(err, errors.CodeNotFound, "image tag not found in registry", ctx)
	}

	if stderrors.Is(err, auth.ErrBasicCredentialNotFound) {
		return errors.WrapWithContext(err, errors.CodeUnauthorized, "registry requires credentials", ctx)
	}

	var resp *errcode.ErrorResponse
	if stderrors.As(err, &resp) {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return errors.WrapWithContext(err, errors.CodeUnauthorized, "registry denied access", ctx)
		case http.StatusNotFound:
			return errors.WrapWithContext(err, errors.CodeNotFound, "image tag not found in registry", ctx)
		}
	}

	return errors.WrapWithContext(err, errors.CodeNetwork, "failed to resolve image", ctx)
}
