package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
	"github.com/ericfisherdev/sonarpanel/internal/domain/port/driven"
)

// CredentialResolver selects the active credential for a host and class.
// It has no side effects.
type CredentialResolver struct {
	store  driven.CredentialStore
	logger *slog.Logger
	now    func() time.Time
}

// NewCredentialResolver creates a CredentialResolver backed by store.
func NewCredentialResolver(store driven.CredentialStore, logger *slog.Logger) *CredentialResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialResolver{store: store, logger: logger, now: time.Now}
}

// Resolve returns the secret of an active credential for host and class, or
// a *MissingCredentialError if there is none. With several active
// credentials for the same pair the one returned is unspecified.
func (r *CredentialResolver) Resolve(ctx context.Context, host string, class model.CredentialClass) (string, error) {
	host = model.NormalizeHostURL(host)
	if host == "" {
		return "", invalidf("host URL is required")
	}
	if !class.Valid() {
		return "", invalidf("unknown credential class %q", class)
	}

	cred, err := r.store.FindActiveByHostAndClass(ctx, host, class)
	if err != nil {
		return "", storeError("resolve credential", err)
	}
	if cred == nil {
		return "", &MissingCredentialError{Host: host, Class: class}
	}

	if cred.Expired(r.now()) {
		r.logger.Warn("resolved credential has expired",
			"credential_id", cred.ID,
			"host", host,
			"class", class,
			"expires_at", cred.ExpiresAt,
		)
	}

	return cred.Value, nil
}
