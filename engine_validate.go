package authcore

import (
	"context"
	"errors"
)

// ValidateSession verifies a session token and re-fetches the identity it
// names. The store record is authoritative: a token whose identity no longer
// exists is invalid, never trusted on its claims alone.
func (e *Engine) ValidateSession(ctx context.Context, token string) (*Session, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.codec.Verify(token)
	if err != nil {
		e.metricInc(MetricSessionRejected)
		e.emitAudit(ctx, auditSessionRejected, false, "", "", err, nil)
		return nil, ErrInvalidToken
	}

	storeCtx, cancel := e.storeCtx(ctx)
	identity, err := e.identities.GetByID(storeCtx, claims.Subject)
	cancel()
	if err != nil {
		mapped := e.mapStoreError(err)
		if errors.Is(mapped, ErrIdentityNotFound) {
			e.metricInc(MetricSessionRejected)
			e.emitAudit(ctx, auditSessionRejected, false, claims.Subject, claims.Email, ErrInvalidToken,
				map[string]string{"reason": "identity_missing"})
			return nil, ErrInvalidToken
		}
		return nil, mapped
	}

	return &Session{
		IdentityID:    identity.ID,
		Email:         identity.Email,
		EmployeeID:    identity.EmployeeID,
		EmailVerified: identity.EmailVerified,
		ExpiresAt:     claims.ExpiresAt.Time,
	}, nil
}
