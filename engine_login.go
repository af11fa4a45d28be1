package authcore

import (
	"context"
	"errors"
	"time"
)

// dummyPassword feeds burnHash on lookup misses so an unknown account costs
// the same as a wrong password.
const dummyPassword = "authcore-timing-equalizer"

// Login authenticates by email or employee ID and issues a session token.
// An unverified email refuses the login without counting a limiter failure.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	accountKey := normalizeEmail(req.Email)
	byEmail := accountKey != ""
	if !byEmail {
		accountKey = req.EmployeeID
	}
	if accountKey == "" {
		return nil, &ValidationError{Field: "email", Reason: "email or employee id required"}
	}

	keys := limiterKeys(ctx, accountKey)
	if err := e.checkLimiter(ctx, keys); err != nil {
		return nil, err
	}

	if req.Password == "" {
		e.recordFailure(ctx, keys)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditLogin, false, "", accountKey, ErrInvalidCredentials,
			map[string]string{"reason": "empty_password"})
		return nil, ErrInvalidCredentials
	}

	storeCtx, cancel := e.storeCtx(ctx)
	var identity Identity
	var err error
	if byEmail {
		identity, err = e.identities.GetByEmail(storeCtx, accountKey)
	} else {
		identity, err = e.identities.GetByEmployeeID(storeCtx, accountKey)
	}
	cancel()

	if err != nil {
		mapped := e.mapStoreError(err)
		if errors.Is(mapped, ErrIdentityNotFound) {
			e.burnHash(ctx, dummyPassword)
			e.recordFailure(ctx, keys)
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditLogin, false, "", accountKey, ErrInvalidCredentials,
				map[string]string{"reason": "unknown_account"})
			return nil, ErrInvalidCredentials
		}
		e.emitAudit(ctx, auditLogin, false, "", accountKey, mapped, nil)
		return nil, mapped
	}

	if !e.verifyPassword(ctx, req.Password, identity.PasswordHash) {
		e.recordFailure(ctx, keys)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditLogin, false, identity.ID, identity.Email, ErrInvalidCredentials,
			map[string]string{"reason": "password_mismatch"})
		return nil, ErrInvalidCredentials
	}

	if !identity.EmailVerified {
		e.metricInc(MetricLoginUnverified)
		e.emitAudit(ctx, auditLogin, false, identity.ID, identity.Email, ErrEmailNotVerified, nil)
		return nil, ErrEmailNotVerified
	}

	e.recordSuccess(ctx, keys)
	e.maybeUpgradeHash(ctx, identity, req.Password)

	sessionToken, err := e.codec.Issue(identity.ID, identity.Email)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricSessionIssued)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditLogin, true, identity.ID, identity.Email, nil, nil)

	return &LoginResult{
		Identity:     identity,
		SessionToken: sessionToken,
		ExpiresAt:    time.Now().UTC().Add(e.config.Token.SessionTTL),
	}, nil
}

// maybeUpgradeHash re-hashes a password stored under stale cost parameters.
// Best-effort: a store failure leaves the old digest in place and the login
// proceeds.
func (e *Engine) maybeUpgradeHash(ctx context.Context, identity Identity, plaintext string) {
	needs, err := e.hasher.NeedsUpgrade(identity.PasswordHash)
	if err != nil || !needs {
		return
	}

	digest, err := e.hashPassword(ctx, plaintext)
	if err != nil {
		return
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.identities.UpdatePasswordHash(storeCtx, identity.ID, digest); err != nil {
		e.emitAudit(ctx, auditLogin, false, identity.ID, identity.Email, e.mapStoreError(err),
			map[string]string{"reason": "hash_upgrade_failed"})
	}
}
