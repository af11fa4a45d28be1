package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/callvault/authcore/internal"
)

// ForgotPassword mints a reset token and enqueues the reset email. The
// response is identical whether or not the email is registered; unknown
// emails count as limiter failures to throttle enumeration.
func (e *Engine) ForgotPassword(ctx context.Context, emailAddr string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	emailAddr = normalizeEmail(emailAddr)
	if err := e.validateEmail(emailAddr); err != nil {
		return err
	}

	keys := limiterKeys(ctx, emailAddr)
	if err := e.checkLimiter(ctx, keys); err != nil {
		return err
	}

	storeCtx, cancel := e.storeCtx(ctx)
	identity, err := e.identities.GetByEmail(storeCtx, emailAddr)
	cancel()
	if err != nil {
		mapped := e.mapStoreError(err)
		if errors.Is(mapped, ErrIdentityNotFound) {
			e.recordFailure(ctx, keys)
			e.metricInc(MetricEnumerationProbe)
			e.emitAudit(ctx, auditEnumerationProbe, false, "", emailAddr, nil,
				map[string]string{"flow": "forgot_password"})
			return nil
		}
		return mapped
	}

	token, hash, err := internal.NewOpaqueToken()
	if err != nil {
		return err
	}

	storeCtx, cancel = e.storeCtx(ctx)
	err = e.identities.SetResetToken(storeCtx, identity.ID, hash, time.Now().UTC().Add(e.config.PasswordReset.TokenTTL))
	cancel()
	if err != nil {
		mapped := e.mapStoreError(err)
		e.emitAudit(ctx, auditForgotPassword, false, identity.ID, emailAddr, mapped, nil)
		return mapped
	}

	_ = e.mailer.SendPasswordResetEmail(ctx, emailAddr, token, e.config.PasswordReset.TokenTTL)
	e.metricInc(MetricEmailEnqueued)
	e.metricInc(MetricResetRequested)
	e.emitAudit(ctx, auditForgotPassword, true, identity.ID, emailAddr, nil, nil)
	e.recordSuccess(ctx, keys)
	return nil
}

// ResetPassword consumes a reset token and installs the new password. The new
// password is validated against the policy before the token is spent, so a
// policy failure never burns the token.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if token == "" {
		return ErrInvalidOrExpiredToken
	}
	if err := e.validatePassword(newPassword); err != nil {
		return err
	}

	digest, err := e.hashPassword(ctx, newPassword)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	storeCtx, cancel := e.storeCtx(ctx)
	identity, err := e.identities.ConsumeResetToken(storeCtx, internal.HashOpaqueToken(token), digest, now)
	cancel()
	if err != nil {
		mapped := e.mapStoreError(err)
		if errors.Is(mapped, ErrInvalidOrExpiredToken) {
			e.metricInc(MetricResetFailure)
			e.emitAudit(ctx, auditResetPassword, false, "", "", mapped, nil)
		}
		return mapped
	}

	// A completed reset is proof of account control; clear any lockout the
	// forgotten password accumulated.
	e.recordSuccess(ctx, limiterKeys(ctx, identity.Email))

	e.metricInc(MetricResetSuccess)
	e.emitAudit(ctx, auditResetPassword, true, identity.ID, identity.Email, nil, nil)
	return nil
}
