package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/callvault/authcore/internal"
)

// RequestEmailVerification mints a fresh verification token for the account
// and enqueues the verification email. The response is uniform whether or not
// the email is registered; an unknown email counts as a limiter failure to
// throttle enumeration probes.
func (e *Engine) RequestEmailVerification(ctx context.Context, emailAddr string) error {
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
				map[string]string{"flow": "request_verification"})
			return nil
		}
		return mapped
	}

	// Already verified: nothing to send, same uniform answer.
	if identity.EmailVerified {
		e.recordSuccess(ctx, keys)
		return nil
	}

	token, hash, err := internal.NewOpaqueToken()
	if err != nil {
		return err
	}

	storeCtx, cancel = e.storeCtx(ctx)
	err = e.identities.SetVerificationToken(storeCtx, identity.ID, hash, time.Now().UTC().Add(e.config.EmailVerification.TokenTTL))
	cancel()
	if err != nil {
		mapped := e.mapStoreError(err)
		e.emitAudit(ctx, auditVerificationRequest, false, identity.ID, emailAddr, mapped, nil)
		return mapped
	}

	_ = e.mailer.SendVerificationEmail(ctx, emailAddr, token, e.config.EmailVerification.TokenTTL)
	e.metricInc(MetricEmailEnqueued)
	e.metricInc(MetricVerificationRequested)
	e.emitAudit(ctx, auditVerificationRequest, true, identity.ID, emailAddr, nil, nil)
	e.recordSuccess(ctx, keys)
	return nil
}

// VerifyEmail consumes a verification token: the identity flips to verified,
// an employee ID is minted for it, and a welcome email is enqueued. The token
// is single use; a second call with the same token fails and nothing is
// re-sent.
func (e *Engine) VerifyEmail(ctx context.Context, token string) (*VerifyEmailResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if token == "" {
		return nil, ErrInvalidOrExpiredToken
	}

	now := time.Now().UTC()
	employeeID, err := internal.NewEmployeeID(now)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := e.storeCtx(ctx)
	identity, err := e.identities.ConsumeVerificationToken(storeCtx, internal.HashOpaqueToken(token), employeeID, now)
	cancel()
	if err != nil {
		mapped := e.mapStoreError(err)
		if errors.Is(mapped, ErrInvalidOrExpiredToken) {
			e.metricInc(MetricVerificationFailure)
			e.emitAudit(ctx, auditVerifyEmail, false, "", "", mapped, nil)
		}
		return nil, mapped
	}

	// Welcome delivery is best-effort; its failure never fails verification.
	_ = e.mailer.SendWelcomeEmail(ctx, identity.Email, identity.EmployeeID)
	e.metricInc(MetricEmailEnqueued)
	e.metricInc(MetricVerificationSuccess)
	e.emitAudit(ctx, auditVerifyEmail, true, identity.ID, identity.Email, nil,
		map[string]string{"employee_id": identity.EmployeeID})

	return &VerifyEmailResult{
		Email:      identity.Email,
		EmployeeID: identity.EmployeeID,
	}, nil
}
