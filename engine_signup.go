package authcore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/callvault/authcore/internal"
)

// Signup creates an unverified identity, mints a verification token, hands
// the verification email to the dispatcher, and issues a session immediately.
// The caller is logged in before verifying; Login stays gated on
// verification.
func (e *Engine) Signup(ctx context.Context, req SignupRequest) (*SignupResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	emailAddr := normalizeEmail(req.Email)
	if err := e.validateEmail(emailAddr); err != nil {
		e.metricInc(MetricSignupValidationFailure)
		e.emitAudit(ctx, auditSignup, false, "", emailAddr, err, nil)
		return nil, err
	}
	if err := e.validatePassword(req.Password); err != nil {
		e.metricInc(MetricSignupValidationFailure)
		e.emitAudit(ctx, auditSignup, false, "", emailAddr, err, nil)
		return nil, err
	}

	digest, err := e.hashPassword(ctx, req.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	identity := Identity{
		ID:           uuid.NewString(),
		Email:        emailAddr,
		PasswordHash: digest,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	storeCtx, cancel := e.storeCtx(ctx)
	err = e.identities.Create(storeCtx, identity)
	cancel()
	if err != nil {
		mapped := e.mapStoreError(err)
		if mapped == ErrDuplicateEmail {
			e.metricInc(MetricSignupDuplicate)
		}
		e.emitAudit(ctx, auditSignup, false, "", emailAddr, mapped, nil)
		return nil, mapped
	}

	// A failed token write does not unwind the signup: the account exists and
	// verification can be re-requested.
	if token, hash, tokErr := internal.NewOpaqueToken(); tokErr == nil {
		storeCtx, cancel := e.storeCtx(ctx)
		setErr := e.identities.SetVerificationToken(storeCtx, identity.ID, hash, now.Add(e.config.EmailVerification.TokenTTL))
		cancel()
		if setErr == nil {
			_ = e.mailer.SendVerificationEmail(ctx, emailAddr, token, e.config.EmailVerification.TokenTTL)
			e.metricInc(MetricEmailEnqueued)
			e.metricInc(MetricVerificationRequested)
		} else {
			e.emitAudit(ctx, auditVerificationRequest, false, identity.ID, emailAddr, e.mapStoreError(setErr), nil)
		}
	}

	sessionToken, err := e.codec.Issue(identity.ID, identity.Email)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricSessionIssued)
	e.metricInc(MetricSignupSuccess)
	e.emitAudit(ctx, auditSignup, true, identity.ID, emailAddr, nil, nil)
	e.recordSuccess(ctx, limiterKeys(ctx, emailAddr))

	return &SignupResult{
		Identity:     identity,
		SessionToken: sessionToken,
		ExpiresAt:    now.Add(e.config.Token.SessionTTL),
	}, nil
}
