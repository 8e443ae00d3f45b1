package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/arcade/backend/internal/domain/license"
	"github.com/arcade/backend/internal/domain/operator"
	"github.com/arcade/backend/internal/domain/shared"
	"github.com/arcade/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// AuthorizationValidator runs the read-only checks that precede billing.
// Order: credential, account status, session id, idempotency lookup, site
// ownership, entitlement, player count. Nothing is written here.
type AuthorizationValidator struct {
	credentials CredentialVerifier
	accounts    operator.AccountRepository
	sites       operator.SiteRepository
	apps        license.ApplicationRepository
	grants      license.AuthorizationRepository
	guard       *IdempotencyGuard
	clock       shared.Clock
	logger      *zap.Logger
}

// AuthorizationValidatorConfig holds the validator's collaborators
type AuthorizationValidatorConfig struct {
	Credentials    CredentialVerifier
	Accounts       operator.AccountRepository
	Sites          operator.SiteRepository
	Applications   license.ApplicationRepository
	Authorizations license.AuthorizationRepository
	Guard          *IdempotencyGuard
	Clock          shared.Clock
	Logger         *zap.Logger
}

// NewAuthorizationValidator creates an AuthorizationValidator
func NewAuthorizationValidator(cfg AuthorizationValidatorConfig) *AuthorizationValidator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthorizationValidator{
		credentials: cfg.Credentials,
		accounts:    cfg.Accounts,
		sites:       cfg.Sites,
		apps:        cfg.Applications,
		grants:      cfg.Authorizations,
		guard:       cfg.Guard,
		clock:       cfg.Clock,
		logger:      logger,
	}
}

// Validate runs the chain. On an idempotency hit it returns the committed
// result as replay and a nil ValidatedRequest.
func (v *AuthorizationValidator) Validate(ctx context.Context, creds Credentials, req AuthorizeRequest) (*ValidatedRequest, *AuthorizationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "validate")
	defer span.End()

	identity, err := v.credentials.Verify(ctx, creds)
	if err != nil {
		telemetry.RecordError(span, err)
		if shared.KindOf(err) != "" {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("verify credentials: %w", err)
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrOperatorID.String(identity.OperatorID),
		telemetry.SpanAttrSessionID.String(req.SessionID),
	)

	account, err := v.accounts.FindByID(ctx, identity.OperatorID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// a verified credential for a deleted operator
			return nil, nil, operator.ErrInvalidAPIKey
		}
		return nil, nil, fmt.Errorf("load account: %w", err)
	}
	if err := account.CheckCanTransact(); err != nil {
		return nil, nil, err
	}

	now := v.clock.Now()
	sid, err := v.guard.Validate(req.SessionID, account.ID, now)
	if err != nil {
		return nil, nil, err
	}

	replay, err := v.guard.Lookup(ctx, sid.Raw)
	if err != nil {
		return nil, nil, err
	}
	if replay != nil {
		v.logger.Info("Session already committed, replaying",
			zap.String("operator_id", account.ID),
			zap.String("session_id", sid.Raw))
		telemetry.SetAttributes(span, telemetry.SpanAttrReplayed.Bool(true))
		return nil, replay, nil
	}

	site, err := v.sites.FindByID(ctx, req.SiteID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil, operator.ErrSiteNotFound
		}
		return nil, nil, fmt.Errorf("load site: %w", err)
	}
	if err := site.CheckOwnedBy(account.ID); err != nil {
		return nil, nil, err
	}

	app, err := v.apps.FindByCode(ctx, req.AppCode)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil, license.ErrAppNotFound
		}
		return nil, nil, fmt.Errorf("load application: %w", err)
	}
	if !app.IsActive {
		return nil, nil, license.ErrAppNotFound
	}

	grant, err := v.grants.FindByOperatorAndApplication(ctx, account.ID, app.ID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil, license.ErrAppNotAuthorized
		}
		return nil, nil, fmt.Errorf("load authorization: %w", err)
	}
	if err := grant.Check(now); err != nil {
		return nil, nil, err
	}

	if err := app.ValidatePlayerCount(req.PlayerCount); err != nil {
		return nil, nil, err
	}

	return &ValidatedRequest{
		Account:     account,
		Site:        site,
		Application: app,
		Session:     sid,
		Request:     req,
	}, nil, nil
}
