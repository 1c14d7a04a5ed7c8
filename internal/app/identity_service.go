/**
 * @description
 * Administrative operations on identities and accounts: onboarding, listing,
 * credential changes, and account opening. These sit beside the ledger engine
 * in the same service because they share its guard-first shape and its store.
 *
 * @dependencies
 * - internal/auth, internal/domain, internal/store: Collaborators.
 * - pkg/hasher: Secret hashing for onboarding and credential changes.
 */

package app

import (
	"context"
	"errors"
	"log"

	"github.com/frappster/ledger-service/internal/auth"
	"github.com/frappster/ledger-service/internal/domain"
	"github.com/frappster/ledger-service/internal/store"
	"github.com/frappster/ledger-service/pkg/hasher"
)

// IdentityService handles identity and account administration.
type IdentityService struct {
	store    store.Store
	sessions *auth.Manager
	hasher   hasher.Hasher
	scale    int32
}

// NewIdentityService creates the administration service. scale is the
// declared fractional precision newly opened accounts carry.
func NewIdentityService(st store.Store, sessions *auth.Manager, h hasher.Hasher, scale int32) *IdentityService {
	if scale < 0 {
		scale = 2
	}
	return &IdentityService{store: st, sessions: sessions, hasher: h, scale: scale}
}

// CreateIdentity onboards a new principal. Requires the identity-management
// grant; creating an administrator additionally requires the caller to hold
// the Administrator tier, so employees cannot mint their own superiors.
func (s *IdentityService) CreateIdentity(ctx context.Context, session *auth.Session, loginID, secret string, role domain.AccessRole) (*domain.Identity, error) {
	allowed, err := s.sessions.HasPermission(ctx, session, domain.PermManageIdentities)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, auth.ErrPermissionDenied
	}
	if role == domain.RoleAdministrator {
		admin, err := s.sessions.RequiresRole(ctx, session, domain.RoleAdministrator)
		if err != nil {
			return nil, err
		}
		if !admin {
			return nil, auth.ErrPermissionDenied
		}
	}

	hash, err := s.hasher.Hash(secret)
	if err != nil {
		log.Printf("level=error component=identity msg=\"secret hash failed\" err=%v", err)
		return nil, err
	}
	identity, err := domain.NewIdentity(loginID, role, hash)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateIdentity(ctx, identity); err != nil {
		if errors.Is(err, store.ErrDuplicateIdentity) {
			return nil, store.ErrDuplicateIdentity
		}
		log.Printf("level=error component=identity msg=\"identity create failed\" login_id=%s err=%v", loginID, err)
		return nil, store.ErrStoreUnavailable
	}
	log.Printf("level=info component=identity msg=\"identity created\" login_id=%s role=%s by=%s", identity.LoginID, role, session.LoginID)
	return identity, nil
}

// ListIdentities returns every identity, ordered by login id. Staff only.
func (s *IdentityService) ListIdentities(ctx context.Context, session *auth.Session) ([]domain.Identity, error) {
	allowed, err := s.sessions.HasPermission(ctx, session, domain.PermManageIdentities)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, auth.ErrPermissionDenied
	}
	identities, err := s.store.ListIdentities(ctx)
	if err != nil {
		log.Printf("level=error component=identity msg=\"identity list failed\" err=%v", err)
		return nil, store.ErrStoreUnavailable
	}
	return identities, nil
}

// UpdateOwnCredentials rotates the caller's secret after verifying the
// current one. The verification failure is indistinguishable from a login
// failure.
func (s *IdentityService) UpdateOwnCredentials(ctx context.Context, session *auth.Session, currentSecret, newSecret string) error {
	allowed, err := s.sessions.HasPermission(ctx, session, domain.PermUpdateOwnCredentials)
	if err != nil {
		return err
	}
	if !allowed {
		return auth.ErrPermissionDenied
	}
	if newSecret == "" {
		return domain.ErrMissingField
	}

	newHash, err := s.hasher.Hash(newSecret)
	if err != nil {
		log.Printf("level=error component=identity msg=\"secret hash failed\" err=%v", err)
		return err
	}

	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		identity, err := tx.IdentityForUpdate(ctx, session.LoginID)
		if err != nil {
			return err
		}
		if !s.hasher.Verify(currentSecret, identity.SecretHash) {
			return auth.ErrInvalidCredentials
		}
		identity.SecretHash = newHash
		return tx.PersistIdentity(ctx, identity)
	})
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return err
		}
		log.Printf("level=error component=identity msg=\"credential update failed\" login_id=%s err=%v", session.LoginID, err)
		return store.ErrStoreUnavailable
	}
	log.Printf("level=info component=identity msg=\"credentials rotated\" login_id=%s", session.LoginID)
	return nil
}

// ResetCredentials sets a new secret for another identity without knowing the
// old one. Staff only; also clears any active lockout so a support reset
// immediately unblocks the principal.
func (s *IdentityService) ResetCredentials(ctx context.Context, session *auth.Session, targetLoginID, newSecret string) error {
	allowed, err := s.sessions.HasPermission(ctx, session, domain.PermManageIdentities)
	if err != nil {
		return err
	}
	if !allowed {
		return auth.ErrPermissionDenied
	}
	if newSecret == "" {
		return domain.ErrMissingField
	}

	newHash, err := s.hasher.Hash(newSecret)
	if err != nil {
		log.Printf("level=error component=identity msg=\"secret hash failed\" err=%v", err)
		return err
	}

	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		identity, err := tx.IdentityForUpdate(ctx, targetLoginID)
		if err != nil {
			return err
		}
		identity.SecretHash = newHash
		identity.FailedAttempts = 0
		identity.LockoutUntil = nil
		return tx.PersistIdentity(ctx, identity)
	})
	if err != nil {
		if errors.Is(err, store.ErrIdentityNotFound) {
			return store.ErrIdentityNotFound
		}
		log.Printf("level=error component=identity msg=\"credential reset failed\" login_id=%s err=%v", targetLoginID, err)
		return store.ErrStoreUnavailable
	}
	log.Printf("level=info component=identity msg=\"credentials reset\" login_id=%s by=%s", targetLoginID, session.LoginID)
	return nil
}

// CreateAccount opens a new account for an identity. Staff only; the store
// assigns the account number.
func (s *IdentityService) CreateAccount(ctx context.Context, session *auth.Session, ownerLoginID string, accountType domain.AccountType) (*domain.Account, error) {
	allowed, err := s.sessions.HasPermission(ctx, session, domain.PermManageAccounts)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, auth.ErrPermissionDenied
	}

	owner, err := s.store.FindIdentityByLoginID(ctx, ownerLoginID)
	if err != nil {
		if errors.Is(err, store.ErrIdentityNotFound) {
			return nil, store.ErrIdentityNotFound
		}
		log.Printf("level=error component=identity msg=\"owner lookup failed\" login_id=%s err=%v", ownerLoginID, err)
		return nil, store.ErrStoreUnavailable
	}

	account, err := domain.NewAccount(owner.ID, accountType, s.scale)
	if err != nil {
		return nil, err
	}
	created, err := s.store.CreateAccount(ctx, account)
	if err != nil {
		log.Printf("level=error component=identity msg=\"account create failed\" login_id=%s err=%v", ownerLoginID, err)
		return nil, store.ErrStoreUnavailable
	}
	log.Printf("level=info component=identity msg=\"account opened\" number=%d owner=%s type=%s by=%s", created.Number, ownerLoginID, accountType, session.LoginID)
	return created, nil
}

// EnsureBootstrapAdmin creates the initial administrator if no identity with
// the given login id exists yet. Called at startup so a fresh deployment is
// never locked out of its own administration surface.
func (s *IdentityService) EnsureBootstrapAdmin(ctx context.Context, loginID, secret string) error {
	if loginID == "" || secret == "" {
		return nil
	}
	if _, err := s.store.FindIdentityByLoginID(ctx, loginID); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrIdentityNotFound) {
		return err
	}

	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return err
	}
	identity, err := domain.NewIdentity(loginID, domain.RoleAdministrator, hash)
	if err != nil {
		return err
	}
	if err := s.store.CreateIdentity(ctx, identity); err != nil {
		// Lost a race with another instance bootstrapping the same admin.
		if errors.Is(err, store.ErrDuplicateIdentity) {
			return nil
		}
		return err
	}
	log.Printf("level=info component=identity msg=\"bootstrap administrator created\" login_id=%s", loginID)
	return nil
}
