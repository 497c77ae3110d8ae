package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"xui-shop-core/internal/catalog"
	apperrors "xui-shop-core/internal/errors"
	"xui-shop-core/internal/link"
	"xui-shop-core/internal/metrics"
	"xui-shop-core/internal/models"
	"xui-shop-core/internal/validation"
)

// EntitlementDeps groups the collaborators of EntitlementService
type EntitlementDeps struct {
	Catalog     *catalog.Catalog
	Sessions    *SessionManager
	Directory   *ClientDirectory
	Provisioner *Provisioner
	Reconciler  *ReconciliationEngine
	Links       *link.Synthesizer
	QR          *QRService
	Registry    Registry
	Metrics     *metrics.Metrics
}

// GrantResult reports the primary grant and the bundled add-ons
type GrantResult struct {
	Primary *ProvisionResult   `json:"primary"`
	Extras  []*ProvisionResult `json:"extras,omitempty"`
}

// EntitlementService is the entry point used by chat handlers, cron jobs and the HTTP API
type EntitlementService struct {
	deps   EntitlementDeps
	logger *logrus.Logger

	reconcileMu sync.Mutex
}

// NewEntitlementService creates a new entitlement service
func NewEntitlementService(deps EntitlementDeps, logger *logrus.Logger) *EntitlementService {
	return &EntitlementService{
		deps:   deps,
		logger: logger,
	}
}

// Catalog returns the service catalog
func (s *EntitlementService) Catalog() *catalog.Catalog {
	return s.deps.Catalog
}

// Lookup returns the user's client in a service; a nil client means none
func (s *EntitlementService) Lookup(ctx context.Context, userID int64, serviceKey string) (*models.Inbound, models.ClientRecord, error) {
	svc, err := s.service(serviceKey)
	if err != nil {
		return nil, nil, err
	}

	var (
		inbound *models.Inbound
		client  models.ClientRecord
	)
	err = s.withSession(ctx, func(session *models.Session) error {
		var lookupErr error
		inbound, client, lookupErr = s.deps.Directory.Lookup(ctx, session, svc.EmailFor(userID), svc.InboundID)
		return lookupErr
	})
	if err != nil {
		return nil, nil, err
	}
	return inbound, client, nil
}

// Link returns the connection URI of the user's client in a service
func (s *EntitlementService) Link(ctx context.Context, userID int64, serviceKey string) (string, error) {
	inbound, client, err := s.Lookup(ctx, userID, serviceKey)
	if err != nil {
		return "", err
	}
	if client == nil {
		return "", fmt.Errorf("user %d in %s: %w", userID, serviceKey, apperrors.ErrNoEntitlement)
	}
	return s.deps.Links.Generate(*inbound, client), nil
}

// QRCode renders the user's connection URI as a PNG
func (s *EntitlementService) QRCode(ctx context.Context, userID int64, serviceKey string) ([]byte, error) {
	uri, err := s.Link(ctx, userID, serviceKey)
	if err != nil {
		return nil, err
	}
	return s.deps.QR.GenerateQR(uri)
}

// Grant adds days to a service and to every add-on it triggers. Writes that
// already succeeded are kept when a later one fails.
func (s *EntitlementService) Grant(ctx context.Context, userID int64, serviceKey string, days int) (*GrantResult, error) {
	if err := validation.ValidateDays(days); err != nil {
		return nil, err
	}
	svc, err := s.service(serviceKey)
	if err != nil {
		return nil, err
	}

	result := &GrantResult{}
	err = s.withSession(ctx, func(session *models.Session) error {
		primary, err := s.deps.Provisioner.GrantOrExtend(ctx, session, svc, userID, days, "")
		if err != nil {
			return err
		}
		result.Primary = primary

		if def, ok := s.deps.Catalog.Default(); ok && def.Key == svc.Key {
			s.rememberEmail(ctx, userID, primary.Email)
		}

		for _, addon := range s.addonsFor(svc) {
			extra, err := s.deps.Provisioner.GrantOrExtend(ctx, session, addon, userID, days, "")
			if err != nil {
				return fmt.Errorf("bundled service %s: %w", addon.Key, err)
			}
			result.Extras = append(result.Extras, extra)
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	s.logger.Infof("Granted %d days of %s to user %d (%s)", days, svc.Key, userID, result.Primary.Outcome)
	return result, nil
}

// Reconcile runs one reconciliation pass; overlapping calls get ErrReconcileInProgress
func (s *EntitlementService) Reconcile(ctx context.Context) (models.SyncStats, error) {
	if !s.reconcileMu.TryLock() {
		return models.SyncStats{}, apperrors.ErrReconcileInProgress
	}
	defer s.reconcileMu.Unlock()

	var stats models.SyncStats
	err := s.withSession(ctx, func(session *models.Session) error {
		var runErr error
		stats, runErr = s.deps.Reconciler.Reconcile(ctx, session)
		return runErr
	})
	if err != nil {
		s.deps.Metrics.ReconcileFailed()
		return stats, err
	}

	s.deps.Metrics.ReconcileDone(stats)
	return stats, nil
}

// withSession runs fn with a panel session and drops the session when the panel rejects it
func (s *EntitlementService) withSession(ctx context.Context, fn func(session *models.Session) error) error {
	session, err := s.deps.Sessions.Session(ctx)
	if err != nil {
		return err
	}

	err = fn(session)
	if errors.Is(err, apperrors.ErrUnauthorized) {
		s.logger.Warn("Panel rejected the session, dropping it")
		s.deps.Sessions.Invalidate(ctx)
	}
	return err
}

func (s *EntitlementService) service(key string) (catalog.Service, error) {
	svc, ok := s.deps.Catalog.Get(key)
	if !ok {
		return catalog.Service{}, fmt.Errorf("%w: %s", apperrors.ErrUnknownService, key)
	}
	return svc, nil
}

// addonsFor returns the auto-assign services svc triggers
func (s *EntitlementService) addonsFor(svc catalog.Service) []catalog.Service {
	var out []catalog.Service
	for _, addon := range s.deps.Catalog.AutoAssign() {
		if addon.Key == svc.Key {
			continue
		}
		for _, trigger := range s.deps.Catalog.Triggers(addon) {
			if trigger.Key == svc.Key {
				out = append(out, addon)
				break
			}
		}
	}
	return out
}

// rememberEmail mirrors the primary email into the registry; failures only log
func (s *EntitlementService) rememberEmail(ctx context.Context, userID int64, email string) {
	if s.deps.Registry == nil {
		return
	}
	if err := s.deps.Registry.UpsertOnStart(ctx, userID, models.Profile{}); err != nil {
		s.logger.Warnf("Failed to register user %d: %v", userID, err)
		return
	}
	if err := s.deps.Registry.SetVPNEmail(ctx, userID, &email); err != nil {
		s.logger.Warnf("Failed to store vpn email of %d: %v", userID, err)
	}
}
