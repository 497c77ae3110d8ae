package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"xui-shop-core/internal/catalog"
	"xui-shop-core/internal/helpers"
	"xui-shop-core/internal/models"
)

// Registry is the local user registry as seen by the entitlement core
type Registry interface {
	List(ctx context.Context) ([]models.LocalUser, error)
	SetVPNEmail(ctx context.Context, telegramID int64, email *string) error
	UpsertOnStart(ctx context.Context, telegramID int64, profile models.Profile) error
	Count(ctx context.Context) (int64, error)
}

// ReconciliationEngine aligns the registry and the add-on services with panel truth
type ReconciliationEngine struct {
	catalog     *catalog.Catalog
	directory   *ClientDirectory
	provisioner *Provisioner
	registry    Registry
	logger      *logrus.Logger
}

// NewReconciliationEngine creates a new reconciliation engine
func NewReconciliationEngine(c *catalog.Catalog, directory *ClientDirectory, provisioner *Provisioner, registry Registry, logger *logrus.Logger) *ReconciliationEngine {
	return &ReconciliationEngine{
		catalog:     c,
		directory:   directory,
		provisioner: provisioner,
		registry:    registry,
		logger:      logger,
	}
}

type canonicalRecord struct {
	email     string
	priority  int
	inboundID int
	client    models.ClientRecord
}

// panelIndex is one snapshot of the panel keyed for reconciliation
type panelIndex struct {
	canonical map[int64]canonicalRecord
	order     []int64
	byUser    map[int]map[int64]models.ClientRecord
	byEmail   map[int]map[string]models.ClientRecord
}

func (e *ReconciliationEngine) index(inbounds []models.Inbound) panelIndex {
	idx := panelIndex{
		canonical: make(map[int64]canonicalRecord),
		byUser:    make(map[int]map[int64]models.ClientRecord),
		byEmail:   make(map[int]map[string]models.ClientRecord),
	}

	for _, inbound := range inbounds {
		if inbound.ID <= 0 {
			continue
		}
		priority := e.catalog.Priority(inbound.ID)
		users := idx.byUser[inbound.ID]
		if users == nil {
			users = make(map[int64]models.ClientRecord)
			idx.byUser[inbound.ID] = users
		}
		emails := idx.byEmail[inbound.ID]
		if emails == nil {
			emails = make(map[string]models.ClientRecord)
			idx.byEmail[inbound.ID] = emails
		}

		for _, client := range inbound.Clients {
			email := client.Email()
			if _, seen := emails[email]; !seen {
				emails[email] = client
			}

			tgID, ok := helpers.ExtractTelegramID(email)
			if !ok {
				continue
			}
			if _, seen := users[tgID]; !seen {
				users[tgID] = client
			}

			current, seen := idx.canonical[tgID]
			if !seen {
				idx.order = append(idx.order, tgID)
			}
			if !seen || priority < current.priority {
				idx.canonical[tgID] = canonicalRecord{
					email:     email,
					priority:  priority,
					inboundID: inbound.ID,
					client:    client,
				}
			}
		}
	}

	return idx
}

// Reconcile runs one pass. Per-user failures are counted in Errors and do not stop the pass.
func (e *ReconciliationEngine) Reconcile(ctx context.Context, session *models.Session) (models.SyncStats, error) {
	var stats models.SyncStats

	inbounds, err := e.directory.Snapshot(ctx, session)
	if err != nil {
		return stats, fmt.Errorf("failed to fetch inbounds: %w", err)
	}

	idx := e.index(inbounds)
	stats.UsersInPanel = len(idx.canonical)

	users, err := e.registry.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list registry: %w", err)
	}
	stats.UsersInRegistry = len(users)

	registered := make(map[int64]struct{}, len(users))
	for _, user := range users {
		registered[user.TelegramID] = struct{}{}
		e.repairUser(ctx, user, idx, &stats)
	}

	for _, addon := range e.catalog.AutoAssign() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		e.assignAddon(ctx, session, addon, idx, &stats)
	}

	for _, tgID := range idx.order {
		if _, ok := registered[tgID]; ok {
			continue
		}
		record := idx.canonical[tgID]
		if err := e.registry.UpsertOnStart(ctx, tgID, models.Profile{}); err != nil {
			e.logger.Errorf("Failed to add panel user %d to registry: %v", tgID, err)
			stats.Errors++
			continue
		}
		email := record.email
		if err := e.registry.SetVPNEmail(ctx, tgID, &email); err != nil {
			e.logger.Errorf("Failed to set vpn email for new registry user %d: %v", tgID, err)
			stats.Errors++
			continue
		}
		stats.Synced++
	}

	if n, err := e.registry.Count(ctx); err == nil {
		stats.UsersInRegistry = int(n)
	} else {
		e.logger.Warnf("Failed to count registry users: %v", err)
	}

	e.logger.Infof("Reconcile done: registry=%d panel=%d synced=%d updated=%d cleared=%d errors=%d extra=%d",
		stats.UsersInRegistry, stats.UsersInPanel, stats.Synced, stats.Updated, stats.Cleared, stats.Errors, stats.ExtraClientsAdded)
	return stats, nil
}

// repairUser writes the canonical email into the registry or clears a stale one
func (e *ReconciliationEngine) repairUser(ctx context.Context, user models.LocalUser, idx panelIndex, stats *models.SyncStats) {
	stored := user.StoredEmail()

	record, ok := idx.canonical[user.TelegramID]
	if !ok {
		if stored == "" {
			return
		}
		if err := e.registry.SetVPNEmail(ctx, user.TelegramID, nil); err != nil {
			e.logger.Errorf("Failed to clear vpn email of %d: %v", user.TelegramID, err)
			stats.Errors++
			return
		}
		stats.Cleared++
		return
	}

	if stored != record.email {
		email := record.email
		if err := e.registry.SetVPNEmail(ctx, user.TelegramID, &email); err != nil {
			e.logger.Errorf("Failed to sync vpn email of %d: %v", user.TelegramID, err)
			stats.Errors++
			return
		}
		stats.Updated++
	}
	stats.Synced++
}

// assignAddon provisions addon for every panel user holding one of its trigger services
func (e *ReconciliationEngine) assignAddon(ctx context.Context, session *models.Session, addon catalog.Service, idx panelIndex, stats *models.SyncStats) {
	triggers := e.catalog.Triggers(addon)
	existingByEmail := idx.byEmail[addon.InboundID]
	if existingByEmail == nil {
		existingByEmail = make(map[string]models.ClientRecord)
		idx.byEmail[addon.InboundID] = existingByEmail
	}

	for _, tgID := range idx.order {
		var triggerClients []models.ClientRecord
		for _, trigger := range triggers {
			if trigger.InboundID == addon.InboundID {
				continue
			}
			if client, ok := idx.byUser[trigger.InboundID][tgID]; ok {
				triggerClients = append(triggerClients, client)
			}
		}
		if len(triggerClients) == 0 {
			continue
		}

		email := addon.EmailFor(tgID)
		existing := existingByEmail[email]

		candidates := make([]models.ClientRecord, 0, len(triggerClients)+2)
		candidates = append(candidates, idx.canonical[tgID].client)
		if existing != nil {
			candidates = append(candidates, existing)
		}
		candidates = append(candidates, triggerClients...)
		template := latestExpiry(candidates)

		result, err := e.provisioner.ApplyExpiry(ctx, session, addon, tgID, email, existing, template.ExpiryTime(), template)
		if err != nil {
			e.logger.Errorf("Failed to provision %s for user %d: %v", addon.Key, tgID, err)
			stats.Errors++
			continue
		}

		switch result.Outcome {
		case OutcomeCreated:
			stats.ExtraClientsAdded++
			existingByEmail[email] = result.Client
			e.logger.Infof("Reconcile: added %s to inbound %d", email, addon.InboundID)
		case OutcomeExtended:
			stats.Synced++
			existingByEmail[email] = result.Client
		}
	}
}

// latestExpiry returns the first candidate with the greatest expiry, unlimited first
func latestExpiry(candidates []models.ClientRecord) models.ClientRecord {
	var best models.ClientRecord
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if best == nil || laterExpiry(c.ExpiryTime(), best.ExpiryTime()) {
			best = c
		}
	}
	return best
}
