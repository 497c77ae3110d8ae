package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xui-shop-core/internal/catalog"
	"xui-shop-core/internal/models"
)

func seedReconcilePanel(panel *fakePanel) (e1, e2, e3 int64) {
	e1 = testNow.UnixMilli() + 5*day
	e2 = testNow.UnixMilli() + 40*day
	e3 = testNow.UnixMilli() + 9*day
	panel.seed(1, models.ClientRecord{"id": "s7", "email": "7", "expiryTime": e1})
	panel.seed(2,
		models.ClientRecord{"id": "o7", "email": "7-obhod", "expiryTime": e2},
		models.ClientRecord{"id": "o9", "email": "9-obhod", "expiryTime": e3, "totalGB": int64(10)},
	)
	return e1, e2, e3
}

func TestReconcileRepairsRegistryAndAssignsAddons(t *testing.T) {
	panel := newFakePanel()
	_, e2, e3 := seedReconcilePanel(panel)
	registry := newFakeRegistry(
		models.LocalUser{TelegramID: 7, VPNEmail: strPtr("old")},
		models.LocalUser{TelegramID: 5, VPNEmail: strPtr("5")},
	)
	tc := newTestCore(t, panel, registry)

	stats, err := tc.reconciler.Reconcile(context.Background(), tc.session(t))
	require.NoError(t, err)
	assert.Equal(t, models.SyncStats{
		UsersInRegistry:   3,
		UsersInPanel:      2,
		Synced:            2,
		Updated:           1,
		Cleared:           1,
		ExtraClientsAdded: 2,
	}, stats)

	email, _ := registry.email(7)
	assert.Equal(t, "7", email, "lowest priority inbound wins")
	email, _ = registry.email(5)
	assert.Equal(t, "", email)
	email, ok := registry.email(9)
	require.True(t, ok, "panel-only user is registered")
	assert.Equal(t, "9-obhod", email)

	addon7 := panel.client(6, "7-vmess")
	require.NotNil(t, addon7)
	assert.Equal(t, e2, addon7.ExpiryTime(), "add-on copies the latest trigger expiry")
	assert.Equal(t, "auto", addon7["security"])
	assert.Equal(t, "7", addon7["tgId"])

	addon9 := panel.client(6, "9-vmess")
	require.NotNil(t, addon9)
	assert.Equal(t, e3, addon9.ExpiryTime())
	assert.Equal(t, int64(10), addon9["totalGB"])
}

func TestReconcileIsIdempotent(t *testing.T) {
	panel := newFakePanel()
	seedReconcilePanel(panel)
	registry := newFakeRegistry(
		models.LocalUser{TelegramID: 7, VPNEmail: strPtr("old")},
		models.LocalUser{TelegramID: 5, VPNEmail: strPtr("5")},
	)
	tc := newTestCore(t, panel, registry)
	ctx := context.Background()

	_, err := tc.reconciler.Reconcile(ctx, tc.session(t))
	require.NoError(t, err)
	adds, updates := panel.adds, panel.updates

	stats, err := tc.reconciler.Reconcile(ctx, tc.session(t))
	require.NoError(t, err)
	assert.Equal(t, models.SyncStats{
		UsersInRegistry: 3,
		UsersInPanel:    2,
		Synced:          2,
	}, stats)
	assert.Equal(t, adds, panel.adds)
	assert.Equal(t, updates, panel.updates)
}

func TestReconcileExtendsLaggingAddon(t *testing.T) {
	panel := newFakePanel()
	_, e2, _ := seedReconcilePanel(panel)
	panel.seed(6, models.ClientRecord{"id": "v7", "email": "7-vmess", "expiryTime": testNow.UnixMilli()})
	tc := newTestCore(t, panel, newFakeRegistry())

	stats, err := tc.reconciler.Reconcile(context.Background(), tc.session(t))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ExtraClientsAdded, "only 9 gets a new add-on")
	assert.Equal(t, 1, panel.updates)
	assert.Equal(t, e2, panel.client(6, "7-vmess").ExpiryTime())
}

func TestReconcileKeepsUnlimitedAddon(t *testing.T) {
	panel := newFakePanel()
	panel.seed(1, models.ClientRecord{"id": "s7", "email": "7", "expiryTime": testNow.UnixMilli() + 5*day})
	panel.seed(6, models.ClientRecord{"id": "v7", "email": "7-vmess", "expiryTime": int64(0)})
	tc := newTestCore(t, panel, newFakeRegistry())

	stats, err := tc.reconciler.Reconcile(context.Background(), tc.session(t))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Errors)
	assert.Equal(t, 0, stats.ExtraClientsAdded)
	assert.Equal(t, 0, panel.updates)
	assert.Equal(t, int64(0), panel.client(6, "7-vmess").ExpiryTime())
}

func TestReconcileCopiesUnlimitedPrimary(t *testing.T) {
	panel := newFakePanel()
	panel.seed(1,
		models.ClientRecord{"id": "s7", "email": "7", "expiryTime": int64(0)},
		models.ClientRecord{"id": "s8", "email": "8", "expiryTime": int64(0)},
	)
	panel.seed(2, models.ClientRecord{"id": "o7", "email": "7-obhod", "expiryTime": testNow.UnixMilli() + 40*day})
	panel.seed(6, models.ClientRecord{"id": "v8", "email": "8-vmess", "expiryTime": testNow.UnixMilli() + day})
	tc := newTestCore(t, panel, newFakeRegistry())

	stats, err := tc.reconciler.Reconcile(context.Background(), tc.session(t))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ExtraClientsAdded)

	created := panel.client(6, "7-vmess")
	require.NotNil(t, created)
	assert.Equal(t, int64(0), created.ExpiryTime(), "unlimited primary outranks a finite trigger")

	assert.Equal(t, 1, panel.updates)
	assert.Equal(t, int64(0), panel.client(6, "8-vmess").ExpiryTime(), "finite add-on is raised to unlimited")
}

func TestReconcileCanonicalPriority(t *testing.T) {
	services := catalog.Defaults()
	services[0].SyncPriority = 3
	services[1].SyncPriority = 0
	services[2].SyncPriority = 5
	c, err := catalog.New(services)
	require.NoError(t, err)

	panel := newFakePanel()
	panel.seed(1, models.ClientRecord{"id": "s7", "email": "7"})
	panel.seed(2, models.ClientRecord{"id": "o7", "email": "7-obhod"})
	panel.seed(6, models.ClientRecord{"id": "v7", "email": "7-vmess"})

	tc := newTestCore(t, panel, newFakeRegistry())
	inbounds, err := panel.ListInbounds(context.Background(), tc.session(t))
	require.NoError(t, err)

	engine := NewReconciliationEngine(c, tc.directory, tc.provisioner, tc.registry, testLogger())
	idx := engine.index(inbounds)
	require.Contains(t, idx.canonical, int64(7))
	assert.Equal(t, "7-obhod", idx.canonical[7].email)
	assert.Equal(t, 2, idx.canonical[7].inboundID)
}

func TestReconcileFirstSeenWinsPriorityTie(t *testing.T) {
	services := catalog.Defaults()
	services[0].SyncPriority = 1
	services[1].SyncPriority = 1
	c, err := catalog.New(services)
	require.NoError(t, err)

	panel := newFakePanel()
	panel.seed(1, models.ClientRecord{"id": "s7", "email": "7"})
	panel.seed(2, models.ClientRecord{"id": "o7", "email": "7-obhod"})
	tc := newTestCore(t, panel, newFakeRegistry())
	inbounds, err := panel.ListInbounds(context.Background(), tc.session(t))
	require.NoError(t, err)

	idx := NewReconciliationEngine(c, tc.directory, tc.provisioner, tc.registry, testLogger()).index(inbounds)
	assert.Equal(t, "7", idx.canonical[7].email)
}

func TestReconcileIgnoresNonNumericEmails(t *testing.T) {
	panel := newFakePanel()
	panel.seed(1, models.ClientRecord{"id": "x", "email": "admin"}, models.ClientRecord{"id": "y", "email": "12abc"})
	tc := newTestCore(t, panel, newFakeRegistry())

	stats, err := tc.reconciler.Reconcile(context.Background(), tc.session(t))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.UsersInPanel)
	email, ok := tc.registry.email(12)
	require.True(t, ok)
	assert.Equal(t, "12abc", email)
}

func TestReconcileIsolatesUserFailures(t *testing.T) {
	panel := newFakePanel()
	seedReconcilePanel(panel)
	panel.addErr["9-vmess"] = errors.New("inbound locked")
	registry := newFakeRegistry(
		models.LocalUser{TelegramID: 7, VPNEmail: strPtr("old")},
		models.LocalUser{TelegramID: 5, VPNEmail: strPtr("5")},
	)
	registry.failSet[5] = true
	tc := newTestCore(t, panel, registry)

	stats, err := tc.reconciler.Reconcile(context.Background(), tc.session(t))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Errors)
	assert.Equal(t, 1, stats.ExtraClientsAdded)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 0, stats.Cleared)

	email, _ := registry.email(5)
	assert.Equal(t, "5", email)
	assert.NotNil(t, panel.client(6, "7-vmess"))
}

func TestReconcileFailsWhenSnapshotFails(t *testing.T) {
	panel := newFakePanel()
	panel.listErr = errors.New("connection refused")
	tc := newTestCore(t, panel, newFakeRegistry())

	_, err := tc.reconciler.Reconcile(context.Background(), tc.session(t))
	assert.Error(t, err)
}
