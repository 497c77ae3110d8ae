package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"xui-shop-core/internal/cache"
	"xui-shop-core/internal/catalog"
	"xui-shop-core/internal/config"
	"xui-shop-core/internal/models"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(catalog.Defaults())
	require.NoError(t, err)
	return c
}

// fakePanel keeps inbounds in memory and records the calls made against it
type fakePanel struct {
	mu        sync.Mutex
	clients   map[int][]models.ClientRecord
	protocols map[int]string

	logins  int
	lists   int
	adds    int
	updates int

	loginErr error
	listErr  error
	addErr   map[string]error
}

func newFakePanel() *fakePanel {
	return &fakePanel{
		clients: map[int][]models.ClientRecord{1: nil, 2: nil, 6: nil},
		protocols: map[int]string{
			1: "vless",
			2: "vless",
			6: "vmess",
		},
		addErr: map[string]error{},
	}
}

func (p *fakePanel) seed(inboundID int, clients ...models.ClientRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients[inboundID] = append(p.clients[inboundID], clients...)
}

func (p *fakePanel) client(inboundID int, email string) models.ClientRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients[inboundID] {
		if c.Email() == email {
			return c.Clone()
		}
	}
	return nil
}

func (p *fakePanel) Login(_ context.Context) (*models.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logins++
	if p.loginErr != nil {
		return nil, p.loginErr
	}
	return &models.Session{Cookies: []*http.Cookie{{Name: "3x-ui", Value: "token"}}}, nil
}

func (p *fakePanel) ListInbounds(_ context.Context, session *models.Session) ([]models.Inbound, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lists++
	if session == nil {
		return nil, errors.New("no session")
	}
	if p.listErr != nil {
		return nil, p.listErr
	}

	ids := make([]int, 0, len(p.clients))
	for id := range p.clients {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]models.Inbound, 0, len(ids))
	for _, id := range ids {
		clients := make([]any, 0, len(p.clients[id]))
		for _, c := range p.clients[id] {
			clients = append(clients, map[string]any(c.Clone()))
		}
		out = append(out, models.ParseInbound(map[string]any{
			"id":       id,
			"protocol": p.protocols[id],
			"port":     443,
			"settings": map[string]any{"clients": clients},
		}))
	}
	return out, nil
}

func (p *fakePanel) AddClient(_ context.Context, _ *models.Session, inboundID int, client models.ClientRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.addErr[client.Email()]; err != nil {
		return err
	}
	p.adds++
	p.clients[inboundID] = append(p.clients[inboundID], client.Clone())
	return nil
}

func (p *fakePanel) UpdateClient(_ context.Context, _ *models.Session, inboundID int, clientID string, client models.ClientRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, c := range p.clients[inboundID] {
		if c.ID() == clientID {
			p.updates++
			p.clients[inboundID][i] = client.Clone()
			return nil
		}
	}
	return errors.New("client not found")
}

// fakeRegistry is an in-memory registry that can fail writes for chosen users
type fakeRegistry struct {
	mu         sync.Mutex
	users      map[int64]*models.LocalUser
	failUpsert map[int64]bool
	failSet    map[int64]bool
}

func newFakeRegistry(users ...models.LocalUser) *fakeRegistry {
	r := &fakeRegistry{
		users:      map[int64]*models.LocalUser{},
		failUpsert: map[int64]bool{},
		failSet:    map[int64]bool{},
	}
	for i := range users {
		u := users[i]
		r.users[u.TelegramID] = &u
	}
	return r
}

func (r *fakeRegistry) List(_ context.Context) ([]models.LocalUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.LocalUser, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TelegramID < out[j].TelegramID })
	return out, nil
}

func (r *fakeRegistry) SetVPNEmail(_ context.Context, telegramID int64, email *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSet[telegramID] {
		return errors.New("database is locked")
	}
	if u, ok := r.users[telegramID]; ok {
		if email == nil {
			u.VPNEmail = nil
		} else {
			v := *email
			u.VPNEmail = &v
		}
	}
	return nil
}

func (r *fakeRegistry) UpsertOnStart(_ context.Context, telegramID int64, _ models.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpsert[telegramID] {
		return errors.New("database is locked")
	}
	if _, ok := r.users[telegramID]; !ok {
		r.users[telegramID] = &models.LocalUser{TelegramID: telegramID, DateRegistered: testNow, LastAction: testNow}
	}
	return nil
}

func (r *fakeRegistry) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.users)), nil
}

func (r *fakeRegistry) email(telegramID int64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[telegramID]
	if !ok {
		return "", false
	}
	return u.StoredEmail(), true
}

func strPtr(s string) *string {
	return &s
}

// testCore wires the entitlement core against the fakes with a fixed clock
type testCore struct {
	panel       *fakePanel
	registry    *fakeRegistry
	catalog     *catalog.Catalog
	sessions    *SessionManager
	directory   *ClientDirectory
	provisioner *Provisioner
	reconciler  *ReconciliationEngine
}

func newTestCore(t *testing.T, panel *fakePanel, registry *fakeRegistry) *testCore {
	t.Helper()
	logger := testLogger()
	c := testCatalog(t)

	sessions := NewSessionManager(panel, cache.NewMemory[models.Session](time.Minute), config.LoginConfig{
		Cooldown:      time.Minute,
		SessionMaxAge: 5 * time.Minute,
	}, logger)
	sessions.now = func() time.Time { return testNow }

	directory := NewClientDirectory(panel, cache.NewMemory[ClientLookup](time.Minute), time.Minute, nil, logger)

	provisioner := NewProvisioner(directory, panel, config.ClientConfig{IPLimit: 6}, logger)
	provisioner.now = func() time.Time { return testNow }
	seq := 0
	provisioner.newID = func() string {
		seq++
		return "uuid-" + strconv.Itoa(seq)
	}

	return &testCore{
		panel:       panel,
		registry:    registry,
		catalog:     c,
		sessions:    sessions,
		directory:   directory,
		provisioner: provisioner,
		reconciler:  NewReconciliationEngine(c, directory, provisioner, registry, logger),
	}
}

func (tc *testCore) session(t *testing.T) *models.Session {
	t.Helper()
	session, err := tc.sessions.Session(context.Background())
	require.NoError(t, err)
	return session
}
