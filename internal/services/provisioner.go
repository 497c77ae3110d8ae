package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"xui-shop-core/internal/catalog"
	"xui-shop-core/internal/config"
	"xui-shop-core/internal/constants"
	apperrors "xui-shop-core/internal/errors"
	"xui-shop-core/internal/helpers"
	"xui-shop-core/internal/models"
)

// ClientWriter submits client writes to the panel
type ClientWriter interface {
	AddClient(ctx context.Context, session *models.Session, inboundID int, client models.ClientRecord) error
	UpdateClient(ctx context.Context, session *models.Session, inboundID int, clientID string, client models.ClientRecord) error
}

// Outcome describes what a provisioning call did
type Outcome int

const (
	// OutcomeUnchanged means no write was needed
	OutcomeUnchanged Outcome = iota
	// OutcomeCreated means a new client was added
	OutcomeCreated
	// OutcomeExtended means an existing client was updated
	OutcomeExtended
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeExtended:
		return "extended"
	default:
		return "unchanged"
	}
}

// MarshalText renders the outcome by name in JSON
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// ProvisionResult is the client state after a provisioning call
type ProvisionResult struct {
	InboundID int                 `json:"inbound_id"`
	Email     string              `json:"email"`
	Client    models.ClientRecord `json:"client"`
	Outcome   Outcome             `json:"outcome"`
}

// Provisioner creates or extends client records inside one service
type Provisioner struct {
	directory *ClientDirectory
	writer    ClientWriter
	ipLimit   int64
	flow      string
	now       func() time.Time
	newID     func() string
	logger    *logrus.Logger
}

// NewProvisioner creates a new provisioner
func NewProvisioner(directory *ClientDirectory, writer ClientWriter, policy config.ClientConfig, logger *logrus.Logger) *Provisioner {
	ipLimit := policy.IPLimit
	if ipLimit < 1 {
		ipLimit = constants.DefaultClientIPLimit
	}
	flow := strings.TrimSpace(policy.Flow)
	if flow == "" {
		flow = constants.DefaultVlessFlow
	}
	return &Provisioner{
		directory: directory,
		writer:    writer,
		ipLimit:   ipLimit,
		flow:      flow,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
		logger:    logger,
	}
}

// GrantOrExtend adds days to the user's client in svc, creating it when absent.
// An empty email means the service's derived email. Unlimited clients are left as they are.
func (p *Provisioner) GrantOrExtend(ctx context.Context, session *models.Session, svc catalog.Service, userID int64, days int, email string) (*ProvisionResult, error) {
	if days <= 0 {
		return nil, &apperrors.ValidationError{Field: "days", Message: "must be positive"}
	}
	if email == "" {
		email = svc.EmailFor(userID)
	}

	_, existing, err := p.directory.Lookup(ctx, session, email, svc.InboundID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", email, err)
	}

	nowMs := p.now().UnixMilli()
	delta := int64(days) * constants.MillisecondsInDay

	if existing == nil {
		return p.create(ctx, session, svc, userID, email, nowMs+delta, nil)
	}

	base := existing.ExpiryTime()
	if base == 0 {
		p.logger.Debugf("Client %s in inbound %d has unlimited access, nothing to extend", email, svc.InboundID)
		return &ProvisionResult{InboundID: svc.InboundID, Email: email, Client: existing, Outcome: OutcomeUnchanged}, nil
	}
	if base < nowMs {
		base = nowMs
	}
	return p.update(ctx, session, svc, email, existing, base+delta)
}

// GrantOrExtendWithExpiry aligns the user's client in svc to an absolute expiry.
// Existing clients are only written when the expiry would increase; 0 means unlimited.
func (p *Provisioner) GrantOrExtendWithExpiry(ctx context.Context, session *models.Session, svc catalog.Service, userID int64, expiryMs int64, email string, template models.ClientRecord) (*ProvisionResult, error) {
	if email == "" {
		email = svc.EmailFor(userID)
	}

	_, existing, err := p.directory.Lookup(ctx, session, email, svc.InboundID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", email, err)
	}

	return p.ApplyExpiry(ctx, session, svc, userID, email, existing, expiryMs, template)
}

// ApplyExpiry is GrantOrExtendWithExpiry for a caller that already holds the
// current record (nil when absent), e.g. from a full inbound snapshot.
func (p *Provisioner) ApplyExpiry(ctx context.Context, session *models.Session, svc catalog.Service, userID int64, email string, existing models.ClientRecord, expiryMs int64, template models.ClientRecord) (*ProvisionResult, error) {
	if expiryMs < 0 {
		return nil, &apperrors.ValidationError{Field: "expiry", Message: "must not be negative"}
	}

	if existing == nil {
		return p.create(ctx, session, svc, userID, email, expiryMs, template)
	}

	if !laterExpiry(expiryMs, existing.ExpiryTime()) {
		return &ProvisionResult{InboundID: svc.InboundID, Email: email, Client: existing, Outcome: OutcomeUnchanged}, nil
	}
	return p.update(ctx, session, svc, email, existing, expiryMs)
}

// laterExpiry reports whether expiry a grants more access than b; 0 is unlimited
func laterExpiry(a, b int64) bool {
	if b == 0 {
		return false
	}
	if a == 0 {
		return true
	}
	return a > b
}

func (p *Provisioner) create(ctx context.Context, session *models.Session, svc catalog.Service, userID int64, email string, expiryMs int64, template models.ClientRecord) (*ProvisionResult, error) {
	record := p.buildPayload(svc, userID, email, expiryMs, template)

	if err := p.writer.AddClient(ctx, session, svc.InboundID, record); err != nil {
		if errors.Is(err, apperrors.ErrClientExists) {
			p.logger.Warnf("Client %s already exists in inbound %d", email, svc.InboundID)
		}
		return nil, fmt.Errorf("failed to add client %s to inbound %d: %w", email, svc.InboundID, err)
	}

	p.directory.Invalidate(ctx, email)
	p.logger.Infof("Client %s added to inbound %d with expiry=%d", email, svc.InboundID, expiryMs)
	return &ProvisionResult{InboundID: svc.InboundID, Email: email, Client: record, Outcome: OutcomeCreated}, nil
}

func (p *Provisioner) update(ctx context.Context, session *models.Session, svc catalog.Service, email string, existing models.ClientRecord, expiryMs int64) (*ProvisionResult, error) {
	clientID := existing.ID()
	if clientID == "" {
		return nil, &apperrors.PanelAPIError{Operation: "update_client", Message: fmt.Sprintf("client %s has no id", email), Err: apperrors.ErrMalformedResponse}
	}

	updated := existing.Clone()
	updated["expiryTime"] = expiryMs
	if existing.LimitIP() < p.ipLimit {
		updated["limitIp"] = p.ipLimit
	}

	if err := p.writer.UpdateClient(ctx, session, svc.InboundID, clientID, updated); err != nil {
		return nil, fmt.Errorf("failed to update client %s in inbound %d: %w", email, svc.InboundID, err)
	}

	p.directory.Invalidate(ctx, email)
	p.logger.Infof("Client %s in inbound %d extended to %d", email, svc.InboundID, expiryMs)
	return &ProvisionResult{InboundID: svc.InboundID, Email: email, Client: updated, Outcome: OutcomeExtended}, nil
}

// buildPayload assembles a new client; protocol fields come from template when given
func (p *Provisioner) buildPayload(svc catalog.Service, userID int64, email string, expiryMs int64, template models.ClientRecord) models.ClientRecord {
	if template == nil {
		template = models.ClientRecord{}
	}

	enable := true
	if v, ok := template["enable"].(bool); ok {
		enable = v
	}

	client := models.Client{
		ID:         p.newID(),
		Enable:     enable,
		Email:      email,
		TotalGB:    helpers.ToInt64(template["totalGB"], 0),
		LimitIP:    p.ipLimit,
		ExpiryTime: expiryMs,
		Reset:      helpers.ToInt64(template["reset"], 0),
		TgID:       strconv.FormatInt(userID, 10),
		SubID:      email,
	}

	switch svc.Protocol {
	case constants.ProtocolVmess:
		alterID := helpers.ToInt64(template["alterId"], 0)
		if alterID == 0 {
			alterID = helpers.ToInt64(template["aid"], 0)
		}
		security := strings.TrimSpace(helpers.ToString(template["security"]))
		if security == "" {
			security = constants.DefaultVmessSecurity
		}
		client.AlterID = &alterID
		client.Security = &security
	default:
		flow := template.Flow()
		if flow == "" {
			flow = p.flow
		}
		client.Flow = &flow
	}

	return client.ToDictionary()
}
