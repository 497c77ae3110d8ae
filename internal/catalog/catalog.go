package catalog

import (
	"fmt"
	"strings"

	"xui-shop-core/internal/constants"
	"xui-shop-core/internal/helpers"
)

// Plan is a priced duration offered for a service
type Plan struct {
	Key         string `mapstructure:"key" json:"key"`
	Label       string `mapstructure:"label" json:"label"`
	Days        int    `mapstructure:"days" json:"days"`
	AmountMinor int64  `mapstructure:"amount_minor" json:"amount_minor"`
	AdminOnly   bool   `mapstructure:"admin_only" json:"admin_only"`
}

// Service is a sellable offering mapped to one panel inbound
type Service struct {
	Key           string   `mapstructure:"key" json:"key"`
	Name          string   `mapstructure:"name" json:"name"`
	Description   string   `mapstructure:"description" json:"description"`
	InboundID     int      `mapstructure:"inbound_id" json:"inbound_id"`
	EmailSuffix   string   `mapstructure:"email_suffix" json:"email_suffix"`
	ServerHost    string   `mapstructure:"server_host" json:"server_host,omitempty"`
	Plans         []Plan   `mapstructure:"plans" json:"plans"`
	Protocol      string   `mapstructure:"protocol" json:"protocol"`
	Visible       bool     `mapstructure:"visible" json:"visible"`
	AutoAssign    bool     `mapstructure:"auto_assign" json:"auto_assign"`
	AutoAssignFor []string `mapstructure:"auto_assign_for" json:"auto_assign_for,omitempty"`
	SyncPriority  int      `mapstructure:"sync_priority" json:"sync_priority"`
}

// EmailFor derives the panel email of a telegram user in this service
func (s Service) EmailFor(telegramID int64) string {
	return helpers.EmailForUser(telegramID, s.EmailSuffix)
}

// PlansFor returns the plans visible to a user
func (s Service) PlansFor(isAdmin bool) []Plan {
	plans := make([]Plan, 0, len(s.Plans))
	for _, plan := range s.Plans {
		if plan.AdminOnly && !isAdmin {
			continue
		}
		plans = append(plans, plan)
	}
	return plans
}

// Catalog is the immutable service registry loaded at startup
type Catalog struct {
	services []Service
	byKey    map[string]int
}

// New validates and freezes a list of services
func New(services []Service) (*Catalog, error) {
	if len(services) == 0 {
		return nil, fmt.Errorf("catalog: no services defined")
	}

	c := &Catalog{
		services: make([]Service, 0, len(services)),
		byKey:    make(map[string]int, len(services)),
	}

	for _, s := range services {
		s.Key = strings.TrimSpace(s.Key)
		s.Protocol = strings.ToLower(strings.TrimSpace(s.Protocol))
		if s.Protocol == "" {
			s.Protocol = constants.ProtocolVless
		}

		if s.Key == "" {
			return nil, fmt.Errorf("catalog: service without key")
		}
		if _, dup := c.byKey[s.Key]; dup {
			return nil, fmt.Errorf("catalog: duplicate service key %q", s.Key)
		}
		if s.InboundID <= 0 {
			return nil, fmt.Errorf("catalog: service %q has invalid inbound id %d", s.Key, s.InboundID)
		}
		if s.Protocol != constants.ProtocolVless && s.Protocol != constants.ProtocolVmess {
			return nil, fmt.Errorf("catalog: service %q has unsupported protocol %q", s.Key, s.Protocol)
		}

		s.Plans = append([]Plan(nil), s.Plans...)
		s.AutoAssignFor = append([]string(nil), s.AutoAssignFor...)
		c.byKey[s.Key] = len(c.services)
		c.services = append(c.services, s)
	}

	for _, s := range c.services {
		for _, key := range s.AutoAssignFor {
			if _, ok := c.byKey[key]; !ok {
				return nil, fmt.Errorf("catalog: service %q auto-assigns for unknown service %q", s.Key, key)
			}
		}
	}

	return c, nil
}

// Get returns a service by key
func (c *Catalog) Get(key string) (Service, bool) {
	idx, ok := c.byKey[key]
	if !ok {
		return Service{}, false
	}
	return c.services[idx], true
}

// ByInbound returns the first service mapped to an inbound
func (c *Catalog) ByInbound(inboundID int) (Service, bool) {
	for _, s := range c.services {
		if s.InboundID == inboundID {
			return s, true
		}
	}
	return Service{}, false
}

// All returns services in declaration order
func (c *Catalog) All(includeHidden bool) []Service {
	out := make([]Service, 0, len(c.services))
	for _, s := range c.services {
		if !includeHidden && !s.Visible {
			continue
		}
		out = append(out, s)
	}
	return out
}

// AutoAssign returns services provisioned together with any purchase
func (c *Catalog) AutoAssign() []Service {
	var out []Service
	for _, s := range c.services {
		if s.AutoAssign {
			out = append(out, s)
		}
	}
	return out
}

// Triggers returns the services whose holders receive the given add-on.
// An empty trigger list means every service that is not itself an add-on.
func (c *Catalog) Triggers(addon Service) []Service {
	var out []Service
	if len(addon.AutoAssignFor) > 0 {
		for _, key := range addon.AutoAssignFor {
			if s, ok := c.Get(key); ok {
				out = append(out, s)
			}
		}
		return out
	}
	for _, s := range c.services {
		if !s.AutoAssign && s.Key != addon.Key {
			out = append(out, s)
		}
	}
	return out
}

// Plan returns a plan of a service
func (c *Catalog) Plan(serviceKey, planKey string) (Plan, bool) {
	s, ok := c.Get(serviceKey)
	if !ok {
		return Plan{}, false
	}
	for _, plan := range s.Plans {
		if plan.Key == planKey {
			return plan, true
		}
	}
	return Plan{}, false
}

// Priority returns the sync priority of the service owning an inbound
func (c *Catalog) Priority(inboundID int) int {
	if s, ok := c.ByInbound(inboundID); ok {
		return s.SyncPriority
	}
	return constants.DefaultSyncPriority
}

// Visible returns services shown in the purchase menu
func (c *Catalog) Visible() []Service {
	return c.All(false)
}

// Default returns the primary service whose email is cached in the registry
func (c *Catalog) Default() (Service, bool) {
	return c.Get(constants.DefaultServiceKey)
}
