package models

import (
	"encoding/json"
	"strings"

	"xui-shop-core/internal/helpers"
)

// Inbound represents a panel inbound. Panels return settings and
// streamSettings either as objects or as JSON-encoded strings; both are
// normalized to objects on decode and the original document is kept for
// re-encoding.
type Inbound struct {
	ID             int
	Protocol       string
	Listen         string
	Port           int // 0 when absent or unparseable
	Remark         string
	Settings       map[string]any
	StreamSettings map[string]any
	Clients        []ClientRecord

	raw map[string]any
}

// ParseInbound builds an inbound from a decoded panel document
func ParseInbound(raw map[string]any) Inbound {
	if raw == nil {
		raw = map[string]any{}
	}

	inbound := Inbound{
		ID:             int(helpers.ToInt64(raw["id"], 0)),
		Protocol:       strings.ToLower(strings.TrimSpace(helpers.ToString(raw["protocol"]))),
		Listen:         helpers.ToString(raw["listen"]),
		Remark:         helpers.ToString(raw["remark"]),
		Settings:       helpers.AsObject(raw["settings"]),
		StreamSettings: helpers.AsObject(raw["streamSettings"]),
		raw:            raw,
	}

	if port := helpers.ToInt64(raw["port"], 0); port > 0 && port <= 65535 {
		inbound.Port = int(port)
	}

	for _, item := range helpers.AsList(inbound.Settings["clients"]) {
		if obj, ok := item.(map[string]any); ok {
			inbound.Clients = append(inbound.Clients, ClientRecord(obj))
		}
	}

	return inbound
}

// Field returns a top-level field of the original document
func (i Inbound) Field(key string) any {
	return i.raw[key]
}

// FindClient returns the first client with the given email.
// Duplicate emails are a panel-side defect; the first match wins.
func (i Inbound) FindClient(email string) ClientRecord {
	for _, client := range i.Clients {
		if client.Email() == email {
			return client
		}
	}
	return nil
}

// UnmarshalJSON decodes a panel inbound document
func (i *Inbound) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := helpers.DecodeJSON(data, &raw); err != nil {
		return err
	}
	*i = ParseInbound(raw)
	return nil
}

// MarshalJSON re-encodes the original panel document
func (i Inbound) MarshalJSON() ([]byte, error) {
	if i.raw != nil {
		return json.Marshal(i.raw)
	}
	clients := make([]any, 0, len(i.Clients))
	for _, c := range i.Clients {
		clients = append(clients, map[string]any(c))
	}
	settings := map[string]any{}
	for k, v := range i.Settings {
		settings[k] = v
	}
	settings["clients"] = clients
	return json.Marshal(map[string]any{
		"id":             i.ID,
		"protocol":       i.Protocol,
		"listen":         i.Listen,
		"port":           i.Port,
		"remark":         i.Remark,
		"settings":       settings,
		"streamSettings": i.StreamSettings,
	})
}
