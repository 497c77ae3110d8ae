package models

import (
	"strings"

	"xui-shop-core/internal/helpers"
)

// ClientRecord is a client entry as the panel returns it. The panel owns the
// shape, so unknown fields are kept and written back untouched on update.
type ClientRecord map[string]any

// ID returns the client UUID
func (c ClientRecord) ID() string {
	return helpers.FirstNonEmpty(c["id"], c["uuid"])
}

// Email returns the identity string of the client
func (c ClientRecord) Email() string {
	return helpers.ToString(c["email"])
}

// ExpiryTime returns the expiry in milliseconds since epoch, 0 when unlimited or unparseable
func (c ClientRecord) ExpiryTime() int64 {
	return helpers.ToInt64(c["expiryTime"], 0)
}

// LimitIP returns the concurrent-IP limit, 0 when missing or unparseable
func (c ClientRecord) LimitIP() int64 {
	return helpers.ToInt64(c["limitIp"], 0)
}

// Flow returns the vless flow
func (c ClientRecord) Flow() string {
	return strings.TrimSpace(helpers.ToString(c["flow"]))
}

// Clone returns a shallow copy safe to mutate at the top level
func (c ClientRecord) Clone() ClientRecord {
	out := make(ClientRecord, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Client is the write payload for a new panel client
type Client struct {
	ID         string
	Enable     bool
	Flow       *string
	AlterID    *int64
	Security   *string
	Email      string
	TotalGB    int64
	LimitIP    int64
	ExpiryTime int64
	Reset      int64
	TgID       string
	SubID      string
}

// ToDictionary converts the client to a record for API requests
func (c *Client) ToDictionary() ClientRecord {
	result := ClientRecord{
		"id":         c.ID,
		"enable":     c.Enable,
		"email":      c.Email,
		"totalGB":    c.TotalGB,
		"limitIp":    c.LimitIP,
		"expiryTime": c.ExpiryTime,
		"reset":      c.Reset,
		"tgId":       c.TgID,
		"subId":      c.SubID,
	}

	// Protocol specific fields
	if c.Flow != nil {
		result["flow"] = *c.Flow
	}
	if c.AlterID != nil {
		result["alterId"] = *c.AlterID
	}
	if c.Security != nil {
		result["security"] = *c.Security
	}

	return result
}
