package link

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"

	"xui-shop-core/internal/catalog"
	"xui-shop-core/internal/constants"
	"xui-shop-core/internal/helpers"
	"xui-shop-core/internal/models"
)

// vmessConfig is the JSON document carried by a vmess:// link.
// Field order is significant for clients that compare links textually.
type vmessConfig struct {
	V    string `json:"v"`
	PS   string `json:"ps"`
	Add  string `json:"add"`
	Port string `json:"port"`
	ID   string `json:"id"`
	Aid  string `json:"aid"`
	Scy  string `json:"scy"`
	Net  string `json:"net"`
	Type string `json:"type"`
	Host string `json:"host"`
	Path string `json:"path"`
	TLS  string `json:"tls"`
	SNI  string `json:"sni,omitempty"`
	ALPN string `json:"alpn,omitempty"`
}

func (s *Synthesizer) vmess(inbound models.Inbound, client models.ClientRecord, svc *catalog.Service) string {
	st := resolveStream(inbound)
	host, port := s.hostAndPort(inbound, svc, "", 0)

	ws := helpers.AsObject(st.settings["wsSettings"])
	grpc := helpers.AsObject(st.settings["grpcSettings"])
	httpSettings := helpers.AsObject(st.settings["httpSettings"])
	wsHeaders := helpers.AsObject(ws["headers"])

	hostHeader := helpers.FirstNonEmpty(
		wsHeaders["Host"],
		wsHeaders["host"],
		httpSettings["host"],
	)

	var path string
	switch st.network {
	case "ws":
		path = orSlash(helpers.ToString(ws["path"]))
	case "grpc":
		path = strings.TrimSpace(helpers.ToString(grpc["serviceName"]))
	case "http":
		path = orSlash(helpers.ToString(httpSettings["path"]))
	default:
		path = orSlash(helpers.ToString(ws["path"]))
	}

	tlsEnabled := strings.EqualFold(st.security, "tls") || strings.EqualFold(st.security, "xtls")
	tlsSettings := helpers.AsObject(st.settings["tlsSettings"])

	cfg := vmessConfig{
		V:    "2",
		PS:   vmessRemark(inbound, client, svc),
		Add:  host,
		Port: strconv.Itoa(port),
		ID:   client.ID(),
		Aid:  strconv.FormatInt(alterID(client), 10),
		Scy:  vmessSecurity(client),
		Net:  st.network,
		Type: "none",
		Host: host,
		Path: path,
	}
	if st.network == "grpc" {
		cfg.Type = "gun"
	}
	if hostHeader != "" {
		cfg.Host = hostHeader
	}
	if tlsEnabled {
		cfg.TLS = "tls"
		cfg.SNI = helpers.FirstNonEmpty(
			st.settings["sni"],
			tlsSettings["serverName"],
			inbound.Field("sni"),
		)
	}
	cfg.ALPN = joinALPN(st.settings["alpn"])

	return "vmess://" + base64.StdEncoding.EncodeToString(encodeVmess(cfg))
}

func encodeVmess(cfg vmessConfig) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// a struct of strings always encodes
	_ = enc.Encode(cfg)
	return bytes.TrimRight(buf.Bytes(), "\n")
}

func vmessRemark(inbound models.Inbound, client models.ClientRecord, svc *catalog.Service) string {
	if remark := strings.TrimSpace(inbound.Remark); remark != "" {
		return remark
	}
	if svc != nil && strings.TrimSpace(svc.Name) != "" {
		return svc.Name
	}
	return "vmess-" + client.Email()
}

func alterID(client models.ClientRecord) int64 {
	if v := helpers.ToInt64(client["alterId"], 0); v != 0 {
		return v
	}
	return helpers.ToInt64(client["aid"], 0)
}

func vmessSecurity(client models.ClientRecord) string {
	if scy := strings.TrimSpace(helpers.ToString(client["security"])); scy != "" {
		return scy
	}
	return constants.DefaultVmessSecurity
}

// joinALPN joins a non-empty alpn list; anything else yields ""
func joinALPN(value any) string {
	items := helpers.AsList(value)
	if len(items) == 0 {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if s := helpers.ToString(item); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ",")
}

func orSlash(path string) string {
	if strings.TrimSpace(path) == "" {
		return "/"
	}
	return path
}
