package link

import (
	"strconv"
	"strings"

	"xui-shop-core/internal/catalog"
	"xui-shop-core/internal/config"
	"xui-shop-core/internal/constants"
	"xui-shop-core/internal/helpers"
	"xui-shop-core/internal/models"
)

// Synthesizer turns a panel inbound and one of its clients into a connection URI.
// It performs no I/O and never fails: missing data is replaced by defaults.
type Synthesizer struct {
	catalog  *catalog.Catalog
	defaults config.LinkConfig
}

// NewSynthesizer creates a link synthesizer; catalog may be nil
func NewSynthesizer(c *catalog.Catalog, defaults config.LinkConfig) *Synthesizer {
	if strings.TrimSpace(defaults.Host) == "" {
		defaults.Host = constants.DefaultServerHost
	}
	if defaults.Port <= 0 || defaults.Port > 65535 {
		defaults.Port = constants.DefaultServerPort
	}
	if strings.TrimSpace(defaults.ServerName) == "" {
		defaults.ServerName = constants.DefaultRealitySNI
	}
	if strings.TrimSpace(defaults.Fingerprint) == "" {
		defaults.Fingerprint = constants.DefaultRealityFP
	}
	return &Synthesizer{catalog: c, defaults: defaults}
}

// Generate builds a vless:// or vmess:// URI
func (s *Synthesizer) Generate(inbound models.Inbound, client models.ClientRecord) string {
	service, hasService := s.service(inbound.ID)

	protocol := inbound.Protocol
	if protocol == "" && hasService {
		protocol = service.Protocol
	}

	var svc *catalog.Service
	if hasService {
		svc = &service
	}

	if protocol == constants.ProtocolVmess {
		return s.vmess(inbound, client, svc)
	}
	return s.vless(inbound, client, svc)
}

func (s *Synthesizer) service(inboundID int) (catalog.Service, bool) {
	if s.catalog == nil {
		return catalog.Service{}, false
	}
	return s.catalog.ByInbound(inboundID)
}

// stream holds the normalized transport settings of an inbound
type stream struct {
	settings map[string]any
	network  string
	security string
}

func resolveStream(inbound models.Inbound) stream {
	settings := inbound.StreamSettings
	if settings == nil {
		settings = map[string]any{}
	}
	network := strings.TrimSpace(helpers.ToString(settings["network"]))
	if network == "" {
		network = constants.DefaultNetwork
	}
	return stream{
		settings: settings,
		network:  network,
		security: strings.TrimSpace(helpers.ToString(settings["security"])),
	}
}

// hostAndPort resolves the address clients connect to.
// Host: service override, listen, remark, default host, reality dest host.
// Port: inbound port, dest port, default port.
func (s *Synthesizer) hostAndPort(inbound models.Inbound, svc *catalog.Service, destHost string, destPort int) (string, int) {
	var serviceHost string
	if svc != nil {
		serviceHost = svc.ServerHost
	}

	candidates := []string{
		serviceHost,
		inbound.Listen,
		inbound.Remark,
		s.defaults.Host,
		destHost,
	}

	host := ""
	for _, candidate := range candidates {
		if sanitized, ok := sanitizeHost(candidate); ok {
			host = sanitized
			break
		}
	}
	if host == "" {
		host = strings.TrimSpace(s.defaults.Host)
	}

	port := inbound.Port
	if port <= 0 {
		port = destPort
	}
	if port <= 0 {
		port = s.defaults.Port
	}

	return host, port
}

// sanitizeHost rejects values that cannot be a hostname: empty, JSON-ish,
// path-like or containing whitespace, or with neither a dot nor a digit.
func sanitizeHost(candidate string) (string, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return "", false
	}
	if strings.HasPrefix(candidate, "[") || strings.HasPrefix(candidate, "{") {
		return "", false
	}
	if strings.ContainsAny(candidate, " /\\") {
		return "", false
	}
	if !strings.Contains(candidate, ".") && !strings.ContainsAny(candidate, "0123456789") {
		return "", false
	}
	return candidate, true
}

// parseDest splits a reality dest "host[:port]"
func parseDest(dest string) (string, int) {
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return "", 0
	}

	hostPart, portPart, found := strings.Cut(dest, ":")
	if !found {
		return dest, 0
	}

	host := strings.TrimSpace(hostPart)
	port := 0
	portPart = strings.TrimSpace(portPart)
	if helpers.IsDigits(portPart) {
		if n, err := strconv.Atoi(portPart); err == nil && n > 0 && n <= 65535 {
			port = n
		}
	}
	return host, port
}
