package constants

const (
	// Duration constants
	MillisecondsInDay = 24 * 60 * 60 * 1000
	MaxGrantDays      = 3650

	// Network constants
	DefaultRequestTimeout   = 5  // seconds
	DefaultLoginTimeout     = 10 // seconds
	DefaultLoginRetries     = 3
	DefaultLoginBackoff     = 500 // milliseconds
	DefaultLoginCooldown    = 60  // seconds
	DefaultSessionMaxAge    = 300 // seconds
	DefaultRetryMaxWaitTime = 30  // seconds

	// Cache constants
	DefaultClientCacheTTL = 300 // seconds
	CacheCleanupInterval  = 10  // minutes
	SessionCacheKey       = "session"
	ClientCachePrefix     = "client:"
	WildcardInbound       = "*"

	// Client policy constants
	DefaultClientIPLimit = 6
	DefaultVlessFlow     = "xtls-rprx-vision"
	DefaultVmessSecurity = "auto"
	DefaultSyncPriority  = 5

	// Link fallbacks
	DefaultServerHost  = "127.0.0.1"
	DefaultServerPort  = 443
	DefaultRealitySNI  = "yahoo.com"
	DefaultRealityFP   = "chrome"
	DefaultNetwork     = "tcp"
	DefaultVlessSecure = "reality"

	// Protocols
	ProtocolVless = "vless"
	ProtocolVmess = "vmess"

	// Default service key
	DefaultServiceKey = "standard"

	// Periodic reconcile
	DefaultSyncInterval = 6 * 60 * 60 // seconds

	// QR
	QRCodeSize = 256

	// Formatting constants
	TimestampFormat = "2006-01-02 15:04:05"
)
