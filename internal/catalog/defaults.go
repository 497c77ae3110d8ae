package catalog

import "xui-shop-core/internal/constants"

// Defaults returns the built-in services. Inbound ids, suffixes and hosts
// are overridable from the environment by the config loader.
func Defaults() []Service {
	return []Service{
		{
			Key:         constants.DefaultServiceKey,
			Name:        "Стандартный",
			Description: "Основной тариф: дешёво, быстро, удобно.",
			InboundID:   1,
			Plans: []Plan{
				{Key: "test", Label: "🧪 Тест — 1₽ (1 день)", Days: 1, AmountMinor: 100, AdminOnly: true},
				{Key: "1m", Label: "1 месяц — 149₽", Days: 30, AmountMinor: 14900},
				{Key: "3m", Label: "3 месяца — 369₽", Days: 90, AmountMinor: 36900},
				{Key: "6m", Label: "6 месяцев — 599₽", Days: 180, AmountMinor: 59900},
			},
			Protocol:     constants.ProtocolVless,
			Visible:      true,
			SyncPriority: 0,
		},
		{
			Key:         "obhod",
			Name:        "Всегда на связи",
			Description: "Альтернативный канал для мобильных сетей.",
			InboundID:   2,
			EmailSuffix: "-obhod",
			Plans: []Plan{
				{Key: "test", Label: "🧪 Тест — 1₽ (1 день)", Days: 1, AmountMinor: 100, AdminOnly: true},
				{Key: "1d", Label: "1 день — 29₽", Days: 1, AmountMinor: 2900},
				{Key: "1w", Label: "1 неделя — 99₽", Days: 7, AmountMinor: 9900},
				{Key: "1m", Label: "1 месяц — 179₽", Days: 30, AmountMinor: 17900},
				{Key: "3m", Label: "3 месяца — 399₽", Days: 90, AmountMinor: 39900},
				{Key: "6m", Label: "6 месяцев — 599₽", Days: 180, AmountMinor: 59900},
			},
			Protocol:     constants.ProtocolVless,
			Visible:      true,
			SyncPriority: 1,
		},
		{
			Key:          "standard_vm",
			Name:         "Стандартный #2",
			Description:  "Дополнительный VMess-доступ, выдаётся автоматически при покупке любого тарифа.",
			InboundID:    6,
			EmailSuffix:  "-vmess",
			Protocol:     constants.ProtocolVmess,
			Visible:      false,
			AutoAssign:   true,
			SyncPriority: 2,
		},
	}
}
