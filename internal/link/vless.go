package link

import (
	"fmt"

	"xui-shop-core/internal/catalog"
	"xui-shop-core/internal/constants"
	"xui-shop-core/internal/helpers"
	"xui-shop-core/internal/models"
)

const vlessFormat = "vless://%s@%s:%d?type=%s&security=%s&pbk=%s&fp=%s&sni=%s&sid=%s&spx=%%2F&flow=%s#vles-%s"

func (s *Synthesizer) vless(inbound models.Inbound, client models.ClientRecord, svc *catalog.Service) string {
	st := resolveStream(inbound)
	security := st.security
	if security == "" {
		security = constants.DefaultVlessSecure
	}

	reality := helpers.AsObject(st.settings["realitySettings"])
	nested := helpers.AsObject(reality["settings"])

	destHost, destPort := parseDest(helpers.FirstNonEmpty(
		reality["dest"],
		nested["dest"],
	))
	host, port := s.hostAndPort(inbound, svc, destHost, destPort)

	publicKey := helpers.FirstNonEmpty(
		reality["publicKey"],
		nested["publicKey"],
		s.defaults.PublicKey,
	)
	shortID := helpers.FirstNonEmpty(
		reality["shortIds"],
		nested["shortIds"],
		reality["shortId"],
		nested["shortId"],
		s.defaults.ShortID,
	)
	sni := helpers.FirstNonEmpty(
		reality["serverNames"],
		nested["serverNames"],
		reality["serverName"],
		nested["serverName"],
		reality["sni"],
		nested["sni"],
		s.defaults.ServerName,
	)
	fingerprint := helpers.FirstNonEmpty(
		st.settings["fingerprint"],
		reality["fingerprint"],
		nested["fingerprint"],
		reality["fp"],
		nested["fp"],
		s.defaults.Fingerprint,
	)

	return fmt.Sprintf(vlessFormat,
		client.ID(), host, port,
		st.network, security,
		publicKey, fingerprint, sni, shortID,
		client.Flow(), client.Email(),
	)
}
