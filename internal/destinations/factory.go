package destinations

import (
	"fmt"
	"strings"

	"github.com/athebyme/catalog-sync/config"
	"github.com/athebyme/catalog-sync/internal/adapters/storage"
	"github.com/athebyme/catalog-sync/internal/domain/models"
	"github.com/athebyme/catalog-sync/pkg/interfaces"
)

// identity endpoint eBay по окружениям
var ebayIdentityEndpoints = map[string]string{
	"production": "https://api.ebay.com",
	"sandbox":    "https://api.sandbox.ebay.com",
}

// Build создает адаптеры для включенных в конфигурации направлений.
// Направление с неполными учетными данными пропускается с ошибкой
// в журнале: ломать остальные направления из-за одного не нужно
func Build(cfg *config.Config, store storage.SyncStorageInterface,
	recorder FeedRecorder, logger interfaces.LoggerPort) ([]Adapter, map[models.Destination]AsyncFeedAdapter) {

	var adapters []Adapter
	pollers := make(map[models.Destination]AsyncFeedAdapter)

	for _, name := range cfg.Destinations.Enabled {
		adapter, err := build(models.Destination(strings.ToLower(name)), cfg, store, recorder, logger)
		if err != nil {
			logger.Error("Направление выключено из-за ошибки конфигурации",
				interfaces.LogField{Key: "destination", Value: name},
				interfaces.LogField{Key: "error", Value: err.Error()})
			continue
		}

		adapters = append(adapters, adapter)
		if poller, ok := adapter.(AsyncFeedAdapter); ok {
			pollers[adapter.Name()] = poller
		}
	}

	return adapters, pollers
}

func build(dest models.Destination, cfg *config.Config, store storage.SyncStorageInterface,
	recorder FeedRecorder, logger interfaces.LoggerPort) (Adapter, error) {
	switch dest {
	case models.DestinationFacebook:
		fb := cfg.Destinations.Facebook
		if fb.AccessToken == "" || fb.CatalogID == "" {
			return nil, fmt.Errorf("facebook: не заданы access_token или catalog_id")
		}
		return NewFacebookAdapter(fb.CatalogID, fb.APIVersion,
			NewStaticCredential(fb.AccessToken), logger), nil

	case models.DestinationInstagram:
		ig := cfg.Destinations.Instagram
		fb := cfg.Destinations.Facebook
		// Instagram живет в том же Graph API и использует токен Facebook
		if fb.AccessToken == "" || ig.CatalogID == "" {
			return nil, fmt.Errorf("instagram: не заданы facebook access_token или catalog_id")
		}
		return NewInstagramAdapter(ig.CatalogID, fb.APIVersion,
			NewStaticCredential(fb.AccessToken), logger), nil

	case models.DestinationGoogle:
		g := cfg.Destinations.Google
		if g.MerchantID == "" || g.ServiceAccount == "" {
			return nil, fmt.Errorf("google: не заданы merchant_id или service_account")
		}
		return NewGoogleAdapter(g.MerchantID, g.ServiceAccount, g.ContentLanguage, g.TargetCountry, logger)

	case models.DestinationAmazon:
		a := cfg.Destinations.Amazon
		if a.ClientID == "" || a.ClientSecret == "" || a.RefreshToken == "" {
			return nil, fmt.Errorf("amazon: не заданы client_id, client_secret или refresh_token")
		}
		cred := NewLWACredentials(a.ClientID, a.ClientSecret, a.RefreshToken, "", logger)
		return NewAmazonAdapter(a.Endpoint, a.MarketplaceIDs, a.SKUPrefix, cred, recorder, logger), nil

	case models.DestinationEbay:
		e := cfg.Destinations.Ebay
		if e.ClientID == "" || e.ClientSecret == "" {
			return nil, fmt.Errorf("ebay: не заданы client_id или client_secret")
		}
		identityBase, ok := ebayIdentityEndpoints[strings.ToLower(e.Environment)]
		if !ok {
			identityBase = ebayIdentityEndpoints["sandbox"]
		}
		cred := NewEbayCredentials(e.Environment, e.ClientID, e.ClientSecret,
			e.RefreshToken, identityBase, store, logger)
		return NewEbayAdapter(e.Environment, e.MarketplaceID, e.SKUPrefix, cred, logger), nil

	default:
		return nil, fmt.Errorf("неизвестное направление %q", dest)
	}
}
