package crmconnect

import (
	"github.com/goliatone/go-crm-connect/core"
	"github.com/goliatone/go-crm-connect/providers/hubspot"
)

func HubSpotProvider(cfg hubspot.Config) (core.Provider, error) {
	return hubspot.New(cfg)
}

// HubSpotProviderFactory adapts HubSpotProvider to core.ProviderFactory.
func HubSpotProviderFactory(cfg core.Config) (core.Provider, error) {
	return hubspot.New(hubspot.ConfigFromCore(cfg))
}
