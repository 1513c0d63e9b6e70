package query

import (
	"github.com/goliatone/go-crm-connect/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[ListItemsMessage, []core.IntegrationItem]             = (*ListItemsQuery)(nil)
	_ gocmd.Querier[AuthorizationStatusMessage, core.AuthorizationStatus] = (*AuthorizationStatusQuery)(nil)
)
