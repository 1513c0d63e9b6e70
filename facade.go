package crmconnect

import (
	"fmt"

	crmcommand "github.com/goliatone/go-crm-connect/command"
	crmquery "github.com/goliatone/go-crm-connect/query"
)

type CommandQueryService interface {
	crmcommand.MutatingService
	crmcommand.PurgingService
	crmquery.ItemLister
	crmquery.StatusReader
}

type Commands struct {
	Authorize          *crmcommand.AuthorizeCommand
	CompleteCallback   *crmcommand.CompleteCallbackCommand
	ConsumeCredentials *crmcommand.ConsumeCredentialsCommand
	PurgeExpired       *crmcommand.PurgeExpiredCommand
}

type Queries struct {
	ListItems           *crmquery.ListItemsQuery
	AuthorizationStatus *crmquery.AuthorizationStatusQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	itemLister crmquery.ItemLister
}

// WithItemLister routes the ListItems query to a lister other than the
// service, e.g. one with a different provider.
func WithItemLister(lister crmquery.ItemLister) FacadeOption {
	return func(options *facadeOptions) {
		options.itemLister = lister
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("crmconnect: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	lister := cfg.itemLister
	if lister == nil {
		lister = service
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Authorize:          crmcommand.NewAuthorizeCommand(service),
		CompleteCallback:   crmcommand.NewCompleteCallbackCommand(service),
		ConsumeCredentials: crmcommand.NewConsumeCredentialsCommand(service),
		PurgeExpired:       crmcommand.NewPurgeExpiredCommand(service),
	}
	facade.queries = Queries{
		ListItems:           crmquery.NewListItemsQuery(lister),
		AuthorizationStatus: crmquery.NewAuthorizationStatusQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
