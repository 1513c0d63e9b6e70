package query

import (
	"context"

	"github.com/goliatone/go-crm-connect/core"
)

type ItemLister interface {
	ListItems(ctx context.Context, credentials any) ([]core.IntegrationItem, error)
}

type StatusReader interface {
	Status(ctx context.Context, id core.IdentityRef) (core.AuthorizationStatus, error)
}

type ListItemsQuery struct {
	lister ItemLister
}

func NewListItemsQuery(lister ItemLister) *ListItemsQuery {
	return &ListItemsQuery{lister: lister}
}

func (q *ListItemsQuery) Query(ctx context.Context, msg ListItemsMessage) ([]core.IntegrationItem, error) {
	if q == nil || q.lister == nil {
		return nil, core.DependencyError("query", "item lister")
	}
	return q.lister.ListItems(ctx, msg.Credentials)
}

type AuthorizationStatusQuery struct {
	reader StatusReader
}

func NewAuthorizationStatusQuery(reader StatusReader) *AuthorizationStatusQuery {
	return &AuthorizationStatusQuery{reader: reader}
}

func (q *AuthorizationStatusQuery) Query(
	ctx context.Context,
	msg AuthorizationStatusMessage,
) (core.AuthorizationStatus, error) {
	if q == nil || q.reader == nil {
		return core.AuthorizationStatus{}, core.DependencyError("query", "status reader")
	}
	if err := msg.Validate(); err != nil {
		return core.AuthorizationStatus{}, err
	}
	return q.reader.Status(ctx, msg.Identity)
}
