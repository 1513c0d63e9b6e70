package sqlstore

import "github.com/goliatone/go-crm-connect/core"

var (
	_ core.TransientStore       = (*TransientStore)(nil)
	_ core.TransientTaker       = (*TransientStore)(nil)
	_ core.TransientEntryReader = (*TransientStore)(nil)
	_ core.TransientPurger      = (*TransientStore)(nil)
	_ BackingTransientStore     = (*TransientStore)(nil)

	_ core.TransientStore       = (*CachedTransientStore)(nil)
	_ core.TransientTaker       = (*CachedTransientStore)(nil)
	_ core.TransientEntryReader = (*CachedTransientStore)(nil)
	_ core.TransientPurger      = (*CachedTransientStore)(nil)
)
