package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[AuthorizeMessage]          = (*AuthorizeCommand)(nil)
	_ gocmd.Commander[CompleteCallbackMessage]   = (*CompleteCallbackCommand)(nil)
	_ gocmd.Commander[ConsumeCredentialsMessage] = (*ConsumeCredentialsCommand)(nil)
	_ gocmd.Commander[PurgeExpiredMessage]       = (*PurgeExpiredCommand)(nil)
)
