package app

import (
	"context"

	"reminderd/internal/notifier"
	"reminderd/internal/presentation"
)

// noticeRouter sends notices through the async notifier while it is
// enabled and straight to the presenters otherwise, so toggling the
// notifier on reload never silences sync failures.
type noticeRouter struct {
	notif  *notifier.Service
	direct presentation.NoticeSink
}

func (r noticeRouter) ShowNotice(ctx context.Context, n presentation.Notice) error {
	if r.notif != nil && r.notif.Enabled() {
		return r.notif.ShowNotice(ctx, n)
	}
	return r.direct.ShowNotice(ctx, n)
}
