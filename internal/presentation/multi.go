package presentation

import (
	"context"
	"errors"

	logx "reminderd/pkg/logx"
)

// Multi renders every directive on all presenters. A render fails only when
// every presenter fails; partial failures are logged.
type Multi struct {
	Presenters []Presenter
	Log        logx.Logger
}

func (m Multi) Render(ctx context.Context, d Directive) (Handle, error) {
	hs := make(multiHandle, 0, len(m.Presenters))
	var errs []error
	for _, p := range m.Presenters {
		h, err := p.Render(ctx, d)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		hs = append(hs, h)
	}
	if len(hs) == 0 {
		if len(errs) == 0 {
			return nil, errors.New("presentation: no presenters")
		}
		return nil, errors.Join(errs...)
	}
	if len(errs) > 0 {
		m.Log.Warn("render failed on some presenters", logx.String("reminder_id", d.ReminderID), logx.Err(errors.Join(errs...)))
	}
	if len(hs) == 1 {
		return hs[0], nil
	}
	return hs, nil
}

type multiHandle []Handle

func (hs multiHandle) Remove() {
	for _, h := range hs {
		h.Remove()
	}
}

func (hs multiHandle) OnUserAction(fn ActionFunc) {
	for _, h := range hs {
		h.OnUserAction(fn)
	}
}
