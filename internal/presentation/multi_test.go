package presentation_test

import (
	"context"
	"errors"
	"testing"

	"reminderd/internal/presentation"
	"reminderd/internal/presentation/presentationtest"
	"reminderd/internal/reminder"
)

func TestMultiFansOut(t *testing.T) {
	a, b := &presentationtest.Recorder{}, &presentationtest.Recorder{}
	m := presentation.Multi{Presenters: []presentation.Presenter{a, b}}

	h, err := m.Render(context.Background(), presentation.Directive{ReminderID: "r1"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	var got []presentation.UserAction
	h.OnUserAction(func(u presentation.UserAction) { got = append(got, u) })

	b.Last("r1").Fire(presentation.UserAction{ReminderID: "r1", Action: reminder.ActionComplete})
	if len(got) != 1 || got[0].Action != reminder.ActionComplete {
		t.Fatalf("actions = %+v", got)
	}

	h.Remove()
	if a.Last("r1").Removed() != 1 || b.Last("r1").Removed() != 1 {
		t.Fatalf("Remove did not reach every presenter")
	}
}

func TestMultiPartialFailure(t *testing.T) {
	ok, bad := &presentationtest.Recorder{}, &presentationtest.Recorder{Fail: true}
	m := presentation.Multi{Presenters: []presentation.Presenter{bad, ok}}
	if _, err := m.Render(context.Background(), presentation.Directive{ReminderID: "r1"}); err != nil {
		t.Fatalf("partial failure returned error: %v", err)
	}

	m = presentation.Multi{Presenters: []presentation.Presenter{bad}}
	_, err := m.Render(context.Background(), presentation.Directive{ReminderID: "r2"})
	if !errors.Is(err, presentationtest.ErrRenderFailed) {
		t.Fatalf("err = %v, want ErrRenderFailed", err)
	}
}
