package dispatch

import (
	"context"
	"sync"

	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

type firstRunRecord struct {
	Seen bool `json:"seen"`
}

// StoreFirstRun keeps the first-run flag in the durable store.
type StoreFirstRun struct {
	Store storage.Store
	Log   logx.Logger

	mu   sync.Mutex
	seen bool
}

func (f *StoreFirstRun) Consume(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen {
		return false
	}
	var rec firstRunRecord
	if ok, err := storage.GetJSON(ctx, f.Store, storage.KeyFirstRun, &rec); err != nil {
		f.Log.Warn("first-run flag read failed", logx.Err(err))
		f.seen = true
		return false
	} else if ok && rec.Seen {
		f.seen = true
		return false
	}
	f.seen = true
	if err := storage.PutJSON(ctx, f.Store, storage.KeyFirstRun, firstRunRecord{Seen: true}); err != nil {
		f.Log.Warn("first-run flag write failed", logx.Err(err))
	}
	return true
}
