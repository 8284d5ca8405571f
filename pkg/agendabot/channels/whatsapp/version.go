package whatsapp

import (
	"context"

	"go.mau.fi/whatsmeow/store"
)

// NewestVersion returns the greater of two protocol versions, compared
// component by component.
func NewestVersion(a, b [3]uint32) [3]uint32 {
	for i := range a {
		if a[i] > b[i] {
			return a
		}
		if b[i] > a[i] {
			return b
		}
	}
	return a
}

// applyVersion uses the newest of the cached and built-in protocol versions
// and refreshes the cache when the library is newer.
func (w *WhatsApp) applyVersion(ctx context.Context) {
	if w.versions == nil {
		return
	}
	cached := w.versions.LoadWAVersion()
	builtin := [3]uint32(store.GetWAVersion())
	newest := NewestVersion(cached, builtin)

	if newest != builtin {
		store.SetWAVersion(store.WAVersionContainer(newest))
	}
	if newest != cached {
		if err := w.versions.SaveWAVersion(ctx, newest); err != nil {
			w.logger.Warn("failed to cache WhatsApp version", "error", err)
		}
	}
	w.logger.Info("WhatsApp web version", "version", store.WAVersionContainer(newest).String())
}
