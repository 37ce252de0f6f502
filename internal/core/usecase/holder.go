package usecase

import (
	"sync/atomic"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
	"github.com/kirillkom/complaints-rag/internal/core/ports"
)

type handleRef struct {
	handle ports.IndexHandle
}

// IndexHolder publishes the serving index. Readers load the handle once per
// query and keep using it even if a rebuild swaps in a new one meanwhile.
type IndexHolder struct {
	current atomic.Pointer[handleRef]
}

func NewIndexHolder() *IndexHolder {
	return &IndexHolder{}
}

// Load returns the serving handle or nil before the first build is loaded.
func (h *IndexHolder) Load() ports.IndexHandle {
	ref := h.current.Load()
	if ref == nil {
		return nil
	}
	return ref.handle
}

// Swap installs handle and returns the one it replaced, if any.
func (h *IndexHolder) Swap(handle ports.IndexHandle) ports.IndexHandle {
	old := h.current.Swap(&handleRef{handle: handle})
	if old == nil {
		return nil
	}
	return old.handle
}

func (h *IndexHolder) Info() (domain.IndexInfo, bool) {
	handle := h.Load()
	if handle == nil {
		return domain.IndexInfo{}, false
	}
	return handle.Info(), true
}
