package webapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openline-voip/calld/pkg/stor"
)

type fakeHistoryStor struct {
	entries []stor.HistoryEntry
}

func (s *fakeHistoryStor) AddEntry(entry *stor.HistoryEntry) error {
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *fakeHistoryStor) ListRecent(limit int) ([]stor.HistoryEntry, error) {
	if limit > len(s.entries) {
		limit = len(s.entries)
	}
	return s.entries[:limit], nil
}

func TestListHistory(t *testing.T) {
	history := &fakeHistoryStor{}
	require.NoError(t, history.AddEntry(&stor.HistoryEntry{Kind: "transfer", RecordID: "transfer-1", Status: "completed"}))
	require.NoError(t, history.AddEntry(&stor.HistoryEntry{Kind: "relocate", RecordID: "relocate-1", Status: "ended"}))

	controller := NewHistoryController(history)

	t.Run("All", func(t *testing.T) {
		ctx, rec := setupEchoContext(http.MethodGet, "/api/history", "user-1", nil)
		require.NoError(t, controller.ListHistory(ctx))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "transfer-1")
		assert.Contains(t, rec.Body.String(), "relocate-1")
	})

	t.Run("Limited", func(t *testing.T) {
		ctx, rec := setupEchoContext(http.MethodGet, "/api/history?limit=1", "user-1", nil)
		require.NoError(t, controller.ListHistory(ctx))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "transfer-1")
		assert.NotContains(t, rec.Body.String(), "relocate-1")
	})

	t.Run("InvalidLimit", func(t *testing.T) {
		ctx, rec := setupEchoContext(http.MethodGet, "/api/history?limit=zero", "user-1", nil)
		require.NoError(t, controller.ListHistory(ctx))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid-limit")
	})
}
