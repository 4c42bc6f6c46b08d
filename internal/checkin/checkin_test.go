package checkin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StreakStake/internal/ledger"
	"StreakStake/internal/model"
	"StreakStake/internal/store"
)

func newStore(t *testing.T) *store.SQLStore {
	t.Helper()
	s, err := store.Open(context.Background(), store.DriverSQLite, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecorderAndStoreSource(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	// 23:30 UTC on Oct 1 is already Oct 2 in Tokyo.
	now := time.Date(2026, 10, 1, 23, 30, 0, 0, time.UTC)
	_, err := ledger.New(s).OpenAccount(ctx, "alice", 100, "Asia/Tokyo")
	require.NoError(t, err)

	rec := NewRecorder(s, func() time.Time { return now }, nil)
	src := NewStoreSource(s)

	got, err := src.Outcome(ctx, "alice", "2026-10-02")
	require.NoError(t, err)
	assert.Equal(t, model.CheckInMissing, got)

	saved, err := rec.Record(ctx, model.CheckIn{OwnerID: "alice", Day: "2026-10-02", Status: model.CheckInDefeat, Mood: "low", Energy: 2})
	require.NoError(t, err)
	assert.Equal(t, now, saved.RecordedAt)

	got, err = src.Outcome(ctx, "alice", "2026-10-02")
	require.NoError(t, err)
	assert.Equal(t, model.CheckInDefeat, got)

	_, err = rec.Record(ctx, model.CheckIn{OwnerID: "alice", Day: "2026-10-02", Status: model.CheckInVictory})
	require.NoError(t, err)
	got, err = src.Outcome(ctx, "alice", "2026-10-02")
	require.NoError(t, err)
	assert.Equal(t, model.CheckInVictory, got)
}

func TestRecorder_Validation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	_, err := ledger.New(s).OpenAccount(ctx, "alice", 100, "UTC")
	require.NoError(t, err)
	rec := NewRecorder(s, func() time.Time { return now }, nil)

	tests := []struct {
		name string
		ci   model.CheckIn
		want error
	}{
		{"missing owner", model.CheckIn{Day: "2026-10-01", Status: model.CheckInVictory}, model.ErrValidation},
		{"missing is not recordable", model.CheckIn{OwnerID: "alice", Day: "2026-10-01", Status: model.CheckInMissing}, model.ErrValidation},
		{"bad day", model.CheckIn{OwnerID: "alice", Day: "01/10/2026", Status: model.CheckInVictory}, model.ErrValidation},
		{"future day", model.CheckIn{OwnerID: "alice", Day: "2026-10-02", Status: model.CheckInVictory}, model.ErrValidation},
		{"unknown owner", model.CheckIn{OwnerID: "bob", Day: "2026-10-01", Status: model.CheckInVictory}, model.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rec.Record(ctx, tt.ci)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/api/v1/checkins/alice/2026-10-01":
			w.Write([]byte(`{"owner_id":"alice","day":"2026-10-01","status":"defeat"}`))
		case "/api/v1/checkins/alice/2026-10-02":
			w.Write([]byte(`{"owner_id":"alice","day":"2026-10-02","status":"victory"}`))
		case "/api/v1/checkins/alice/2026-10-03":
			w.Write([]byte(`{"status":"maybe"}`))
		case "/api/v1/checkins/alice/2026-10-04":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, "secret", "", 0)
	ctx := context.Background()

	tests := []struct {
		day     string
		want    model.CheckInStatus
		wantErr bool
	}{
		{"2026-10-01", model.CheckInDefeat, false},
		{"2026-10-02", model.CheckInVictory, false},
		{"2026-10-03", "", true},
		{"2026-10-04", "", true},
		{"2026-10-05", model.CheckInMissing, false},
	}
	for _, tt := range tests {
		t.Run(tt.day, func(t *testing.T) {
			got, err := src.Outcome(ctx, "alice", tt.day)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := NewHTTPSource(srv.URL, "wrong", "", 0).Outcome(ctx, "alice", "2026-10-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestHTTPSource_RateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"victory"}`))
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, "", "", 0.001)
	ctx := context.Background()
	_, err := src.Outcome(ctx, "alice", "2026-10-01")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = src.Outcome(ctx, "alice", "2026-10-02")
	require.Error(t, err)
}

func TestMockSource(t *testing.T) {
	m := &MockSource{}
	ctx := context.Background()
	got, err := m.Outcome(ctx, "alice", "2026-10-01")
	require.NoError(t, err)
	assert.Equal(t, model.CheckInVictory, got)

	m.Set("alice", "2026-10-01", model.CheckInDefeat)
	got, _ = m.Outcome(ctx, "alice", "2026-10-01")
	assert.Equal(t, model.CheckInDefeat, got)

	m.Err = errors.New("down")
	_, err = m.Outcome(ctx, "alice", "2026-10-01")
	require.Error(t, err)
}
