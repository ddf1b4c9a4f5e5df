package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/najoast/courier/comms"
	"github.com/najoast/courier/config"
	"github.com/najoast/courier/store"
)

func TestMetricsObserveDelivery(t *testing.T) {
	m := New()

	m.RecordStored(comms.KindPage, 2*time.Millisecond)
	m.RecordStored(comms.KindPage, time.Millisecond)
	m.RecordStored(comms.KindWhisper, time.Millisecond)
	m.RecipientOutcome(comms.KindPage, comms.OutcomeDelivered)
	m.RecipientOutcome(comms.KindPage, comms.OutcomeBlocked)
	m.RecipientOutcome(comms.KindPage, comms.OutcomeBlocked)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.stored.WithLabelValues("page")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stored.WithLabelValues("whisper")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("page", "delivered")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.outcomes.WithLabelValues("page", "blocked")))
}

func TestMetricsFromDispatcher(t *testing.T) {
	m := New()
	d := comms.NewDispatcher(store.NewMemory(), comms.WithObserver(m))

	sender := &actor{key: "alice"}
	_, err := d.Deliver(context.Background(), comms.Envelope{
		Kind:       comms.KindPage,
		Sender:     sender,
		Recipients: []comms.Actor{&actor{key: "bob", online: true}, &actor{key: "carol"}},
		Body:       "hi",
	})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.stored.WithLabelValues("page")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("page", "delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("page", "deferred")))
}

func TestMetricsSessions(t *testing.T) {
	m := New()

	m.SetOnline(3)
	m.SetOnline(2)
	m.LineLimited()
	m.Swept(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.online))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.limited))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.swept))
}

func TestServer(t *testing.T) {
	m := New()
	m.SetOnline(7)

	var down atomic.Bool
	cfg := config.MonitorConfig{Address: "127.0.0.1", MetricsPath: "/metrics", HealthPath: "/health"}
	s := NewServer(cfg, m, func() error {
		if down.Load() {
			return errors.New("store closed")
		}
		return nil
	}, nil)
	require.NoError(t, s.Start())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, s.Stop(ctx))
	}()

	base := "http://" + s.Addr().String()

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "courier_sessions_online 7")
	assert.Contains(t, string(body), "go_goroutines")

	resp, err = http.Get(base + "/health")
	require.NoError(t, err)
	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health["status"])

	down.Store(true)
	resp, err = http.Get(base + "/health")
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "store closed", health["error"])

	resp, err = http.Post(base+"/health", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

type actor struct {
	key    string
	online bool
}

func (a *actor) Key() string                         { return a.key }
func (a *actor) Name() string                        { return a.key }
func (a *actor) CanReceive(comms.Actor, string) bool { return true }
func (a *actor) IsOnline() bool                      { return a.online }
func (a *actor) Deliver(string) error {
	if !a.online {
		return errors.New("offline")
	}
	return nil
}
