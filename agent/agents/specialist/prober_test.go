package specialist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
)

func TestProberRecordsHealth(t *testing.T) {
	t.Parallel()

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(up.Close)
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(down.Close)

	reg, err := NewRegistry(
		contractx.AgentEndpoint{Name: "get_weather", Address: up.URL + "/invoke", HealthURL: up.URL + "/health"},
		contractx.AgentEndpoint{Name: "search_accommodation", Address: down.URL + "/invoke", HealthURL: down.URL + "/health"},
		contractx.AgentEndpoint{Name: "no_probe", Address: "http://no-probe.local/invoke"},
	)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	NewProber(reg, time.Second, nil).Probe(context.Background())

	want := map[string]contractx.HealthStatus{
		"get_weather":          contractx.HealthHealthy,
		"search_accommodation": contractx.HealthUnreachable,
		"no_probe":             contractx.HealthUnknown,
	}
	for name, health := range want {
		ep, err := reg.Resolve(name)
		if err != nil {
			t.Fatalf("Resolve(%s) error = %v", name, err)
		}
		if ep.Health != health {
			t.Fatalf("%s health = %q, want %q", name, ep.Health, health)
		}
	}
}

func TestProberRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	reg, _ := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewProber(reg, time.Second, nil).Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
