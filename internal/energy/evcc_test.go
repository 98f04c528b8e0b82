package energy

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, slog.New(slog.DiscardHandler))
}

func TestState(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/state" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"result":{
			"gridPower": -1200.5,
			"pvPower": 3400,
			"homePower": 850,
			"batterySoc": 76,
			"loadpoints": [{"title":"Garage","mode":"pv","connected":true,"charging":true,"chargePower":1349.5}]
		}}`))
	})

	state, err := c.State(context.Background())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.GridPower != -1200.5 {
		t.Errorf("GridPower = %v", state.GridPower)
	}
	if state.BatterySoc != 76 {
		t.Errorf("BatterySoc = %v", state.BatterySoc)
	}
	if len(state.Loadpoints) != 1 || !state.Loadpoints[0].Charging {
		t.Errorf("Loadpoints = %+v", state.Loadpoints)
	}
}

func TestGridRates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tariff/grid" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"result":{"rates":[
			{"start":"2026-08-30T10:00:00Z","end":"2026-08-30T11:00:00Z","price":0.2419},
			{"start":"2026-08-30T11:00:00Z","end":"2026-08-30T12:00:00Z","price":0.1981}
		]}}`))
	})

	rates, err := c.GridRates(context.Background())
	if err != nil {
		t.Fatalf("GridRates: %v", err)
	}
	if len(rates) != 2 {
		t.Fatalf("len(rates) = %d, want 2", len(rates))
	}
	if rates[1].Price != 0.1981 {
		t.Errorf("rates[1].Price = %v", rates[1].Price)
	}
}

func TestSetLoadpointMode(t *testing.T) {
	var gotPath, gotMethod string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.Write([]byte(`{"result":"pv"}`))
	})

	if err := c.SetLoadpointMode(context.Background(), 1, "pv"); err != nil {
		t.Fatalf("SetLoadpointMode: %v", err)
	}
	if gotPath != "/api/loadpoints/1/mode/pv" {
		t.Errorf("path = %q", gotPath)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %q", gotMethod)
	}
}

func TestSetLoadpointModeRejectsUnknownMode(t *testing.T) {
	c := NewClient("http://unused", slog.New(slog.DiscardHandler))
	err := c.SetLoadpointMode(context.Background(), 1, "turbo")
	if err == nil {
		t.Fatal("want error for invalid mode")
	}
	if !strings.Contains(err.Error(), "invalid charge mode") {
		t.Errorf("err = %v", err)
	}
}

func TestStateServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	if _, err := c.State(context.Background()); err == nil {
		t.Fatal("want error on 500")
	}
}
