package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/al-bashkir/simplifyhealth/internal/session"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) []*dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

func labels(m *dto.Metric) map[string]string {
	out := make(map[string]string)
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

func TestRecordOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordOperation(session.OpSignIn, session.OutcomeSuccess)
	c.RecordOperation(session.OpSignIn, session.OutcomeSuccess)
	c.RecordOperation(session.OpPasswordReset, session.OutcomeFailure)

	got := make(map[string]float64)
	for _, m := range gather(t, reg, "simplifyhealth_auth_operations_total") {
		l := labels(m)
		got[l["operation"]+"/"+l["outcome"]] = m.GetCounter().GetValue()
	}

	if got["sign_in/success"] != 2 {
		t.Errorf("sign_in/success = %v, want 2", got["sign_in/success"])
	}
	if got["password_reset/failure"] != 1 {
		t.Errorf("password_reset/failure = %v, want 1", got["password_reset/failure"])
	}
}

func TestRecordTransition(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTransition(session.SignedIn(session.Session{Username: "a@b.com"}))
	if v := gather(t, reg, "simplifyhealth_session_signed_in")[0].GetGauge().GetValue(); v != 1 {
		t.Errorf("signed_in gauge = %v, want 1", v)
	}

	c.RecordTransition(session.SignedOut())
	if v := gather(t, reg, "simplifyhealth_session_signed_in")[0].GetGauge().GetValue(); v != 0 {
		t.Errorf("signed_in gauge = %v, want 0", v)
	}

	states := make(map[string]float64)
	for _, m := range gather(t, reg, "simplifyhealth_session_transitions_total") {
		states[labels(m)["state"]] = m.GetCounter().GetValue()
	}
	if states["signed_in"] != 1 || states["signed_out"] != 1 {
		t.Errorf("transitions = %v, want one of each", states)
	}
}

func TestRecordHTTPStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(409)
	c.RecordHTTPStatus(409)

	for _, m := range gather(t, reg, "simplifyhealth_http_responses_total") {
		if labels(m)["status_code"] == "409" && m.GetCounter().GetValue() != 2 {
			t.Errorf("409 count = %v, want 2", m.GetCounter().GetValue())
		}
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordOperation(session.OpSignOut, session.OutcomeBusy)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `simplifyhealth_auth_operations_total{operation="sign_out",outcome="busy"} 1`) {
		t.Errorf("response missing operation counter:\n%s", body)
	}
}
