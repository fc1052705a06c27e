package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/outpost-core/internal/automation"
)

const testRuleBody = `{
	"name": "High temperature fan",
	"enabled": true,
	"cooldown_seconds": 120,
	"trigger": {"device_id": "dev-1", "sensor_type": "temperature", "operator": ">", "threshold": 30},
	"action": {"kind": "device_command", "device_id": "dev-2", "command": {"fan": "on"}}
}`

// createRule posts a rule and returns the decoded response.
func createRule(t *testing.T, router http.Handler, body string) automation.Rule {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/automations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("create rule status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var rule automation.Rule
	if err := json.Unmarshal(w.Body.Bytes(), &rule); err != nil {
		t.Fatalf("unmarshal rule: %v", err)
	}
	return rule
}

// ─── Rule CRUD Tests ─────────────────────────────────────────────────────────

func TestCreateAndGetRule(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	rule := createRule(t, router, testRuleBody)

	if rule.ID == "" {
		t.Fatal("expected generated rule ID")
	}
	if rule.Name != "High temperature fan" {
		t.Errorf("name = %q, want High temperature fan", rule.Name)
	}
	if rule.LastTriggered != nil {
		t.Error("new rule should start with a clear cooldown stamp")
	}
	if rule.Trigger.Operator != automation.OpGreater {
		t.Errorf("operator = %q, want >", rule.Trigger.Operator)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/automations/"+rule.ID, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var fetched automation.Rule
	if err := json.Unmarshal(w.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if fetched.ID != rule.ID {
		t.Errorf("id = %q, want %q", fetched.ID, rule.ID)
	}
	if fetched.Action.Kind != automation.ActionDeviceCommand {
		t.Errorf("action kind = %q, want device_command", fetched.Action.Kind)
	}
}

func TestCreateRule_PinAction(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	body := `{
		"name": "Heat lamp on",
		"enabled": true,
		"trigger": {"device_id": "dev-1", "sensor_type": "temperature", "operator": "<", "threshold": 10},
		"action": {"kind": "pin", "pin": 18, "value": 1}
	}`
	rule := createRule(t, router, body)

	if rule.Action.Kind != automation.ActionPin {
		t.Errorf("action kind = %q, want pin", rule.Action.Kind)
	}
	if rule.Action.Pin == nil || *rule.Action.Pin != 18 {
		t.Errorf("pin = %v, want 18", rule.Action.Pin)
	}
}

func TestCreateRule_DuplicateID(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	body := `{
		"id": "rule-dup",
		"name": "First",
		"trigger": {"device_id": "dev-1", "sensor_type": "temperature", "operator": ">", "threshold": 30},
		"action": {"kind": "device_command", "device_id": "dev-2", "command": {"fan": "on"}}
	}`
	createRule(t, router, body)

	req := httptest.NewRequest(http.MethodPost, "/api/automations", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want %d; body: %s", w.Code, http.StatusConflict, w.Body.String())
	}
}

func TestCreateRule_InvalidJSON(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/automations", strings.NewReader("not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestCreateRule_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			"missing name",
			`{"trigger": {"device_id": "d", "sensor_type": "temperature", "operator": ">", "threshold": 1},
			  "action": {"kind": "pin", "pin": 18, "value": 1}}`,
		},
		{
			"bad operator",
			`{"name": "R", "trigger": {"device_id": "d", "sensor_type": "temperature", "operator": "~=", "threshold": 1},
			  "action": {"kind": "pin", "pin": 18, "value": 1}}`,
		},
		{
			"bad action kind",
			`{"name": "R", "trigger": {"device_id": "d", "sensor_type": "temperature", "operator": ">", "threshold": 1},
			  "action": {"kind": "webhook"}}`,
		},
		{
			"pin out of range",
			`{"name": "R", "trigger": {"device_id": "d", "sensor_type": "temperature", "operator": ">", "threshold": 1},
			  "action": {"kind": "pin", "pin": 99, "value": 1}}`,
		},
		{
			"negative cooldown",
			`{"name": "R", "cooldown_seconds": -5,
			  "trigger": {"device_id": "d", "sensor_type": "temperature", "operator": ">", "threshold": 1},
			  "action": {"kind": "pin", "pin": 18, "value": 1}}`,
		},
		{
			"command action without command",
			`{"name": "R", "trigger": {"device_id": "d", "sensor_type": "temperature", "operator": ">", "threshold": 1},
			  "action": {"kind": "device_command", "device_id": "dev-2"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t)
			router := srv.buildRouter()

			req := httptest.NewRequest(http.MethodPost, "/api/automations", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
			}
		})
	}
}

func TestListRules(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/automations", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(resp["count"].(float64)) != 0 {
		t.Errorf("count = %v, want 0", resp["count"])
	}

	createRule(t, router, testRuleBody)

	req = httptest.NewRequest(http.MethodGet, "/api/automations", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(resp["count"].(float64)) != 1 {
		t.Errorf("count = %v, want 1", resp["count"])
	}
}

func TestGetRule_NotFound(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/automations/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestUpdateRule(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	rule := createRule(t, router, testRuleBody)

	body := `{"name": "Renamed", "enabled": false}`
	req := httptest.NewRequest(http.MethodPatch, "/api/automations/"+rule.ID, strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var updated automation.Rule
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if updated.Name != "Renamed" {
		t.Errorf("name = %q, want Renamed", updated.Name)
	}
	if updated.Enabled {
		t.Error("enabled = true, want false")
	}
	// The trigger was not part of the patch
	if updated.Trigger.SensorType != "temperature" {
		t.Errorf("sensor_type = %q, want temperature", updated.Trigger.SensorType)
	}
}

func TestUpdateRule_PreservesCooldownStamp(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	rule := createRule(t, router, testRuleBody)

	// Fire the rule so the cooldown stamp is set
	fired, err := srv.rules.TryFire(context.Background(), rule.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("TryFire: %v", err)
	}
	if !fired {
		t.Fatal("expected fresh rule to fire")
	}

	body := `{"name": "Edited while cooling down"}`
	req := httptest.NewRequest(http.MethodPatch, "/api/automations/"+rule.ID, strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/automations/"+rule.ID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var fetched automation.Rule
	if err := json.Unmarshal(w.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if fetched.LastTriggered == nil {
		t.Error("cooldown stamp cleared by edit, want preserved")
	}
}

func TestUpdateRule_NotFound(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"name": "Ghost"}`
	req := httptest.NewRequest(http.MethodPatch, "/api/automations/nonexistent", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestUpdateRule_InvalidOperator(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	rule := createRule(t, router, testRuleBody)

	body := `{"trigger": {"device_id": "dev-1", "sensor_type": "temperature", "operator": "between", "threshold": 30}}`
	req := httptest.NewRequest(http.MethodPatch, "/api/automations/"+rule.ID, strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestDeleteRule(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	rule := createRule(t, router, testRuleBody)

	req := httptest.NewRequest(http.MethodDelete, "/api/automations/"+rule.ID, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusNoContent, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/automations/"+rule.ID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestDeleteRule_NotFound(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodDelete, "/api/automations/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
