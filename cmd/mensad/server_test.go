package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xraph/mensa"
	"github.com/xraph/mensa/store/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	eng := mensa.New(memory.New(), mensa.WithLogger(slog.Default()))
	if err := eng.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.Stop() })

	ts := httptest.NewServer(newServer(eng, slog.Default(), false).Handler())
	t.Cleanup(ts.Close)

	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, role, body string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "test-actor")
	req.Header.Set("X-Actor-Role", role)

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)

	return resp, decoded
}

func TestAccountLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doJSON(t, ts, http.MethodPost, "/v1/accounts", "staff", `{"owner_ref":"stu-1042"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d body %v", resp.StatusCode, body)
	}
	accountID, _ := body["id"].(string)
	if !strings.HasPrefix(accountID, "acct_") {
		t.Fatalf("account id = %q", accountID)
	}

	resp, _ = doJSON(t, ts, http.MethodPost, "/v1/accounts/"+accountID+"/tokens", "staff", `{"delta":5}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add tokens: status %d", resp.StatusCode)
	}

	resp, consumed := doJSON(t, ts, http.MethodPost, "/v1/accounts/"+accountID+"/consume", "student", `{}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("consume: status %d body %v", resp.StatusCode, consumed)
	}
	if remaining, _ := consumed["remaining_tokens"].(float64); remaining != 4 {
		t.Errorf("remaining = %v, want 4", consumed["remaining_tokens"])
	}

	resp, rec := doJSON(t, ts, http.MethodGet, "/v1/accounts/"+accountID+"/reconcile", "staff", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reconcile: status %d", resp.StatusCode)
	}
	if balanced, _ := rec["balanced"].(bool); !balanced {
		t.Errorf("reconcile: %v", rec)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	ts := newTestServer(t)

	_, created := doJSON(t, ts, http.MethodPost, "/v1/accounts", "staff", `{"owner_ref":"stu-1042"}`)
	accountID, _ := created["id"].(string)

	tests := []struct {
		name   string
		method string
		path   string
		role   string
		body   string
		want   int
	}{
		{"MalformedBody", http.MethodPost, "/v1/accounts", "staff", `{"owner_ref":`, http.StatusBadRequest},
		{"DuplicateOwner", http.MethodPost, "/v1/accounts", "staff", `{"owner_ref":"stu-1042"}`, http.StatusConflict},
		{"UnknownAccount", http.MethodGet, "/v1/accounts/acct_01h2xcejqtf2nbrexx3vqjhp41", "staff", "", http.StatusNotFound},
		{"BadAccountID", http.MethodGet, "/v1/accounts/not-an-id", "staff", "", http.StatusBadRequest},
		{"AdjustNeedsAdmin", http.MethodPost, "/v1/accounts/" + accountID + "/adjust", "staff", `{"delta":1,"note":"n"}`, http.StatusForbidden},
		{"RemoveMissingPeriod", http.MethodDelete, "/v1/accounts/" + accountID + "/period", "staff", "", http.StatusConflict},
		{"UnknownTicket", http.MethodGet, "/v1/tickets/TCK-00042", "staff", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, ts, tt.method, tt.path, tt.role, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d (body %v)", resp.StatusCode, tt.want, body)
			}
		})
	}
}

func TestUnknownRoleDegradesToStudent(t *testing.T) {
	ts := newTestServer(t)

	_, created := doJSON(t, ts, http.MethodPost, "/v1/accounts", "staff", `{"owner_ref":"stu-1042"}`)
	accountID, _ := created["id"].(string)

	// A bogus role must not grant elevated backfill rights.
	resp, _ := doJSON(t, ts, http.MethodPost, "/v1/accounts/"+accountID+"/consume", "superuser",
		`{"date":"2020-01-01"}`)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}
