package interlink

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"interbot/pkg/logx"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL}, logx.Nop())
}

func TestGetProfileDecodesPayload(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/current-user" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization header = %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "okhttp/4.12.0" {
			t.Errorf("user agent = %q", got)
		}
		w.Write([]byte(`{"message":"ok","data":{"username":"alice","email":"a@b.c"}}`))
	})

	p, out := c.GetProfile(context.Background(), "tok")
	if !out.OK() {
		t.Fatalf("outcome: %+v", out)
	}
	if p.Username != "alice" || p.Email != "a@b.c" {
		t.Fatalf("profile: %+v", p)
	}
}

func TestCallClassifiesStatuses(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		want   Kind
	}{
		{"unauthorized", 401, `{"message":"Unauthorized"}`, KindAuthInvalid},
		{"rate limited", 429, `{"message":"Too many requests"}`, KindRateLimited},
		{"too early", 400, `{"message":"TOKEN_CLAIM_TOO_EARLY"}`, KindClaimTooEarly},
		{"other bad request", 400, `{"message":"VALIDATION_FAILED"}`, KindUnknownResponse},
		{"server error", 500, `{"message":"boom"}`, KindUnknownResponse},
		{"non-json error body", 502, `<html>bad gateway</html>`, KindUnknownResponse},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})
			_, out := c.CheckClaimable(context.Background(), "tok")
			if out.Kind != tc.want {
				t.Fatalf("kind = %v, want %v (outcome %+v)", out.Kind, tc.want, out)
			}
			if out.Status != tc.status {
				t.Fatalf("status = %d, want %d", out.Status, tc.status)
			}
		})
	}
}

func TestTransportFailureIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on
	c := New(Config{BaseURL: srv.URL}, logx.Nop())

	_, out := c.CheckClaimable(context.Background(), "tok")
	if out.Kind != KindTransient {
		t.Fatalf("kind = %v, want transient", out.Kind)
	}
	if out.Status != 0 {
		t.Fatalf("status = %d, want 0 for transport failure", out.Status)
	}
}

func TestSubmitClaimEmptyDataIsNotAnError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"null data", `{"message":"done","data":null}`},
		{"non-boolean data", `{"message":"done","data":{"weird":true}}`},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(tc.body))
			})
			res, out := c.SubmitClaim(context.Background(), "tok")
			if !out.OK() {
				t.Fatalf("outcome: %+v", out)
			}
			if res == nil || res.Done {
				t.Fatalf("result = %+v, want Done=false", res)
			}
			if out.Message == "" {
				t.Fatalf("caller needs a message to surface")
			}
		})
	}
}

func TestSubmitClaimTrueBoolean(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		w.Write([]byte(`{"message":"claimed","data":true}`))
	})
	res, out := c.SubmitClaim(context.Background(), "tok")
	if !out.OK() || !res.Done {
		t.Fatalf("res = %+v, out = %+v", res, out)
	}
}

func TestMissingPayloadIsUnknownResponse(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"message":"ok"}`))
	})
	_, out := c.GetTokenBalances(context.Background(), "tok")
	if out.Kind != KindUnknownResponse {
		t.Fatalf("kind = %v, want unknown_response", out.Kind)
	}
}
