package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func errorServer(status int, code string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(`{"error":"` + code + `"}`))
	}))
}

func TestFetchProfileMapsNotFound(t *testing.T) {
	srv := errorServer(http.StatusNotFound, "profile_not_found")
	defer srv.Close()

	_, err := New(srv.URL, nil).FetchProfile(context.Background(), "u1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if IsTransient(err) {
		t.Fatal("a definitive miss must not look transient")
	}
}

func TestServerErrorsAreTransient(t *testing.T) {
	srv := errorServer(http.StatusInternalServerError, "server_error")
	defer srv.Close()

	_, err := New(srv.URL, nil).FetchProfile(context.Background(), "u1")
	if !IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestRateLimitIsTransient(t *testing.T) {
	srv := errorServer(http.StatusTooManyRequests, "rate_limited")
	defer srv.Close()

	_, err := New(srv.URL, nil).FetchProfile(context.Background(), "u1")
	if !IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestNetworkErrorsAreTransient(t *testing.T) {
	srv := errorServer(http.StatusOK, "")
	srv.Close() // nothing listening any more

	_, err := New(srv.URL, nil).FetchProfile(context.Background(), "u1")
	if !IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestAuthErrorCarriesCode(t *testing.T) {
	srv := errorServer(http.StatusUnauthorized, "invalid_credentials")
	defer srv.Close()

	_, err := New(srv.URL, nil).SignIn(context.Background(), "a@b.c", "pw")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %T, want *AuthError", err)
	}
	if authErr.Status != http.StatusUnauthorized || authErr.Code != "invalid_credentials" {
		t.Fatalf("authErr = %+v", authErr)
	}
	if IsTransient(err) {
		t.Fatal("rejected credentials must not look transient")
	}
}

func TestRPCUnknownFunction(t *testing.T) {
	srv := errorServer(http.StatusNotFound, "rpc_not_found")
	defer srv.Close()

	err := New(srv.URL, nil).RPC(context.Background(), "does_not_exist", nil, nil)
	if !errors.Is(err, ErrRPCUnavailable) {
		t.Fatalf("err = %v, want ErrRPCUnavailable", err)
	}
}

func TestWebsocketURLSchemeAndToken(t *testing.T) {
	c := New("https://api.example.com", nil)
	c.SetAccessToken("tok")
	want := "wss://api.example.com/realtime/v1/ws?token=tok"
	if got := c.WebsocketURL(); got != want {
		t.Fatalf("url = %q, want %q", got, want)
	}
}
