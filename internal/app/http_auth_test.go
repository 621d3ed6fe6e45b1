package app

import (
	"net/http"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")
	rr := doRequest(server, http.MethodGet, "/api/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	payload := decodePayload(t, rr)
	if payload["ok"] != true {
		t.Fatalf("expected ok true, got %v", payload["ok"])
	}
}

func TestSignUpSignInFlow(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	rr := doRequest(server, http.MethodPost, "/api/auth/signup", "", `{"name":"Avery","password":"hunter2hunter2"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(server, http.MethodPost, "/api/auth/signin", "", `{"name":"Avery","password":"hunter2hunter2"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("signin: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodePayload(t, rr)
	if payload["accessToken"] == "" || payload["accessToken"] == nil {
		t.Fatal("expected accessToken")
	}
	if payload["refreshToken"] == "" || payload["refreshToken"] == nil {
		t.Fatal("expected refreshToken")
	}
	if payload["userName"] != "Avery" {
		t.Fatalf("expected userName Avery, got %v", payload["userName"])
	}
}

func TestSignInRejectsWrongPassword(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	rr := doRequest(server, http.MethodPost, "/api/auth/signup", "", `{"name":"Avery","password":"hunter2hunter2"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(server, http.MethodPost, "/api/auth/signin", "", `{"name":"Avery","password":"wrong-password"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodePayload(t, rr)
	if payload["code"] != "INVALID_CREDENTIALS" {
		t.Fatalf("expected INVALID_CREDENTIALS, got %v", payload["code"])
	}
}

func TestDuplicateSignUpConflicts(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	rr := doRequest(server, http.MethodPost, "/api/auth/signup", "", `{"name":"Avery","password":"hunter2hunter2"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doRequest(server, http.MethodPost, "/api/auth/signup", "", `{"name":"Avery","password":"hunter2hunter2"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	doRequest(server, http.MethodPost, "/api/auth/signup", "", `{"name":"Avery","password":"hunter2hunter2"}`)
	rr := doRequest(server, http.MethodPost, "/api/auth/signin", "", `{"name":"Avery","password":"hunter2hunter2"}`)
	payload := decodePayload(t, rr)
	refreshToken := payload["refreshToken"].(string)

	rr = doRequest(server, http.MethodPost, "/api/session/refresh", "", `{"refreshToken":"`+refreshToken+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rotated := decodePayload(t, rr)
	if rotated["refreshToken"] == refreshToken {
		t.Fatal("refresh must rotate the token")
	}

	// The consumed token is gone.
	rr = doRequest(server, http.MethodPost, "/api/session/refresh", "", `{"refreshToken":"`+refreshToken+`"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("stale refresh: expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	doRequest(server, http.MethodPost, "/api/auth/signup", "", `{"name":"Avery","password":"hunter2hunter2"}`)
	rr := doRequest(server, http.MethodPost, "/api/auth/signin", "", `{"name":"Avery","password":"hunter2hunter2"}`)
	payload := decodePayload(t, rr)
	refreshToken := payload["refreshToken"].(string)

	rr = doRequest(server, http.MethodPost, "/api/session/logout", "", `{"refreshToken":"`+refreshToken+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(server, http.MethodPost, "/api/session/refresh", "", `{"refreshToken":"`+refreshToken+`"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("revoked refresh: expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSessionProbeWithoutToken(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")
	rr := doRequest(server, http.MethodGet, "/api/session", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	payload := decodePayload(t, rr)
	if payload["authenticated"] != false {
		t.Fatalf("expected authenticated false, got %v", payload["authenticated"])
	}
}
