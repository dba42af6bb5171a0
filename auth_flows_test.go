package sessionauth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"testing"
	"time"

	sa "github.com/panyam/sessionauth"
)

// do sends a JSON request to the test server and decodes the JSON response
func (e *testEnv) do(t *testing.T, client *http.Client, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.Server.URL+path, &buf)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("%s %s: failed to decode response: %v", method, path, err)
	}
	return resp, out
}

func expectStatus(t *testing.T, resp *http.Response, body map[string]any, status int) {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("%s %s: expected status %d, got %d: %v", resp.Request.Method, resp.Request.URL.Path, status, resp.StatusCode, body)
	}
}

// TestEmailVerificationFlow covers signup, verification and resend over HTTP
func TestEmailVerificationFlow(t *testing.T) {
	env := setupEnv(t, testSessionConfig())
	client := env.newClient(t)
	ctx := context.Background()

	resp, body := env.do(t, client, http.MethodPost, "/auth/signup",
		sa.SignupRequest{Name: "Verify", Email: "verify@example.com", Password: "password123"})
	expectStatus(t, resp, body, http.StatusCreated)
	signupCookie := findCookie(resp.Cookies(), sa.DefaultCookieName)
	if signupCookie == nil {
		t.Fatal("Signup should set the session cookie")
	}

	// resending replaces the first code
	first := env.Queue.lastVerificationCode("verify@example.com")
	resp, body = env.do(t, client, http.MethodPost, "/auth/resend-verification", nil)
	expectStatus(t, resp, body, http.StatusOK)
	code := env.Queue.lastVerificationCode("verify@example.com")
	if code == "" || env.Queue.count(sa.JobSendVerificationEmail) != 2 {
		t.Fatalf("Expected a second verification email, got %d", env.Queue.count(sa.JobSendVerificationEmail))
	}
	if first != code {
		resp, body = env.do(t, client, http.MethodPost, "/auth/verify-email?code="+first, nil)
		expectStatus(t, resp, body, http.StatusBadRequest)
		if body["message"] != "Invalid or expired code" {
			t.Errorf("Unexpected message %v", body["message"])
		}
	}

	resp, body = env.do(t, client, http.MethodPost, "/auth/verify-email?code="+code, nil)
	expectStatus(t, resp, body, http.StatusOK)
	verifyCookie := findCookie(resp.Cookies(), sa.DefaultCookieName)
	if verifyCookie == nil || verifyCookie.Value == signupCookie.Value {
		t.Fatalf("Verification should issue a new session cookie, got %+v", verifyCookie)
	}

	user, _ := env.Store.GetUserByEmail(ctx, "verify@example.com")
	if !user.EmailVerified {
		t.Error("Email should be verified")
	}
	if _, err := env.Store.GetSession(ctx, signupCookie.Value); err == nil {
		t.Error("Session from signup should be invalidated")
	}

	resp, body = env.do(t, client, http.MethodPost, "/auth/resend-verification", nil)
	expectStatus(t, resp, body, http.StatusOK)
	if body["message"] != "Email already verified" {
		t.Errorf("Unexpected message %v", body["message"])
	}

	resp, body = env.do(t, client, http.MethodPost, "/auth/verify-email", nil)
	expectStatus(t, resp, body, http.StatusBadRequest)
}

func TestResendVerificationRequiresLogin(t *testing.T) {
	env := setupEnv(t, testSessionConfig())
	resp, body := env.do(t, env.newClient(t), http.MethodPost, "/auth/resend-verification", nil)
	expectStatus(t, resp, body, http.StatusUnauthorized)
	if body["message"] != "Unauthenticated" {
		t.Errorf("Unexpected message %v", body["message"])
	}
}

// TestPasswordResetFlow covers requesting and consuming a reset token over HTTP
func TestPasswordResetFlow(t *testing.T) {
	env := setupEnv(t, testSessionConfig())
	ctx := context.Background()
	user := createUser(t, env.Store, "reset@example.com", "oldpassword1", true)
	createUser(t, env.Store, "unverified@example.com", "oldpassword1", false)

	// an existing login on another device
	other := env.newClient(t)
	resp, body := env.do(t, other, http.MethodPost, "/auth/login",
		sa.LoginRequest{Email: "reset@example.com", Password: "oldpassword1"})
	expectStatus(t, resp, body, http.StatusOK)
	otherCookie := findCookie(resp.Cookies(), sa.DefaultCookieName)

	client := env.newClient(t)
	for _, email := range []string{"unverified@example.com", "nobody@example.com"} {
		resp, body = env.do(t, client, http.MethodPost, "/auth/reset-password", sa.ResetPasswordRequest{Email: email})
		expectStatus(t, resp, body, http.StatusBadRequest)
		if body["message"] != "Invalid email address" {
			t.Errorf("%s: unexpected message %v", email, body["message"])
		}
	}
	if env.Queue.count(sa.JobSendPasswordResetEmail) != 0 {
		t.Fatal("No reset email should be queued for unknown or unverified addresses")
	}

	resp, body = env.do(t, client, http.MethodPost, "/auth/reset-password", sa.ResetPasswordRequest{Email: "Reset@Example.com"})
	expectStatus(t, resp, body, http.StatusOK)
	token := env.Queue.lastResetToken("reset@example.com")
	if len(token) != 40 {
		t.Fatalf("Expected a 40 character token, got %q", token)
	}

	for _, password := range []string{"short", strings.Repeat("a", 80)} {
		resp, body = env.do(t, client, http.MethodPost, "/auth/reset-password/"+token, sa.NewPasswordRequest{Password: password})
		expectStatus(t, resp, body, http.StatusBadRequest)
		if body["code"] != sa.ErrCodeWeakPassword {
			t.Errorf("%d char password: expected weak_password, got %v", len(password), body["code"])
		}
	}

	resp, body = env.do(t, client, http.MethodPost, "/auth/reset-password/"+token, sa.NewPasswordRequest{Password: "newpassword2"})
	expectStatus(t, resp, body, http.StatusOK)
	if findCookie(resp.Cookies(), sa.DefaultCookieName) == nil {
		t.Error("Reset should log the user in")
	}
	if _, err := env.Store.GetSession(ctx, otherCookie.Value); err == nil {
		t.Error("Other sessions should be invalidated by the reset")
	}

	resp, body = env.do(t, client, http.MethodPost, "/auth/reset-password/"+token, sa.NewPasswordRequest{Password: "newpassword3"})
	expectStatus(t, resp, body, http.StatusBadRequest)
	if body["message"] != "Invalid or expired token" {
		t.Errorf("Unexpected message %v", body["message"])
	}

	resp, body = env.do(t, env.newClient(t), http.MethodPost, "/auth/login",
		sa.LoginRequest{Email: user.Email, Password: "oldpassword1"})
	expectStatus(t, resp, body, http.StatusUnauthorized)
	resp, body = env.do(t, env.newClient(t), http.MethodPost, "/auth/login",
		sa.LoginRequest{Email: user.Email, Password: "newpassword2"})
	expectStatus(t, resp, body, http.StatusOK)
}

func TestPasswordResetQueueFailure(t *testing.T) {
	env := setupEnv(t, testSessionConfig())
	createUser(t, env.Store, "reset@example.com", "oldpassword1", true)
	env.Queue.err = context.DeadlineExceeded

	resp, body := env.do(t, env.newClient(t), http.MethodPost, "/auth/reset-password", sa.ResetPasswordRequest{Email: "reset@example.com"})
	expectStatus(t, resp, body, http.StatusInternalServerError)
}

// TestLogoutFlow checks logout drops the server side session
func TestLogoutFlow(t *testing.T) {
	env := setupEnv(t, testSessionConfig())
	createUser(t, env.Store, "logout@example.com", "password123", true)
	client := env.newClient(t)

	resp, body := env.do(t, client, http.MethodGet, "/auth/logout", nil)
	expectStatus(t, resp, body, http.StatusBadRequest)

	resp, body = env.do(t, client, http.MethodPost, "/auth/login",
		sa.LoginRequest{Email: "logout@example.com", Password: "password123"})
	expectStatus(t, resp, body, http.StatusOK)
	session := findCookie(resp.Cookies(), sa.DefaultCookieName)

	resp, body = env.do(t, client, http.MethodGet, "/auth/logout", nil)
	expectStatus(t, resp, body, http.StatusOK)
	if body["message"] != "Log out successfully" {
		t.Errorf("Unexpected message %v", body["message"])
	}
	cleared := findCookie(resp.Cookies(), sa.DefaultCookieName)
	if cleared == nil || cleared.Value != "" {
		t.Errorf("Logout should clear the cookie, got %+v", cleared)
	}
	if _, err := env.Store.GetSession(context.Background(), session.Value); err == nil {
		t.Error("Session should be deleted")
	}

	resp, body = env.do(t, client, http.MethodPost, "/auth/resend-verification", nil)
	expectStatus(t, resp, body, http.StatusUnauthorized)
}

// TestIdleSessionRenewsInBrowser drives an idle window rotation through a
// real cookie jar, which drops cookies once their Expires has passed.
func TestIdleSessionRenewsInBrowser(t *testing.T) {
	config := testSessionConfig()
	config.ActivePeriod = 2 * time.Hour
	config.IdlePeriod = 24 * time.Hour
	env := setupEnv(t, config)
	createUser(t, env.Store, "idle@example.com", "password123", false)

	// log in far enough in the past that the active period is already over
	env.Clock.Advance(-(config.ActivePeriod + time.Hour))

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("Failed to create cookie jar: %v", err)
	}
	client := &http.Client{Jar: jar}
	serverURL, _ := url.Parse(env.Server.URL)
	jarSession := func() string {
		if c := findCookie(jar.Cookies(serverURL), sa.DefaultCookieName); c != nil {
			return c.Value
		}
		return ""
	}

	resp, body := env.do(t, client, http.MethodPost, "/auth/login",
		sa.LoginRequest{Email: "idle@example.com", Password: "password123"})
	expectStatus(t, resp, body, http.StatusOK)
	loginSession := jarSession()
	if loginSession == "" {
		t.Fatal("Cookie jar should keep the session cookie through the idle window")
	}

	env.Clock.Advance(config.ActivePeriod + time.Hour)
	resp, body = env.do(t, client, http.MethodPost, "/auth/resend-verification", nil)
	expectStatus(t, resp, body, http.StatusOK)
	renewed := jarSession()
	if renewed == "" || renewed == loginSession {
		t.Fatalf("Expected the jar to hold a rotated session, got %q (login %q)", renewed, loginSession)
	}
	if _, err := env.Store.GetSession(context.Background(), loginSession); err == nil {
		t.Error("Rotated session id should be gone")
	}

	resp, body = env.do(t, client, http.MethodPost, "/auth/resend-verification", nil)
	expectStatus(t, resp, body, http.StatusOK)
	if jarSession() != renewed {
		t.Error("Renewed session should stay active without another rotation")
	}
}
