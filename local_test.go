package sessionauth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sa "github.com/panyam/sessionauth"
)

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("Failed to encode body: %v", err)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

// TestSignupHandler tests user registration
func TestSignupHandler(t *testing.T) {
	env := setupEnv(t, testSessionConfig())

	tests := []struct {
		name           string
		body           any
		expectedStatus int
		checkMessage   string
		checkCode      string
	}{
		{
			name:           "successful signup",
			body:           sa.SignupRequest{Name: "Test User", Email: "Test@Example.com", Password: "password123"},
			expectedStatus: http.StatusCreated,
			checkMessage:   "User created successfully",
		},
		{
			name:           "duplicate email",
			body:           sa.SignupRequest{Name: "Other", Email: "test@example.com", Password: "password123"},
			expectedStatus: http.StatusConflict,
			checkMessage:   "Email already registered",
		},
		{
			name:           "weak password",
			body:           sa.SignupRequest{Name: "Weak", Email: "weak@example.com", Password: "pass"},
			expectedStatus: http.StatusBadRequest,
			checkCode:      sa.ErrCodeWeakPassword,
		},
		{
			name:           "password longer than bcrypt accepts",
			body:           sa.SignupRequest{Name: "Long", Email: "longpw@example.com", Password: strings.Repeat("a", 80)},
			expectedStatus: http.StatusBadRequest,
			checkCode:      sa.ErrCodeWeakPassword,
		},
		{
			name:           "invalid email",
			body:           sa.SignupRequest{Name: "Bad", Email: "not-an-email", Password: "password123"},
			expectedStatus: http.StatusBadRequest,
			checkCode:      sa.ErrCodeInvalidEmail,
		},
		{
			name:           "missing name",
			body:           sa.SignupRequest{Email: "noname@example.com", Password: "password123"},
			expectedStatus: http.StatusBadRequest,
			checkCode:      sa.ErrCodeMissingField,
		},
		{
			name:           "name too long",
			body:           sa.SignupRequest{Name: strings.Repeat("n", 31), Email: "long@example.com", Password: "password123"},
			expectedStatus: http.StatusBadRequest,
			checkCode:      sa.ErrCodeInvalidName,
		},
		{
			name:           "malformed body",
			body:           "{not json",
			expectedStatus: http.StatusBadRequest,
			checkMessage:   "Invalid post body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			env.App.Local.HandleSignup(rr, jsonRequest(t, http.MethodPost, "/auth/signup", tt.body))

			if rr.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d. Body: %s", tt.expectedStatus, rr.Code, rr.Body.String())
			}
			body := decodeResponse(t, rr)
			if tt.checkMessage != "" && body["message"] != tt.checkMessage {
				t.Errorf("Expected message %q, got %v", tt.checkMessage, body["message"])
			}
			if tt.checkCode != "" && body["code"] != tt.checkCode {
				t.Errorf("Expected code %q, got %v", tt.checkCode, body["code"])
			}
		})
	}

	user, err := env.Store.GetUserByEmail(context.Background(), "test@example.com")
	if err != nil {
		t.Fatalf("Signed up user not stored: %v", err)
	}
	if user.EmailVerified || user.Role != sa.RoleUser || !user.HasPassword() {
		t.Errorf("Unexpected new user %+v", user)
	}
	if *user.PasswordHash == "password123" {
		t.Error("Password must be stored hashed")
	}
	if n := env.Queue.count(sa.JobSendVerificationEmail); n != 1 {
		t.Errorf("Expected 1 verification email, got %d", n)
	}
}

func TestSignupSetsSessionCookie(t *testing.T) {
	env := setupEnv(t, testSessionConfig())
	rr := httptest.NewRecorder()
	env.App.Local.HandleSignup(rr, jsonRequest(t, http.MethodPost, "/auth/signup",
		sa.SignupRequest{Name: "Cookie", Email: "cookie@example.com", Password: "password123"}))

	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rr.Code)
	}
	cookie := findCookie(rr.Result().Cookies(), sa.DefaultCookieName)
	if cookie == nil || cookie.Value == "" {
		t.Fatal("Signup should log the user in")
	}
	if !cookie.HttpOnly || cookie.SameSite != http.SameSiteStrictMode {
		t.Errorf("Unexpected cookie attributes %+v", cookie)
	}
}

func TestSignupSurvivesQueueFailure(t *testing.T) {
	env := setupEnv(t, testSessionConfig())
	env.Queue.err = errors.New("redis down")

	rr := httptest.NewRecorder()
	env.App.Local.HandleSignup(rr, jsonRequest(t, http.MethodPost, "/auth/signup",
		sa.SignupRequest{Name: "Queue", Email: "queue@example.com", Password: "password123"}))

	if rr.Code != http.StatusCreated {
		t.Errorf("Expected 201 even if the email could not be queued, got %d", rr.Code)
	}
	if _, err := env.Store.GetUserByEmail(context.Background(), "queue@example.com"); err != nil {
		t.Errorf("User should exist: %v", err)
	}
}

// TestLoginHandler tests user authentication
func TestLoginHandler(t *testing.T) {
	env := setupEnv(t, testSessionConfig())
	createUser(t, env.Store, "login@example.com", "password123", true)

	oauthOnly := &sa.User{ID: "oauth-only", Name: "OAuth", Email: "oauth@example.com", Role: sa.RoleUser}
	if err := env.Store.CreateUser(context.Background(), oauthOnly); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	tests := []struct {
		name           string
		email          string
		password       string
		expectedStatus int
	}{
		{"successful login", "login@example.com", "password123", http.StatusOK},
		{"email is case insensitive", "  LOGIN@example.com ", "password123", http.StatusOK},
		{"wrong password", "login@example.com", "wrongpassword", http.StatusUnauthorized},
		{"short password", "login@example.com", "short", http.StatusUnauthorized},
		{"non-existent user", "nonexistent@example.com", "password123", http.StatusUnauthorized},
		{"oauth only user", "oauth@example.com", "password123", http.StatusUnauthorized},
		{"missing password", "login@example.com", "", http.StatusBadRequest},
		{"invalid email", "login", "password123", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			env.App.Local.ServeHTTP(rr, jsonRequest(t, http.MethodPost, "/auth/login",
				sa.LoginRequest{Email: tt.email, Password: tt.password}))

			if rr.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d. Body: %s", tt.expectedStatus, rr.Code, rr.Body.String())
			}
			cookie := findCookie(rr.Result().Cookies(), sa.DefaultCookieName)
			if tt.expectedStatus == http.StatusOK {
				if cookie == nil || cookie.Value == "" {
					t.Error("Expected a session cookie")
				}
			} else if cookie != nil {
				t.Errorf("Failed login must not set a cookie, got %+v", cookie)
			}
		})
	}

	rr := httptest.NewRecorder()
	env.App.Local.HandleLogin(rr, jsonRequest(t, http.MethodPost, "/auth/login",
		sa.LoginRequest{Email: "login@example.com", Password: "wrongpassword"}))
	if msg := decodeResponse(t, rr)["message"]; msg != "Invalid email or password" {
		t.Errorf("Unexpected message %v", msg)
	}
}

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	config := testSessionConfig()
	config.RequireEmailVerification = true
	env := setupEnv(t, config)
	createUser(t, env.Store, "unverified@example.com", "password123", false)
	createUser(t, env.Store, "verified@example.com", "password123", true)

	rr := httptest.NewRecorder()
	env.App.Local.HandleLogin(rr, jsonRequest(t, http.MethodPost, "/auth/login",
		sa.LoginRequest{Email: "unverified@example.com", Password: "password123"}))
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for unverified email, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	env.App.Local.HandleLogin(rr, jsonRequest(t, http.MethodPost, "/auth/login",
		sa.LoginRequest{Email: "verified@example.com", Password: "password123"}))
	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200 for verified email, got %d", rr.Code)
	}

	// signup creates the user but no session
	rr = httptest.NewRecorder()
	env.App.Local.HandleSignup(rr, jsonRequest(t, http.MethodPost, "/auth/signup",
		sa.SignupRequest{Name: "New", Email: "new@example.com", Password: "password123"}))
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rr.Code)
	}
	if findCookie(rr.Result().Cookies(), sa.DefaultCookieName) != nil {
		t.Error("Signup should not start a session when verification is required")
	}
}

func TestSignupValidation(t *testing.T) {
	req := sa.SignupRequest{Name: "  Padded  ", Email: " Mixed@Case.COM ", Password: "password123"}
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if req.Name != "Padded" || req.Email != "mixed@case.com" {
		t.Errorf("Expected trimmed name and normalized email, got %q %q", req.Name, req.Email)
	}

	// 30 runes is the limit, not 30 bytes
	req = sa.SignupRequest{Name: strings.Repeat("é", 30), Email: "a@b.co", Password: "password123"}
	if err := req.Validate(); err != nil {
		t.Errorf("30 character name should be accepted: %v", err)
	}

	// passwords are limited in bytes, as bcrypt hashes at most 72 of them
	passwords := []struct {
		password string
		valid    bool
	}{
		{strings.Repeat("a", sa.MaxPasswordBytes), true},
		{strings.Repeat("a", sa.MaxPasswordBytes+1), false},
		{strings.Repeat("é", 37), false},
	}
	for _, tt := range passwords {
		req = sa.SignupRequest{Name: "Pw", Email: "pw@example.com", Password: tt.password}
		err := req.Validate()
		if tt.valid && err != nil {
			t.Errorf("%d byte password should be accepted: %v", len(tt.password), err)
		}
		if !tt.valid && (err == nil || err.Code != sa.ErrCodeWeakPassword) {
			t.Errorf("%d byte password should be rejected as weak_password, got %v", len(tt.password), err)
		}
	}
}

func TestAuthenticate(t *testing.T) {
	config := testSessionConfig()
	config.RequireEmailVerification = true
	env := setupEnv(t, config)
	ctx := context.Background()
	verified := createUser(t, env.Store, "auth@example.com", "password123", true)
	createUser(t, env.Store, "pending@example.com", "password123", false)

	user, err := env.App.Local.Authenticate(ctx, " Auth@Example.com", "password123")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if user.ID != verified.ID {
		t.Errorf("Expected user %s, got %s", verified.ID, user.ID)
	}

	tests := []struct {
		email, password string
		want            error
		status          int
	}{
		{"auth@example.com", "wrongpassword", sa.ErrInvalidCredentials, http.StatusUnauthorized},
		{"nobody@example.com", "password123", sa.ErrInvalidCredentials, http.StatusUnauthorized},
		{"pending@example.com", "password123", sa.ErrEmailNotVerified, http.StatusForbidden},
	}
	for _, tt := range tests {
		_, err := env.App.Local.Authenticate(ctx, tt.email, tt.password)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.email, tt.want, err)
		}
		if got := sa.StatusCode(err); got != tt.status {
			t.Errorf("%s: expected status %d, got %d", tt.email, tt.status, got)
		}
	}
}
