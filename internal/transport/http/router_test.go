package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"lorequiz-service/internal/app"
	"lorequiz-service/internal/domain"
)

func doRequest(t *testing.T, method, url, token, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t)
	resp, _ := doRequest(t, http.MethodGet, server.URL+"/healthz", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestLeaderboardAndProfileEndpoints(t *testing.T) {
	server := newTestServer(t)
	token := server.token(t, "u1")

	conn := server.dial(t, "quizId=potions-owl&token="+token)
	playQuiz(t, conn)
	readUntil(t, conn, "submission", nil)

	resp, body := doRequest(t, http.MethodGet, server.URL+"/api/leaderboards/potions-owl", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("leaderboard: %d %s", resp.StatusCode, body)
	}
	var standings app.Standings
	if err := json.Unmarshal(body, &standings); err != nil {
		t.Fatalf("decode standings: %v", err)
	}
	if len(standings.Top) != 1 || standings.Top[0].UID != "u1" || standings.Top[0].Rank != 1 || standings.Top[0].Time == "" {
		t.Fatalf("unexpected standings %+v", standings)
	}

	resp, body = doRequest(t, http.MethodGet, server.URL+"/api/profile", token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("profile: %d %s", resp.StatusCode, body)
	}
	var view app.ProfileView
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if view.Profile.XP != 20 || view.Level != 1 || len(view.Badges) != 2 {
		t.Fatalf("unexpected profile view %+v", view)
	}
}

func TestProfileRequiresIdentity(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doRequest(t, http.MethodGet, server.URL+"/api/profile", "", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	resp, _ = doRequest(t, http.MethodGet, server.URL+"/api/profile", "garbage", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %d", resp.StatusCode)
	}
	resp, _ = doRequest(t, http.MethodGet, server.URL+"/api/profile", server.token(t, "ghost"), "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for a user without profile, got %d", resp.StatusCode)
	}
}

func TestUpdateSettingsEndpoint(t *testing.T) {
	server := newTestServer(t)
	token := server.token(t, "u1")
	name := "Wizard u1"
	if err := server.profiles.MergeProfile(context.Background(), "u1", domain.ProfilePatch{DisplayName: &name}); err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	resp, body := doRequest(t, http.MethodPatch, server.URL+"/api/profile/settings", token, `{"theme":"dark"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: %d %s", resp.StatusCode, body)
	}
	var settings domain.Settings
	if err := json.Unmarshal(body, &settings); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if settings.Theme != domain.ThemeDark || !settings.AudioEnabled {
		t.Fatalf("unexpected settings %+v", settings)
	}

	resp, _ = doRequest(t, http.MethodPatch, server.URL+"/api/profile/settings", token, `{"theme":"neon"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown theme, got %d", resp.StatusCode)
	}
	resp, _ = doRequest(t, http.MethodPatch, server.URL+"/api/profile/settings", token, `{"theme":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", resp.StatusCode)
	}
}
