package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var idSeq atomic.Int64

func init() { idSeq.Store(time.Now().UnixNano() % 1_000_000_000_000) }

// nextID returns a product id unlikely to collide with earlier runs against the same server.
func nextID() int64 { return idSeq.Add(1) }

func baseURL(t testing.TB) string {
	t.Helper()
	v := os.Getenv("BASE_URL")
	if v == "" {
		t.Skip("BASE_URL not set; start the service and export BASE_URL to run black-box tests")
	}
	return strings.TrimRight(v, "/")
}

func waitReady(t testing.TB) string {
	t.Helper()
	u := baseURL(t)
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(u + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return u
			}
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("service not ready")
	return ""
}

func post(t testing.TB, u, path, token, body string) *http.Response {
	t.Helper()
	r, err := http.NewRequest(http.MethodPost, u+path, bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(r)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func login(t testing.TB, u, user, pass string) (token, role string) {
	t.Helper()
	resp := post(t, u, "/api/users/login", "", fmt.Sprintf(`{"username":%q,"password":%q}`, user, pass))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	var lr struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		t.Fatal(err)
	}
	return lr.Token, lr.Role
}

type checkResult struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	QRHash  string `json:"qrHash"`
	IsFake  bool   `json:"isFake"`
	Verdict string `json:"verdict"`
}

func check(t testing.TB, u string, id int64) (int, checkResult) {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("%s/api/products/check/%d", u, id))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var res checkResult
	_ = json.NewDecoder(resp.Body).Decode(&res)
	return resp.StatusCode, res
}

func TestIntegration_OpenAPIServed(t *testing.T) {
	u := waitReady(t)
	resp, err := http.Get(u + "/openapi.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestIntegration_DocsServed(t *testing.T) {
	u := waitReady(t)
	resp, err := http.Get(u + "/docs")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	// best-effort: read up to a small buffer to search for swagger-ui token
	buf := make([]byte, 1024)
	n, _ := resp.Body.Read(buf)
	if !strings.Contains(string(buf[:n]), "swagger-ui") {
		t.Fatalf("expected swagger-ui in docs page")
	}
}

func TestIntegration_OwnerLifecycle(t *testing.T) {
	u := waitReady(t)
	admin, role := login(t, u, "admin", "adminpass")
	if role != "admin" {
		t.Fatalf("expected admin role, got %s", role)
	}
	id := nextID()
	resp := post(t, u, "/api/products/add", admin, fmt.Sprintf(`{"id":%d,"name":"Widget"}`, id))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add: expected 200, got %d", resp.StatusCode)
	}
	if code, res := check(t, u, id); code != http.StatusOK || res.IsFake || res.Verdict != "genuine" {
		t.Fatalf("check before: %d %+v", code, res)
	}
	resp = post(t, u, "/api/products/markFake", admin, fmt.Sprintf(`{"id":%d}`, id))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("markFake: expected 200, got %d", resp.StatusCode)
	}
	code, res := check(t, u, id)
	if code != http.StatusOK || res.Name != "Widget" || !res.IsFake || res.Verdict != "counterfeit" {
		t.Fatalf("check after: %d %+v", code, res)
	}

	guest, role := login(t, u, "guest", "x")
	if role != "customer" {
		t.Fatalf("expected customer role, got %s", role)
	}
	resp = post(t, u, "/api/products/add", guest, fmt.Sprintf(`{"id":%d,"name":"Gadget"}`, nextID()))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("guest add: expected 403, got %d", resp.StatusCode)
	}
}

func TestIntegration_VerifyByQRHash(t *testing.T) {
	u := waitReady(t)
	admin, _ := login(t, u, "admin", "adminpass")
	id := nextID()
	resp := post(t, u, "/api/products/add", admin, fmt.Sprintf(`{"id":%d,"name":"Scarf"}`, id))
	defer resp.Body.Close()
	var ar struct {
		QRHash string `json:"qrHash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		t.Fatal(err)
	}
	vr, err := http.Get(u + "/api/products/verify?qr=" + ar.QRHash)
	if err != nil {
		t.Fatal(err)
	}
	defer vr.Body.Close()
	var res checkResult
	if err := json.NewDecoder(vr.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if vr.StatusCode != http.StatusOK || res.ID != id {
		t.Fatalf("verify: %d %+v", vr.StatusCode, res)
	}
}

func TestIntegration_UnsupportedMediaType(t *testing.T) {
	u := waitReady(t)
	r, _ := http.NewRequest(http.MethodPost, u+"/api/products/add", bytes.NewBufferString("{}"))
	r.Header.Set("Content-Type", "text/plain")
	resp, err := http.DefaultClient.Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", resp.StatusCode)
	}
}
