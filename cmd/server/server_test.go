package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	appkafka "example.com/blogfeed/internal/broker"
	config "example.com/blogfeed/internal/init"
	"example.com/blogfeed/internal/middleware"
	"example.com/blogfeed/internal/models"
	"example.com/blogfeed/internal/store"
)

//
// --- Helpers ---
//

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Mode:            "server",
		JWTSecret:       "test-secret",
		TokenTTL:        24 * time.Hour,
		ImagesDir:       t.TempDir(),
		ImagesURLPrefix: "/images/",
		UploadMaxBytes:  1 << 20,
	}
}

type gqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"errors"`
}

// send a GraphQL request with optional bearer token
func graphql(t *testing.T, ts *httptest.Server, token, query string, vars map[string]any) gqlResponse {
	t.Helper()

	data, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/graphql", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, string(b))
	}

	var out gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return out
}

func signupAndLogin(t *testing.T, ts *httptest.Server, email, name string) string {
	t.Helper()

	resp := graphql(t, ts, "", `mutation($in: UserInputData!) { createUser(userInput: $in) { _id } }`,
		map[string]any{"in": map[string]any{"email": email, "name": name, "password": "password123"}})
	if len(resp.Errors) > 0 {
		t.Fatalf("createUser: %+v", resp.Errors)
	}

	resp = graphql(t, ts, "", `query($e: String!, $p: String!) { login(email: $e, password: $p) { token } }`,
		map[string]any{"e": email, "p": "password123"})
	if len(resp.Errors) > 0 {
		t.Fatalf("login: %+v", resp.Errors)
	}
	var auth struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(resp.Data["login"], &auth)
	return auth.Token
}

func uploadImage(t *testing.T, ts *httptest.Server, token, filename, contentType string) (int, map[string]string) {
	t.Helper()
	return replaceImage(t, ts, token, filename, contentType, "")
}

func replaceImage(t *testing.T, ts *httptest.Server, token, filename, contentType, oldPath string) (int, map[string]string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if oldPath != "" {
		mw.WriteField("oldPath", oldPath)
	}
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, _ := mw.CreatePart(h)
	part.Write([]byte("image-bytes"))
	mw.Close()

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/post-image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

//
// --- Setup test server ---
//

func setupTestServer(t *testing.T, cfg *config.Config) (*Server, *appkafka.MockKafka, *httptest.Server) {
	t.Helper()
	mockKafka := &appkafka.MockKafka{}
	s, err := New(cfg, store.NewMock(), mockKafka)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go s.hub.Run(ctx)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return s, mockKafka, ts
}

//
// --- Tests ---
//

// full flow: signup -> login -> upload -> post -> feed -> delete
func TestPostLifecycle(t *testing.T) {
	_, mockKafka, ts := setupTestServer(t, testConfig(t))
	token := signupAndLogin(t, ts, "almaz@example.com", "Almaz")

	code, up := uploadImage(t, ts, token, "cat.png", "image/png")
	if code != http.StatusCreated {
		t.Fatalf("expected 201 from upload, got %d %v", code, up)
	}
	imagePath := up["filePath"]

	// uploaded image is served read-only
	resp, err := http.Get(ts.URL + "/" + imagePath)
	if err != nil {
		t.Fatalf("GET image: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected image to be served, got %d", resp.StatusCode)
	}

	created := graphql(t, ts, token, `mutation($in: PostInputData!) { createPost(postInput: $in) { _id imageUrl } }`,
		map[string]any{"in": map[string]any{"title": "Cat", "content": "Look at it", "imageUrl": imagePath}})
	if len(created.Errors) > 0 {
		t.Fatalf("createPost: %+v", created.Errors)
	}
	var post struct {
		ID       string `json:"_id"`
		ImageURL string `json:"imageUrl"`
	}
	_ = json.Unmarshal(created.Data["createPost"], &post)
	if post.ImageURL != imagePath {
		t.Fatalf("unexpected imageUrl %q", post.ImageURL)
	}

	feed := graphql(t, ts, token, `{ posts(page: 1) { posts { _id creator { name } } totalPosts } }`, nil)
	if len(feed.Errors) > 0 || !strings.Contains(string(feed.Data["posts"]), post.ID) {
		t.Fatalf("post missing from feed: %s %+v", feed.Data["posts"], feed.Errors)
	}

	deleted := graphql(t, ts, token, `mutation($id: ID!) { deletePost(postId: $id) }`, map[string]any{"id": post.ID})
	if len(deleted.Errors) > 0 {
		t.Fatalf("deletePost: %+v", deleted.Errors)
	}

	written := mockKafka.Written()
	if len(written) != 2 {
		t.Fatalf("expected create and delete events, got %d", len(written))
	}
	ev, err := appkafka.DecodePostEvent(written[1].Value)
	if err != nil {
		t.Fatalf("DecodePostEvent: %v", err)
	}
	if ev.Action != models.PostDeleted || ev.Post.ImageURL != imagePath {
		t.Fatalf("unexpected delete event: %+v", ev)
	}
}

func TestKafkaFailureDoesNotFailMutation(t *testing.T) {
	s, err := New(testConfig(t), store.NewMock(), &appkafka.MockKafkaFail{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	token := signupAndLogin(t, ts, "almaz@example.com", "Almaz")
	resp := graphql(t, ts, token, `mutation { createPost(postInput: {title: "T", content: "C"}) { _id } }`, nil)
	if len(resp.Errors) > 0 {
		t.Fatalf("createPost should succeed without Kafka: %+v", resp.Errors)
	}
}

func TestUpload_OldPathOnlyRemovesOwnImages(t *testing.T) {
	_, _, ts := setupTestServer(t, testConfig(t))
	owner := signupAndLogin(t, ts, "almaz@example.com", "Almaz")
	other := signupAndLogin(t, ts, "nur@example.com", "Nur")

	_, up := uploadImage(t, ts, owner, "cat.png", "image/png")
	imagePath := up["filePath"]
	created := graphql(t, ts, owner, `mutation($in: PostInputData!) { createPost(postInput: $in) { _id } }`,
		map[string]any{"in": map[string]any{"title": "Cat", "content": "Look", "imageUrl": imagePath}})
	if len(created.Errors) > 0 {
		t.Fatalf("createPost: %+v", created.Errors)
	}

	imageStatus := func() int {
		resp, err := http.Get(ts.URL + "/" + imagePath)
		if err != nil {
			t.Fatalf("GET image: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	code, _ := replaceImage(t, ts, other, "dog.png", "image/png", imagePath)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if imageStatus() != http.StatusOK {
		t.Fatalf("another user's oldPath must not remove the image")
	}

	replaceImage(t, ts, owner, "cat2.png", "image/png", imagePath)
	if imageStatus() != http.StatusNotFound {
		t.Fatalf("owner's oldPath should remove the image")
	}
}

func TestUpload_GifIsIgnored(t *testing.T) {
	_, _, ts := setupTestServer(t, testConfig(t))
	token := signupAndLogin(t, ts, "almaz@example.com", "Almaz")

	code, body := uploadImage(t, ts, token, "anim.gif", "image/gif")
	if code != http.StatusOK || body["message"] != "No file provided" {
		t.Fatalf("expected 200 No file provided, got %d %v", code, body)
	}
}

func TestUpload_RequiresToken(t *testing.T) {
	_, _, ts := setupTestServer(t, testConfig(t))

	code, _ := uploadImage(t, ts, "", "cat.png", "image/png")
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestCORSPreflight(t *testing.T) {
	_, _, ts := setupTestServer(t, testConfig(t))

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/graphql", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
	if resp.Header.Get(middleware.RequestIDHeader) == "" {
		t.Fatalf("missing request id")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	_, _, ts := setupTestServer(t, testConfig(t))

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from health, got %d", resp.StatusCode)
	}

	graphql(t, ts, "", `{ posts { totalPosts } }`, nil)

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	for _, want := range []string{
		`graphql_operations_total{operation="posts",outcome="error"} 1`,
		`http_requests_total{method="POST",path="/graphql",status="200"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimitRPS = 1
	cfg.RateLimitBurst = 1
	_, _, ts := setupTestServer(t, cfg)

	post := func() int {
		resp, err := http.Post(ts.URL+"/graphql", "application/json", bytesReader(`{"query":"{ posts { totalPosts } }"}`))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := post(); code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", code)
	}
	if code := post(); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}

	// health is not rate limited
	resp, _ := http.Get(ts.URL + "/health")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health should not be limited, got %d", resp.StatusCode)
	}
}

func TestNew_RejectsBadTrustedProxy(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimitRPS = 1
	cfg.TrustedProxies = []string{"not-a-cidr/8"}
	if _, err := New(cfg, store.NewMock(), &appkafka.MockKafka{}); err == nil {
		t.Fatalf("expected error for invalid trusted proxy")
	}
}

func TestNew_RequiresSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.JWTSecret = ""
	if _, err := New(cfg, store.NewMock(), &appkafka.MockKafka{}); err == nil {
		t.Fatalf("expected error without JWT secret")
	}
}
