package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dontdude/markcheck/internal/dispatch"
	"github.com/dontdude/markcheck/internal/domain"
	"github.com/dontdude/markcheck/internal/mocks"
	"github.com/dontdude/markcheck/internal/platform/auth"
	"github.com/dontdude/markcheck/internal/platform/memstore"
	"github.com/dontdude/markcheck/internal/platform/web"
	"github.com/dontdude/markcheck/internal/subscription"
	"github.com/dontdude/markcheck/internal/trademark"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	ownerToken = "tok-u1"
	imageURL   = "https://images.example.com/trademark-images/abc-logo.png"
)

type harness struct {
	objects  *mocks.MockObjectStore
	pub      *mocks.MockPublisher
	results  *memstore.ResultStore
	registry *subscription.Registry
	state    domain.BrokerState
	handler  http.Handler
}

func newHarness(t *testing.T, limiter *web.RateLimiter) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	h := &harness{
		objects:  mocks.NewMockObjectStore(ctrl),
		pub:      mocks.NewMockPublisher(ctrl),
		results:  memstore.NewResultStore(),
		registry: subscription.NewRegistry(0),
		state:    domain.BrokerConnected,
	}
	d := dispatch.New(h.pub, dispatch.Config{Topic: "trademark-workers", Attempts: 2, Delay: time.Millisecond})
	svc := trademark.NewService(h.objects, d, h.results, memstore.NewUserStore(), h.registry)
	verifier := auth.NewStaticVerifier(map[string]string{ownerToken: "u1", "tok-u2": "u2"})

	srv := NewServer(svc, verifier, limiter, Health{
		BrokerState: func() domain.BrokerState { return h.state },
	}, Config{SSEKeepAlive: time.Hour})
	h.handler = srv.Handler()
	return h
}

func (h *harness) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) listeners(owner string) int {
	ch, ok := h.registry.Lookup(owner)
	if !ok {
		return 0
	}
	return ch.Listeners()
}

func submitRequest(t *testing.T, name, product string, image []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("name", name))
	require.NoError(t, mw.WriteField("product_name", product))
	if image != nil {
		fw, err := mw.CreateFormFile("image", "logo.png")
		require.NoError(t, err)
		_, err = fw.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/trademarks", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+ownerToken)
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestAuth(t *testing.T) {
	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockTokenVerifier(ctrl)
	verifier.EXPECT().Verify(gomock.Any(), "expired").Return(domain.Identity{}, domain.ErrTokenExpired)
	verifier.EXPECT().Verify(gomock.Any(), "forged").Return(domain.Identity{}, domain.ErrUnauthenticated)

	svc := trademark.NewService(nil, nil, memstore.NewResultStore(), nil, subscription.NewRegistry(0))
	handler := NewServer(svc, verifier, nil, Health{}, Config{}).Handler()

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing", "", "no token provided"},
		{"wrong scheme", "Basic abc", "no token provided"},
		{"expired", "Bearer expired", "token expired"},
		{"invalid", "Bearer forged", "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/trademarks", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.want, decodeBody(t, rec)["error"])
		})
	}
}

func TestSubmit(t *testing.T) {
	h := newHarness(t, nil)
	h.objects.EXPECT().Upload(gomock.Any(), gomock.Any()).Return(imageURL, nil)
	h.pub.EXPECT().Publish(gomock.Any(), "trademark-workers", domain.WorkEnvelope{
		OwnerKey:        "u1",
		Name:            "Acme",
		ProductCategory: "cosmetics",
		ImageReference:  imageURL,
	}).Return(nil)

	rec := h.do(t, submitRequest(t, "Acme", "cosmetics", []byte("\x89PNG")))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "processing", body["status"])
	assert.Equal(t, imageURL, body["imageUrl"])
	assert.Contains(t, body["message"], "Acme")
}

func TestSubmit_ValidationErrors(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, submitRequest(t, "", "cosmetics", []byte("img")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name", decodeBody(t, rec)["field"])

	rec = h.do(t, submitRequest(t, "Acme", "cosmetics", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "image", decodeBody(t, rec)["field"])

	req := httptest.NewRequest(http.MethodPost, "/api/trademarks", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer "+ownerToken)
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, h.do(t, req).Code)
}

func TestSubmit_DispatchFailureIsUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	h.objects.EXPECT().Upload(gomock.Any(), gomock.Any()).Return(imageURL, nil)
	h.pub.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.ErrNotConnected).Times(2)

	rec := h.do(t, submitRequest(t, "Acme", "cosmetics", []byte("img")))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "trademark check could not be started", decodeBody(t, rec)["error"])
}

func TestSubmit_RateLimitedPerOwner(t *testing.T) {
	h := newHarness(t, web.NewRateLimiter(0.001, 1, RateLimitKey))
	h.objects.EXPECT().Upload(gomock.Any(), gomock.Any()).Return(imageURL, nil)
	h.pub.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	assert.Equal(t, http.StatusOK, h.do(t, submitRequest(t, "Acme", "cosmetics", []byte("img"))).Code)
	assert.Equal(t, http.StatusTooManyRequests, h.do(t, submitRequest(t, "Acme", "cosmetics", []byte("img"))).Code)
}

func TestHistory(t *testing.T) {
	h := newHarness(t, nil)
	get := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/trademarks", nil)
		req.Header.Set("Authorization", "Bearer "+ownerToken)
		return h.do(t, req)
	}

	rec := get()
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"no saved trademark results","records":[]}`, rec.Body.String())

	_, err := h.results.Save(context.Background(), domain.Record{
		OwnerKey: "u1", Name: "Acme", ProductCategory: "cosmetics",
		ImageReference: imageURL, Results: json.RawMessage(`{"similarity_score":0.5}`),
	})
	require.NoError(t, err)
	_, err = h.results.Save(context.Background(), domain.Record{OwnerKey: "u2", Name: "Other", Results: json.RawMessage(`{}`)})
	require.NoError(t, err)

	rec = get()
	var body struct {
		Message string          `json:"message"`
		Records []domain.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Message)
	require.Len(t, body.Records, 1)
	assert.Equal(t, "Acme", body.Records[0].Name)
	assert.JSONEq(t, `{"similarity_score":0.5}`, string(body.Records[0].Results))
}

func TestUsers(t *testing.T) {
	h := newHarness(t, nil)
	authed := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+ownerToken)
		return h.do(t, req)
	}

	assert.Equal(t, http.StatusNotFound, authed(http.MethodGet, "/api/users/me", "").Code)

	rec := authed(http.MethodPost, "/api/users/signup", `{"name":"Kim","email":"kim@example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = authed(http.MethodPost, "/api/users/signup", `{"name":"Kim","email":"kim@example.com"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome back, Kim!", decodeBody(t, rec)["message"])

	rec = authed(http.MethodGet, "/api/users/me", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", decodeBody(t, rec)["uid"])
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "connected", decodeBody(t, rec)["broker"])

	h.state = domain.BrokerFailed
	rec = h.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "failed", decodeBody(t, rec)["broker"])
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, httptest.NewRequest(http.MethodOptions, "/api/trademarks", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestSSE_DeliversOwnResultsVerbatim(t *testing.T) {
	h := newHarness(t, nil)
	ts := httptest.NewServer(h.handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/trademarks/results?access_token=" + ownerToken)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Equal(t, 1, h.listeners("u1"), "attached before the response started")

	payload := json.RawMessage("{\"similarity_score\": 0.73,\n  \"tokenize\": {\"tokens\": [\"ac\"]}}")
	h.registry.Publish("u2", json.RawMessage(`{"other":true}`))
	h.registry.Publish("u1", payload)

	var data []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if line == "" && len(data) > 0 {
			break
		}
		if rest, ok := strings.CutPrefix(line, "data: "); ok {
			data = append(data, rest)
		}
	}
	assert.Equal(t, string(payload), strings.Join(data, "\n"))

	require.NoError(t, resp.Body.Close())
	assert.Eventually(t, func() bool { return h.listeners("u1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

// parseSSEData splits a complete event stream body on CRLF, CR and LF and
// returns the data of each dispatched event.
func parseSSEData(body string) []string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")

	var events, data []string
	for _, line := range strings.Split(body, "\n") {
		if line == "" {
			if data != nil {
				events = append(events, strings.Join(data, "\n"))
				data = nil
			}
			continue
		}
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(rest, " "))
		}
	}
	return events
}

func TestWriteSSEData_CarriageReturns(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"bare CR", "{\"a\":1,\r\"b\":2}", "{\"a\":1,\n\"b\":2}"},
		{"CRLF", "{\"a\":1,\r\n\"b\":2}", "{\"a\":1,\n\"b\":2}"},
		{"LF", "{\"a\":1,\n\"b\":2}", "{\"a\":1,\n\"b\":2}"},
		{"mixed", "{\r\n\"a\": [1,\r\r2]\n}", "{\n\"a\": [1,\n\n2]\n}"},
		{"trailing CR", "{\"a\":1}\r", "{\"a\":1}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			require.NoError(t, writeSSEData(rec, []byte(tt.payload)))

			assert.NotContains(t, rec.Body.String(), "\r")
			events := parseSSEData(rec.Body.String())
			require.Len(t, events, 1)
			assert.Equal(t, tt.want, events[0])
			assert.JSONEq(t, strings.ReplaceAll(tt.payload, "\r", " "), events[0])
		})
	}
}

func TestSSE_DeliversPayloadWithCarriageReturns(t *testing.T) {
	h := newHarness(t, nil)
	ts := httptest.NewServer(h.handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/trademarks/results?access_token=" + ownerToken)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	h.registry.Publish("u1", json.RawMessage("{\"similarity_score\": 0.73,\r\"tokenize\":\r\n{\"tokens\": []}}"))

	var body strings.Builder
	r := bufio.NewReader(resp.Body)
	for !strings.HasSuffix(body.String(), "\n\n") {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, ":") {
			continue
		}
		body.WriteString(line)
	}

	events := parseSSEData(body.String())
	require.Len(t, events, 1)
	assert.JSONEq(t, `{"similarity_score": 0.73, "tokenize": {"tokens": []}}`, events[0])
}

func TestSSE_RequiresToken(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, httptest.NewRequest(http.MethodGet, "/api/trademarks/results", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebSocket_DeliversOwnResults(t *testing.T) {
	h := newHarness(t, nil)
	ts := httptest.NewServer(h.handler)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/trademarks/ws?access_token=" + ownerToken
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.Equal(t, 1, h.listeners("u1"), "attached before the response started")

	payload := json.RawMessage(`{"similarity_score": 0.73}`)
	h.registry.Publish("u1", payload)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.Equal(t, string(payload), string(msg))

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.listeners("u1") == 0 }, 2*time.Second, 10*time.Millisecond)
}
