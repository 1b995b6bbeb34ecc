package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	verificationengine "wayfinder/contexts/community-mapping/verification-engine"
	"wayfinder/contexts/community-mapping/verification-engine/domain/entities"
	verificationhttp "wayfinder/contexts/community-mapping/verification-engine/transport/http"
	platformmetrics "wayfinder/internal/platform/metrics"

	"github.com/jonboulle/clockwork"
)

func newTestModule() verificationengine.Module {
	createdAt := time.Now().UTC().Add(-time.Hour)
	module := verificationengine.NewInMemoryModule([]entities.VotableEntity{
		entities.NewPendingEntity("lm-1", entities.EntityKindLandmark, "Old well", "alice", createdAt),
		entities.NewPendingEntity("rt-1", entities.EntityKindRoute, "Ridge path", "alice", createdAt),
	}, slog.Default())
	module.Store.SetVoterProfile(entities.VoterProfile{UserID: "alice"})
	module.Store.SetVoterProfile(entities.VoterProfile{UserID: "leader-1", IsCommunityLeader: true})
	module.Store.SetVoterProfile(entities.VoterProfile{UserID: "leader-2", IsCommunityLeader: true})
	module.Store.SetVoterProfile(entities.VoterProfile{UserID: "member-1"})
	return module
}

func newTestServer() *Server {
	return New(
		newTestModule(),
		NewVoterLimiter(1000, 1000, nil),
		platformmetrics.Handler(platformmetrics.NewRegistry()),
		slog.Default(),
		":0",
	)
}

func voteRequest(method string, path string, voterID string, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set("X-Request-Id", "req-vote-1")
	if voterID != "" {
		req.Header.Set("X-User-Id", voterID)
	}
	return req
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) verificationhttp.ErrorResponse {
	t.Helper()
	var payload verificationhttp.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json response: %v", err)
	}
	if payload.Success {
		t.Fatalf("expected success=false, got %s", rr.Body.String())
	}
	return payload
}

func TestVoteRequiresAuthorization(t *testing.T) {
	server := newTestServer()
	req := voteRequest(http.MethodPost, "/api/v1/landmarks/lm-1/vote", "member-1", `{"choice":"yes"}`)
	req.Header.Del("Authorization")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := decodeError(t, rr); payload.ErrorKind != "Unauthorized" {
		t.Fatalf("unexpected error kind: %s", payload.ErrorKind)
	}
}

func TestVoteRequiresVoterHeader(t *testing.T) {
	server := newTestServer()
	req := voteRequest(http.MethodPost, "/api/v1/landmarks/lm-1/vote", "", `{"choice":"yes"}`)

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestVoteReturnsCanonicalResponse(t *testing.T) {
	server := newTestServer()

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, voteRequest(http.MethodPost, "/api/v1/landmarks/lm-1/vote", "leader-1", `{"choice":"yes"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("X-Request-Id"); got != "req-vote-1" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}

	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, voteRequest(http.MethodPut, "/api/v1/landmarks/lm-1/vote", "leader-2", `{"choice":"yes"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json response: %v", err)
	}
	if payload["success"] != true || payload["status"] != "verified" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if payload["voterWeight"] != 4.0 {
		t.Fatalf("expected voter weight 4, got %v", payload["voterWeight"])
	}
	aggregate, ok := payload["aggregate"].(map[string]any)
	if !ok {
		t.Fatalf("expected aggregate object, got %T", payload["aggregate"])
	}
	for _, field := range []string{"totalWeight", "yesWeight", "noWeight", "confidenceScore"} {
		if _, ok := aggregate[field]; !ok {
			t.Fatalf("aggregate missing %s: %v", field, aggregate)
		}
	}
}

func TestVoteErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		voterID  string
		body     string
		wantCode int
		wantKind string
	}{
		{"bad json", "/api/v1/landmarks/lm-1/vote", "member-1", `{`, http.StatusBadRequest, "InvalidVote"},
		{"bad choice", "/api/v1/landmarks/lm-1/vote", "member-1", `{"choice":"maybe"}`, http.StatusBadRequest, "InvalidVote"},
		{"self vote", "/api/v1/landmarks/lm-1/vote", "alice", `{"choice":"yes"}`, http.StatusForbidden, "SelfVoteForbidden"},
		{"unknown entity", "/api/v1/landmarks/lm-404/vote", "member-1", `{"choice":"yes"}`, http.StatusNotFound, "EntityNotFound"},
		{"wrong kind", "/api/v1/routes/lm-1/vote", "member-1", `{"choice":"yes"}`, http.StatusNotFound, "EntityNotFound"},
		{"unknown voter", "/api/v1/landmarks/lm-1/vote", "ghost", `{"choice":"yes"}`, http.StatusNotFound, "VoterNotFound"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer()
			rr := httptest.NewRecorder()
			server.mux.ServeHTTP(rr, voteRequest(http.MethodPost, tt.path, tt.voterID, tt.body))

			if rr.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d body=%s", tt.wantCode, rr.Code, rr.Body.String())
			}
			if payload := decodeError(t, rr); payload.ErrorKind != tt.wantKind {
				t.Fatalf("expected kind %s, got %s", tt.wantKind, payload.ErrorKind)
			}
		})
	}
}

func TestVoteLockContentionMapsToConflict(t *testing.T) {
	module := newTestModule()
	module.Store.SetLockTimeout(10 * time.Millisecond)
	release, err := module.Store.LockEntity(context.Background(), "lm-1")
	if err != nil {
		t.Fatalf("lock entity: %v", err)
	}
	defer release()

	server := New(module, nil, nil, slog.Default(), ":0")
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, voteRequest(http.MethodPost, "/api/v1/landmarks/lm-1/vote", "member-1", `{"choice":"yes"}`))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := decodeError(t, rr); payload.ErrorKind != "TransactionConflict" {
		t.Fatalf("unexpected error kind: %s", payload.ErrorKind)
	}
}

func TestVoteAbandonedLockWaitMapsToConflict(t *testing.T) {
	module := newTestModule()
	module.Store.SetLockTimeout(time.Minute)
	release, err := module.Store.LockEntity(context.Background(), "lm-1")
	if err != nil {
		t.Fatalf("lock entity: %v", err)
	}
	defer release()

	server := New(module, nil, nil, slog.Default(), ":0")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := voteRequest(http.MethodPost, "/api/v1/landmarks/lm-1/vote", "member-1", `{"choice":"yes"}`).WithContext(ctx)
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := decodeError(t, rr); payload.ErrorKind != "TransactionConflict" {
		t.Fatalf("unexpected error kind: %s", payload.ErrorKind)
	}
}

func TestRegisterEntityThenVote(t *testing.T) {
	server := newTestServer()

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, voteRequest(http.MethodPost, "/api/v1/landmarks", "member-1", `{"id":"lm-7","title":"Clock tower"}`))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var created verificationhttp.RegisterEntityResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("invalid json response: %v", err)
	}
	if !created.Success || !created.Created || created.Entity.Status != "pending" || created.Entity.CreatedBy != "member-1" {
		t.Fatalf("unexpected registration response: %+v", created)
	}

	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, voteRequest(http.MethodPost, "/api/v1/landmarks", "member-1", `{"id":"lm-7","title":"Clock tower"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for replay, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, voteRequest(http.MethodPost, "/api/v1/landmarks/lm-7/vote", "leader-1", `{"choice":"yes"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected vote on registered landmark to succeed, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, voteRequest(http.MethodPost, "/api/v1/landmarks/lm-7/vote", "member-1", `{"choice":"yes"}`))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected submitter self vote to be forbidden, got %d", rr.Code)
	}
}

func TestRegisterEntityErrors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		userID   string
		body     string
		wantCode int
		wantKind string
	}{
		{"missing submitter", "/api/v1/routes", "", `{"id":"rt-9"}`, http.StatusUnauthorized, "Unauthorized"},
		{"bad json", "/api/v1/routes", "member-1", `{`, http.StatusBadRequest, "InvalidRequest"},
		{"missing id", "/api/v1/routes", "member-1", `{"title":"Ridge path"}`, http.StatusBadRequest, "InvalidRequest"},
		{"id taken by other submitter", "/api/v1/routes", "member-1", `{"id":"rt-1","title":"Ridge path"}`, http.StatusConflict, "EntityConflict"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer()
			rr := httptest.NewRecorder()
			server.mux.ServeHTTP(rr, voteRequest(http.MethodPost, tt.path, tt.userID, tt.body))

			if rr.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d body=%s", tt.wantCode, rr.Code, rr.Body.String())
			}
			if payload := decodeError(t, rr); payload.ErrorKind != tt.wantKind {
				t.Fatalf("expected kind %s, got %s", tt.wantKind, payload.ErrorKind)
			}
		})
	}
}

func TestVoteRateLimitedPerVoter(t *testing.T) {
	clock := clockwork.NewFakeClock()
	server := New(newTestModule(), NewVoterLimiter(1, 1, clock), nil, slog.Default(), ":0")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, voteRequest(http.MethodPost, "/api/v1/landmarks/lm-1/vote", "member-1", `{"choice":"yes"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, voteRequest(http.MethodPost, "/api/v1/landmarks/lm-1/vote", "member-1", `{"choice":"no"}`))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, voteRequest(http.MethodPost, "/api/v1/landmarks/lm-1/vote", "leader-1", `{"choice":"yes"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected other voters to pass, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestGetAndListEntities(t *testing.T) {
	server := newTestServer()
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, voteRequest(http.MethodPost, "/api/v1/routes/rt-1/vote", "member-1", `{"choice":"no"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/routes/rt-1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var entity verificationhttp.EntityResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &entity); err != nil {
		t.Fatalf("invalid json response: %v", err)
	}
	if entity.VoteCount != 1 || len(entity.Votes) != 1 || entity.Votes[0].Choice != "no" {
		t.Fatalf("unexpected entity: %+v", entity)
	}

	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/landmarks/rt-1", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for kind mismatch, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/landmarks?status=pending&limit=10", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var list verificationhttp.ListEntitiesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("invalid json response: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].EntityID != "lm-1" {
		t.Fatalf("unexpected listing: %+v", list.Items)
	}

	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/landmarks?status=archived", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/landmarks?limit=ten", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rr.Code)
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	server := newTestServer()

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics, got %d", rr.Code)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("go_goroutines")) {
		t.Fatalf("expected runtime collectors in metrics output")
	}
}
