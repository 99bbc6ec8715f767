package routes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Dosada05/tournament-progression/handlers"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "routes-test-secret"

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func newRouter(db Pinger) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := chi.NewRouter()
	// сервисы не нужны: проверяется только то, что отсекается до обработчиков
	SetupRoutes(router, Handlers{
		Tournament:  handlers.NewTournamentHandler(nil, nil),
		Participant: handlers.NewParticipantHandler(nil),
		Match:       handlers.NewMatchHandler(nil),
		Assessment:  handlers.NewAssessmentHandler(nil),
		Progress:    handlers.NewProgressHandler(nil),
		Dashboard:   handlers.NewDashboardHandler(nil),
		WebSocket:   handlers.NewWebSocketHandler(nil, nil, logger),
	}, Options{
		JWTSecret:   secret,
		CORSOrigins: []string{"*"},
		DB:          db,
		Logger:      logger,
	})
	return router
}

func bearer(t *testing.T, userID int, role string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return "Bearer " + token
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(pinger{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	newRouter(pinger{err: errors.New("down")}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSwaggerDoc(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "2.0", doc["swagger"])
	assert.Contains(t, doc["paths"], "/tournaments/{tournamentID}/rewards/distribute")
}

func TestMetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRoleGuards(t *testing.T) {
	router := newRouter(nil)
	tests := []struct {
		name   string
		method string
		path   string
		role   string
		status int
	}{
		{"no token", http.MethodGet, "/api/v1/tournaments/1", "", http.StatusUnauthorized},
		{"participant creates tournament", http.MethodPost, "/api/v1/tournaments", "participant", http.StatusForbidden},
		{"participant starts tournament", http.MethodPost, "/api/v1/tournaments/1/start", "participant", http.StatusForbidden},
		{"organizer distributes rewards", http.MethodPost, "/api/v1/tournaments/1/rewards/distribute", "organizer", http.StatusForbidden},
		{"instructor corrects results", http.MethodPut, "/api/v1/sessions/1/results", "instructor", http.StatusForbidden},
		{"organizer creates assessment", http.MethodPost, "/api/v1/licenses/1/assessments", "organizer", http.StatusForbidden},
		{"instructor updates level", http.MethodPut, "/api/v1/progress/1/PLAYER/level", "instructor", http.StatusForbidden},
		{"organizer reads consistency", http.MethodGet, "/api/v1/consistency/1/PLAYER", "organizer", http.StatusForbidden},
		// пропущены авторизацией, тело пустое
		{"organizer corrects results", http.MethodPut, "/api/v1/sessions/1/results", "organizer", http.StatusBadRequest},
		{"admin updates level", http.MethodPut, "/api/v1/progress/1/PLAYER/level", "admin", http.StatusBadRequest},
		{"no token on user socket", http.MethodGet, "/ws/users/1", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.role != "" {
				req.Header.Set("Authorization", bearer(t, 1, tt.role))
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
