package gateway_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aerugo/simcash/internal/clock"
	"github.com/aerugo/simcash/internal/domain"
	"github.com/aerugo/simcash/internal/gateway"
	"github.com/aerugo/simcash/internal/orchestrator"
	"github.com/aerugo/simcash/internal/policytree"
	"github.com/aerugo/simcash/internal/simconfig"
	"github.com/aerugo/simcash/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	tree := &policytree.Tree{Type: policytree.PaymentTree, Root: policytree.Act(policytree.ActionRelease)}
	cfg := simconfig.Config{
		TicksPerDay: 10,
		NumDays:     1,
		Mode:        "stochastic",
		Agents: []simconfig.AgentConfig{
			{ID: "A", OpeningBalance: 1000, PaymentTreeFile: "a.json"},
			{ID: "B", OpeningBalance: 0, PaymentTreeFile: "b.json"},
		},
		LSM: simconfig.LSMConfig{Enabled: true, MaxCycleLength: 2, MaxCyclesPerTick: 5, MaxIterations: 100},
	}
	trees := map[domain.AgentID]clock.Trees{"A": {Payment: tree}, "B": {Payment: tree}}
	o, err := orchestrator.New(cfg, trees, policytree.ScenarioConstraints{}, nil, nil, nil)
	require.NoError(t, err)
	return o
}

func adminToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_type": "admin",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func testConfig() gateway.Config {
	cfg := gateway.LoadConfig()
	cfg.JWT.Secret = "test-secret"
	return cfg
}

func TestHealthEndpoint(t *testing.T) {
	srv := gateway.NewServer(testConfig(), testOrchestrator(t), nil, logger.NewNop())
	ts := httptest.NewServer(srv.WithMiddleware(srv.Router()))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAgentBalanceEndpoint(t *testing.T) {
	srv := gateway.NewServer(testConfig(), testOrchestrator(t), nil, logger.NewNop())
	ts := httptest.NewServer(srv.WithMiddleware(srv.Router()))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/agents/A/balance")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminTick_RequiresAdminToken(t *testing.T) {
	srv := gateway.NewServer(testConfig(), testOrchestrator(t), nil, logger.NewNop())
	ts := httptest.NewServer(srv.WithMiddleware(srv.Router()))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/admin/tick", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAdminTick_SucceedsWithAdminToken(t *testing.T) {
	cfg := testConfig()
	srv := gateway.NewServer(cfg, testOrchestrator(t), nil, logger.NewNop())
	ts := httptest.NewServer(srv.WithMiddleware(srv.Router()))
	defer ts.Close()

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/admin/tick", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, cfg.JWT.Secret))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
