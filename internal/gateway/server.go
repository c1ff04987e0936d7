package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/aerugo/simcash/internal/domain"
	"github.com/aerugo/simcash/internal/orchestrator"
	"github.com/aerugo/simcash/pkg/logger"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is a thin, read-mostly HTTP facade over one in-process
// Orchestrator. HTTP handlers run concurrently, so every access to the
// orchestrator is serialized behind mu — the kernel's own tick loop stays
// single-threaded, the concurrency lives entirely at this layer.
type Server struct {
	mu    sync.Mutex
	orch  *orchestrator.Orchestrator
	cfg   Config
	redis *redis.Client
	limit *rateLimiter
	sched *scheduler
	log   logger.Logger
	zlog  zerolog.Logger
}

// NewServer wires an orchestrator, a Redis client (may be nil, which
// disables rate limiting and checkpoint caching), and the logging the
// gateway reports through.
func NewServer(cfg Config, orch *orchestrator.Orchestrator, redisClient *redis.Client, appLog logger.Logger) *Server {
	zlog := zerolog.New(os.Stdout).With().Timestamp().Str("service", "simcash-gateway").Logger()
	return &Server{
		orch:  orch,
		cfg:   cfg,
		redis: redisClient,
		limit: newRateLimiter(redisClient, 120, time.Minute),
		sched: newScheduler(zlog),
		log:   appLog,
		zlog:  zlog,
	}
}

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/agents/{id}/balance", s.handleAgentBalance).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/agents/{id}/unsecured-cap", s.handleAgentUnsecuredCap).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/queue/rtgs", s.handleRTGSQueue).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/agents/{id}/queue", s.handleAgentQueue).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/transactions/{id}", s.handleTransactionDetails).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/transactions/overdue", s.handleOverdueTransactions).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/transactions/near-deadline", s.handleNearDeadlineTransactions).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/policy/schema", s.handlePolicySchema).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/ws/events", s.handleEventStream).Methods(http.MethodGet)

	r.HandleFunc("/api/v1/admin/tick", requireAdmin(s.cfg.JWT.Secret, s.handleAdminTick)).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/admin/transactions", requireAdmin(s.cfg.JWT.Secret, s.handleAdminSubmit)).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/admin/transactions/{id}/withdraw", requireAdmin(s.cfg.JWT.Secret, s.handleAdminWithdraw)).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/admin/transactions/{id}/resubmit", requireAdmin(s.cfg.JWT.Secret, s.handleAdminResubmit)).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/admin/checkpoint", requireAdmin(s.cfg.JWT.Secret, s.handleAdminCheckpoint)).Methods(http.MethodPost)

	return r
}

// WithMiddleware returns the fully wrapped handler (rate limiting, access
// logging) around Router()'s route table. Kept separate from Router so
// tests can exercise routes without the rate limiter's Redis dependency.
func (s *Server) WithMiddleware(r *mux.Router) http.Handler {
	var h http.Handler = r
	h = s.limit.limitHandler(h)
	h = accessLog(s.zlog, h)
	return h
}

// StartScheduler registers the periodic checkpoint export job and starts
// the cron scheduler.
func (s *Server) StartScheduler() error {
	if err := s.sched.addJob(s.cfg.Checkpoint.CronSpec, &checkpointJob{srv: s}); err != nil {
		return fmt.Errorf("registering checkpoint job: %w", err)
	}
	s.sched.start()
	return nil
}

// StopScheduler stops the cron scheduler, blocking until in-flight jobs
// finish.
func (s *Server) StopScheduler() { s.sched.stop() }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "simcash-gateway"})
}

func (s *Server) handleAgentBalance(w http.ResponseWriter, r *http.Request) {
	id := domain.AgentID(mux.Vars(r)["id"])
	s.mu.Lock()
	bal, err := s.orch.GetAgentBalance(id)
	s.mu.Unlock()
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id":        id,
		"balance_cents":   int64(bal),
		"balance_dollars": decimal.New(int64(bal), -2).StringFixed(2),
	})
}

func (s *Server) handleAgentUnsecuredCap(w http.ResponseWriter, r *http.Request) {
	id := domain.AgentID(mux.Vars(r)["id"])
	s.mu.Lock()
	capCents, err := s.orch.GetAgentUnsecuredCap(id)
	s.mu.Unlock()
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"agent_id": id, "unsecured_cap_cents": int64(capCents)})
}

func (s *Server) handleRTGSQueue(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ids := s.orch.GetRTGSQueueContents()
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, map[string]interface{}{"queue": ids})
}

func (s *Server) handleAgentQueue(w http.ResponseWriter, r *http.Request) {
	id := domain.AgentID(mux.Vars(r)["id"])
	s.mu.Lock()
	size := s.orch.GetQueue1Size(id)
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, map[string]interface{}{"agent_id": id, "queue1_size": size})
}

func (s *Server) handleTransactionDetails(w http.ResponseWriter, r *http.Request) {
	id := domain.TxID(mux.Vars(r)["id"])
	s.mu.Lock()
	tx, ok := s.orch.GetTransactionDetails(id)
	s.mu.Unlock()
	if !ok {
		respondError(w, http.StatusNotFound, "transaction not found")
		return
	}
	respondJSON(w, http.StatusOK, tx)
}

func (s *Server) handleOverdueTransactions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	txs := s.orch.GetOverdueTransactions()
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs})
}

func (s *Server) handleNearDeadlineTransactions(w http.ResponseWriter, r *http.Request) {
	within := int64(1)
	if v := r.URL.Query().Get("within"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			within = n
		}
	}
	s.mu.Lock()
	txs := s.orch.GetTransactionsNearDeadline(within)
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs, "within_ticks": within})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	m := s.orch.GetSystemMetrics()
	tick := s.orch.CurrentTick()
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"current_tick":      tick,
		"total_arrivals":    m.TotalArrivals,
		"total_settlements": m.TotalSettlements,
		"total_lsm":         m.TotalLSMReleases,
		"settlement_rate":   m.SettlementRate,
	})
}

func (s *Server) handlePolicySchema(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	schema := s.orch.GetPolicySchema()
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, schema)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v := r.URL.Query().Get("tick"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid tick")
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"events": s.orch.GetTickEvents(domain.Tick(n))})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"events": s.orch.GetAllEvents()})
}

// eventChannel is the Redis pub/sub channel tick results fan out on, so
// every gateway replica's websocket clients see the same event stream
// regardless of which replica actually drove the tick.
const eventChannel = "simcash:events"

// handleEventStream upgrades to a websocket and streams fresh events as
// they arrive. With Redis configured it subscribes to eventChannel, the
// fan-out point every replica's admin-tick handler publishes to; without
// Redis it falls back to polling the local event log on a ticker, the way
// the teacher's forex websocket handler pushes on a ticker rather than
// blocking on a channel.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close()

	if s.redis != nil {
		s.streamFromRedis(r.Context(), conn)
		return
	}
	s.streamFromLocalLog(r.Context(), conn)
}

func (s *Server) streamFromRedis(ctx context.Context, conn *websocket.Conn) {
	sub := s.redis.Subscribe(ctx, eventChannel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) streamFromLocalLog(ctx context.Context, conn *websocket.Conn) {
	s.mu.Lock()
	lastLen := len(s.orch.GetAllEvents())
	s.mu.Unlock()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			all := s.orch.GetAllEvents()
			s.mu.Unlock()
			if len(all) <= lastLen {
				continue
			}
			fresh := all[lastLen:]
			lastLen = len(all)
			if err := conn.WriteJSON(map[string]interface{}{"type": "events", "events": fresh}); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) handleAdminTick(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	result := s.orch.Tick()
	s.mu.Unlock()

	if s.redis != nil && len(result.Events) > 0 {
		if payload, err := json.Marshal(map[string]interface{}{"type": "events", "tick": result.Tick, "events": result.Events}); err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := s.redis.Publish(ctx, eventChannel, payload).Err(); err != nil {
				s.log.Warn("publishing tick events to redis failed", map[string]interface{}{"error": err.Error()})
			}
			cancel()
		}
	}

	respondJSON(w, http.StatusOK, result)
}

type submitRequest struct {
	Sender    domain.AgentID `json:"sender"`
	Receiver  domain.AgentID `json:"receiver"`
	Amount    domain.Cents   `json:"amount_cents"`
	Deadline  domain.Tick    `json:"deadline"`
	Priority  int            `json:"priority"`
	Divisible bool           `json:"divisible"`
}

func (s *Server) handleAdminSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	id, err := s.orch.SubmitTransaction(req.Sender, req.Receiver, req.Amount, req.Deadline, req.Priority, req.Divisible)
	s.mu.Unlock()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{"transaction_id": id})
}

func (s *Server) handleAdminWithdraw(w http.ResponseWriter, r *http.Request) {
	id := domain.TxID(mux.Vars(r)["id"])
	s.mu.Lock()
	err := s.orch.WithdrawFromRtgs(id)
	s.mu.Unlock()
	if err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"transaction_id": id, "status": "withdrawn"})
}

type resubmitRequest struct {
	Priority int `json:"priority"`
}

func (s *Server) handleAdminResubmit(w http.ResponseWriter, r *http.Request) {
	id := domain.TxID(mux.Vars(r)["id"])
	var req resubmitRequest
	_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req)

	s.mu.Lock()
	err := s.orch.ResubmitToRtgs(id, req.Priority)
	s.mu.Unlock()
	if err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"transaction_id": id, "status": "resubmitted"})
}

func (s *Server) handleAdminCheckpoint(w http.ResponseWriter, r *http.Request) {
	if err := s.exportCheckpoint(); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"path": s.cfg.Checkpoint.ExportPath})
}

// exportCheckpoint serializes the live orchestrator state, writes it to
// the configured export path, and caches the latest snapshot in Redis
// under a well-known key so a cold-started gateway can warm-restore.
func (s *Server) exportCheckpoint() error {
	s.mu.Lock()
	data, err := s.orch.SaveState()
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	if err := os.WriteFile(s.cfg.Checkpoint.ExportPath, data, 0o644); err != nil {
		return fmt.Errorf("writing checkpoint file: %w", err)
	}
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.redis.Set(ctx, "simcash:checkpoint:latest", data, 0).Err(); err != nil {
			return fmt.Errorf("caching checkpoint in redis: %w", err)
		}
	}
	return nil
}
