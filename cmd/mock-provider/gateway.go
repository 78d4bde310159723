package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/settlement/internal/provider"
)

// Amounts with this cent suffix are declined, so local runs can exercise the
// failure path.
const declineSuffix = ".13"

type session struct {
	Request   provider.SessionRequest `json:"request"`
	Reference string                  `json:"reference"`
	Status    string                  `json:"status"`
}

// gateway imitates a redirect gateway: it opens a session and reports the
// outcome to the session's callback URL after a delay.
type gateway struct {
	publicURL string
	secret    string
	delay     time.Duration
	client    *http.Client

	mu        sync.Mutex
	sessions  map[string]*session
	byPayment map[string]string
	wg        sync.WaitGroup
}

func newGateway(publicURL, secret string, delay time.Duration) *gateway {
	return &gateway{
		publicURL: strings.TrimRight(publicURL, "/"),
		secret:    secret,
		delay:     delay,
		client:    &http.Client{Timeout: 10 * time.Second},
		sessions:  make(map[string]*session),
		byPayment: make(map[string]string),
	}
}

func (g *gateway) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", g.health)
	mux.HandleFunc("POST /sessions", g.createSession)
	mux.HandleFunc("GET /pay/{reference}", g.getSession)
	return mux
}

func (g *gateway) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *gateway) createSession(w http.ResponseWriter, r *http.Request) {
	var req provider.SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.PaymentID == "" || req.CallbackURL == "" || req.Amount == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payment_id, amount and callback_url are required"})
		return
	}

	// Sessions are keyed on the payment id, so a retried request gets the
	// session the first call opened.
	g.mu.Lock()
	if ref, ok := g.byPayment[req.PaymentID]; ok {
		g.mu.Unlock()
		slog.Info("session replayed", "reference", ref, "payment_id", req.PaymentID)
		writeJSON(w, http.StatusCreated, provider.SessionResponse{
			Reference:   ref,
			RedirectURL: g.publicURL + "/pay/" + ref,
		})
		return
	}
	ref := fmt.Sprintf("%s_%s", gatewayPrefix(req.Gateway), strings.ReplaceAll(uuid.NewString(), "-", ""))
	s := &session{Request: req, Reference: ref, Status: "pending"}
	g.sessions[ref] = s
	g.byPayment[req.PaymentID] = ref
	g.mu.Unlock()

	slog.Info("session created",
		"reference", ref,
		"gateway", req.Gateway,
		"order_code", req.OrderCode,
		"amount", req.Amount,
	)

	g.wg.Add(1)
	time.AfterFunc(g.delay, func() {
		defer g.wg.Done()
		g.settle(context.Background(), s)
	})

	writeJSON(w, http.StatusCreated, provider.SessionResponse{
		Reference:   ref,
		RedirectURL: g.publicURL + "/pay/" + ref,
	})
}

func (g *gateway) getSession(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	s, ok := g.sessions[r.PathValue("reference")]
	var snapshot session
	if ok {
		snapshot = *s
	}
	g.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (g *gateway) settle(ctx context.Context, s *session) {
	wh := outcomeFor(s.Reference, s.Request.Amount)
	log := slog.With("reference", s.Reference, "status", wh.Status)

	g.mu.Lock()
	s.Status = wh.Status
	g.mu.Unlock()

	body, err := json.Marshal(wh)
	if err != nil {
		log.Error("failed to marshal webhook", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Request.CallbackURL, bytes.NewReader(body))
	if err != nil {
		log.Error("failed to build webhook request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(provider.SignatureHeader, provider.Sign(g.secret, body))

	resp, err := g.client.Do(req)
	if err != nil {
		log.Error("webhook delivery failed", "error", err)
		return
	}
	defer resp.Body.Close()

	log.Info("webhook delivered", "http_status", resp.StatusCode)
}

// wait blocks until every scheduled webhook has been sent.
func (g *gateway) wait() {
	g.wg.Wait()
}

func outcomeFor(reference, amount string) provider.SandboxWebhook {
	if strings.HasSuffix(amount, declineSuffix) {
		return provider.SandboxWebhook{Reference: reference, Status: "failed", Reason: "insufficient_funds"}
	}
	return provider.SandboxWebhook{Reference: reference, Status: "succeeded"}
}

func gatewayPrefix(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "mock"
	}
	return name
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
