package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/verisure-ledger-simulator/internal/auth"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/config"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/events"
	httpopenapi "github.com/fairyhunter13/verisure-ledger-simulator/internal/http/openapi"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/model"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/obs"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/queue"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/store"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/verify"
)

// App carries the dependencies of the HTTP handlers.
type App struct {
	Cfg      config.Config
	Store    *store.Store
	Verifier *verify.Verifier
	Sessions *auth.Manager
	Manager  *queue.Manager
	Feed     *events.Feed
	Metrics  *obs.Metrics
	closing  atomic.Bool
	started  time.Time
}

func NewApp(cfg config.Config, st *store.Store, v *verify.Verifier, sessions *auth.Manager, m *queue.Manager, feed *events.Feed, metrics *obs.Metrics) *App {
	return &App{
		Cfg:      cfg,
		Store:    st,
		Verifier: v,
		Sessions: sessions,
		Manager:  m,
		Feed:     feed,
		Metrics:  metrics,
		started:  time.Now(),
	}
}

// StartShutdown refuses further ledger mutations and closes event intake.
func (a *App) StartShutdown() {
	a.closing.Store(true)
	a.Manager.CloseIntake()
}

// productID accepts a JSON number or a numeric string. null and "" decode to 0,
// which the ledger treats as missing.
type productID int64

func (p *productID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*p = 0
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*p = 0
			return nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s", model.ErrInvalidInput, s)
	}
	*p = productID(n)
	return nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success  bool       `json:"success"`
	Username string     `json:"username"`
	Role     model.Role `json:"role"`
	Message  string     `json:"message"`
	Token    string     `json:"token"`
}

type addRequest struct {
	ID   productID `json:"id"`
	Name string    `json:"name"`
}

type addResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	QRDataURL string `json:"qrDataUrl"`
	QRHash    string `json:"qrHash"`
}

type markFakeRequest struct {
	ID productID `json:"id"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody decodes a JSON request body into v, writing the error response
// itself and returning false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		WriteJSONError(w, http.StatusUnsupportedMediaType, "Expected application/json.", "unsupported_media_type")
		return false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		if errors.Is(err, model.ErrInvalidInput) {
			writeDomainError(w, err, "")
			return false
		}
		WriteJSONError(w, http.StatusBadRequest, "Malformed JSON body.", "invalid_json")
		return false
	}
	return true
}

func (a *App) refuseWhileClosing(w http.ResponseWriter) bool {
	if a.closing.Load() {
		WriteJSONError(w, http.StatusServiceUnavailable, "Service is shutting down.", "shutting_down")
		return true
	}
	return false
}

func (a *App) observeMutation(op string, err error) {
	if a.Metrics != nil {
		a.Metrics.LedgerMutations.WithLabelValues(op, outcome(err)).Inc()
	}
}

func (a *App) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess, token, err := a.Sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		obs.Logger.Error("login_failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		WriteJSONError(w, http.StatusInternalServerError, "Could not create session.", "session_store")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	id := sess.Identity
	writeJSON(w, http.StatusOK, loginResponse{
		Success:  true,
		Username: id.Username,
		Role:     id.Role,
		Message:  fmt.Sprintf("Logged in as %s (%s).", id.Username, id.Role),
		Token:    token,
	})
}

func (a *App) logoutHandler(w http.ResponseWriter, r *http.Request) {
	if tok := tokenFromContext(r.Context()); tok != "" {
		if err := a.Sessions.Logout(r.Context(), tok); err != nil {
			obs.Logger.Warn("logout_failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		}
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Logged out."})
}

func (a *App) currentUserHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "No user logged in."})
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func (a *App) listProductsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Store.All())
}

func (a *App) addProductHandler(w http.ResponseWriter, r *http.Request) {
	if a.refuseWhileClosing(w) {
		return
	}
	var req addRequest
	if !decodeBody(w, r, &req) {
		return
	}
	who, _ := IdentityFromContext(r.Context())
	p, dataURL, err := a.Store.Add(r.Context(), who, int64(req.ID), req.Name)
	a.observeMutation("add", err)
	if err != nil {
		msg := ""
		if errors.Is(err, model.ErrMissingField) {
			msg = "Product ID and name are required."
		}
		writeDomainError(w, err, msg)
		return
	}
	writeJSON(w, http.StatusOK, addResponse{
		Success:   true,
		Message:   "Product added successfully (simulated).",
		QRDataURL: dataURL,
		QRHash:    p.QRHash,
	})
}

func (a *App) markFakeHandler(w http.ResponseWriter, r *http.Request) {
	if a.refuseWhileClosing(w) {
		return
	}
	var req markFakeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	who, _ := IdentityFromContext(r.Context())
	err := a.Store.MarkFake(r.Context(), who, int64(req.ID))
	a.observeMutation("mark_fake", err)
	if err != nil {
		msg := ""
		switch {
		case errors.Is(err, model.ErrMissingField):
			msg = "Product ID is required."
		case errors.Is(err, model.ErrNotFound):
			msg = "Product does not exist."
		}
		writeDomainError(w, err, msg)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{
		Success: true,
		Message: fmt.Sprintf("Product ID %d marked as fake (simulated).", req.ID),
	})
}

func (a *App) checkProductHandler(w http.ResponseWriter, r *http.Request) {
	res, err := a.Verifier.Check(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *App) verifyQRHandler(w http.ResponseWriter, r *http.Request) {
	res, err := a.Verifier.CheckQR(r.URL.Query().Get("qr"))
	if err != nil {
		msg := ""
		if errors.Is(err, model.ErrMissingField) {
			msg = "QR payload is required."
		}
		writeDomainError(w, err, msg)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *App) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Store.Stats())
}

func (a *App) activityHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteJSONError(w, http.StatusBadRequest, "limit must be a positive integer.", "invalid_input")
			return
		}
		limit = n
	}
	out := []model.Event{}
	if a.Feed != nil {
		out = append(out, a.Feed.Recent(limit)...)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) indexHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":  "verisure-ledger",
		"message":  "VeriBlock Backend is running!",
		"owner":    a.Cfg.LedgerOwner,
		"products": a.Store.Len(),
	})
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if a.closing.Load() {
		status = "shutting_down"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (a *App) metricsHandler(w http.ResponseWriter, r *http.Request) {
	enq, proc, backlog, depth := a.Manager.QueueMetrics()
	st := a.Store.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"events_enqueued":   enq,
		"events_processed":  proc,
		"events_dropped":    a.Manager.Dropped(),
		"delivery_failures": a.Manager.DeliveryFailures(),
		"last_sequence":     a.Manager.LastSequence(),
		"backlog_size":      backlog,
		"queue_depth":       depth,
		"worker_count":      a.Manager.WorkerCount(),
		"products_total":    st.Total,
		"products_fake":     st.Fake,
		"uptime_sec":        time.Since(a.started).Seconds(),
	})
}

func (a *App) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(httpopenapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>VeriSure Ledger API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`
	_, _ = w.Write([]byte(html))
}
