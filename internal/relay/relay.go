// Package relay forwards generation and health requests to the image backend
// and turns its answers into the relay's stable result shapes.
package relay

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"syscall"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/gaspardpetit/imgrelay/internal/backend"
	"github.com/gaspardpetit/imgrelay/internal/endpoint"
	"github.com/gaspardpetit/imgrelay/internal/logx"
	"github.com/gaspardpetit/imgrelay/internal/metrics"
)

// StatusHealthy is the relay's own label in health reports. It does not
// describe the backend.
const StatusHealthy = "healthy"

var (
	ErrTimeout      = errors.New("backend timeout")
	ErrUnreachable  = errors.New("backend unreachable")
	ErrMissingImage = errors.New(`backend response has no "image" field`)
)

// BackendError reports a non-200 answer from the backend.
type BackendError struct {
	StatusCode int
	Detail     string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("Backend error: %d - %s", e.StatusCode, e.Detail)
}

// UnreachableError reports a connection failure against URL.
type UnreachableError struct {
	URL string
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("connect to backend %s: %v", e.URL, e.Err)
}

func (e *UnreachableError) Unwrap() []error { return []error{ErrUnreachable, e.Err} }

// Backend is the outbound side of the relay.
type Backend interface {
	Generate(ctx context.Context, baseURL string, payload []byte) (*backend.Response, error)
	Health(ctx context.Context, baseURL string) (*backend.Response, error)
}

// GenerateRequest is an inbound generation request. Fields are kept as the
// caller sent them; the backend owns validation. A nil field was absent.
type GenerateRequest struct {
	Model  json.RawMessage
	Lora   json.RawMessage
	Prompt json.RawMessage
	Seed   json.RawMessage
}

// NewGenerateRequest picks the generation fields out of a decoded JSON
// object. Keys match exactly; "Model" or "SEED" count as absent.
func NewGenerateRequest(fields map[string]json.RawMessage) GenerateRequest {
	return GenerateRequest{
		Model:  fields["model"],
		Lora:   fields["lora"],
		Prompt: fields["prompt"],
		Seed:   fields["seed"],
	}
}

type generatePayload struct {
	Model  json.RawMessage `json:"model"`
	Lora   json.RawMessage `json:"lora"`
	Prompt json.RawMessage `json:"prompt"`
	Seed   json.RawMessage `json:"seed"`
}

// Payload encodes the body forwarded to the backend: exactly model, lora,
// prompt and seed, with absent fields as null and an absent seed as 0.
func (r GenerateRequest) Payload() ([]byte, error) {
	seed := r.Seed
	if seed == nil {
		seed = json.RawMessage("0")
	}
	return json.Marshal(generatePayload{Model: r.Model, Lora: r.Lora, Prompt: r.Prompt, Seed: seed})
}

// GenerateResult is a successful generation.
type GenerateResult struct {
	Success bool            `json:"success"`
	Image   json.RawMessage `json:"image"`
	Seed    json.RawMessage `json:"seed"`
}

// HealthStatus is the outcome of a backend probe.
type HealthStatus struct {
	Status           string          `json:"status"`
	BackendConnected bool            `json:"backend_connected"`
	BackendURL       string          `json:"backend_url"`
	BackendInfo      json.RawMessage `json:"backend_info"`
}

// Service implements the relay operations on top of a backend client and the
// shared backend URL cell.
type Service struct {
	backend  Backend
	endpoint endpoint.Store
}

// NewService returns a Service using b for outbound calls and ep as the backend URL cell.
func NewService(b Backend, ep endpoint.Store) *Service {
	return &Service{backend: b, endpoint: ep}
}

// BackendURL returns the current backend URL.
func (s *Service) BackendURL(ctx context.Context) string {
	return s.endpoint.Load(ctx)
}

// Generate forwards req to {BackendURL}/generate. Errors are one of
// *BackendError, ErrTimeout, *UnreachableError or an internal fault.
// The outbound call is not cancelled when ctx is; only the client timeout
// bounds it.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (res *GenerateResult, err error) {
	start := time.Now()
	log := requestLogger(ctx)
	defer func() {
		metrics.ObserveGeneration(Outcome(err), time.Since(start))
	}()

	baseURL := s.endpoint.Load(ctx)
	payload, err := req.Payload()
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	log.Info().Str("url", baseURL+"/generate").RawJSON("payload", payload).Msg("forward generation")

	resp, err := s.backend.Generate(context.WithoutCancel(ctx), baseURL, payload)
	if err != nil {
		err = classify(err, baseURL)
		logFailure(log, err)
		return nil, err
	}
	log.Info().Int("status", resp.StatusCode).Msg("backend response")

	if resp.StatusCode != http.StatusOK {
		err = &BackendError{StatusCode: resp.StatusCode, Detail: describeBody(resp.Body)}
		log.Error().Err(err).Msg("backend error")
		return nil, err
	}

	res, err = decodeResult(resp.Body, req.Seed)
	if err != nil {
		logFailure(log, err)
		return nil, err
	}
	return res, nil
}

func decodeResult(body []byte, requestSeed json.RawMessage) (*GenerateResult, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("decode backend response: %w", err)
	}
	image, ok := fields["image"]
	if !ok {
		return nil, ErrMissingImage
	}
	seed, ok := fields["seed"]
	if !ok {
		seed = requestSeed
	}
	return &GenerateResult{Success: true, Image: image, Seed: seed}, nil
}

// CheckHealth probes {BackendURL}/health. It never fails: any fault is
// reported as a disconnected backend.
func (s *Service) CheckHealth(ctx context.Context) HealthStatus {
	log := requestLogger(ctx)
	baseURL := s.endpoint.Load(ctx)
	st := HealthStatus{Status: StatusHealthy, BackendURL: baseURL}

	resp, err := s.backend.Health(context.WithoutCancel(ctx), baseURL)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("url", baseURL).Msg("backend health check failed")
	case resp.StatusCode != http.StatusOK:
		log.Warn().Int("status", resp.StatusCode).Str("url", baseURL).Msg("backend health check failed")
	case !json.Valid(resp.Body):
		log.Warn().Str("url", baseURL).Msg("backend health check returned malformed body")
	default:
		st.BackendConnected = true
		st.BackendInfo = resp.Body
	}
	ev := log.Info().Bool("connected", st.BackendConnected)
	if st.BackendInfo != nil {
		ev = ev.RawJSON("info", st.BackendInfo)
	}
	ev.Msg("backend health check")
	metrics.RecordHealthCheck(st.BackendConnected)
	return st
}

// UpdateBackendURL normalizes raw and stores it as the new backend URL.
// The URL is not checked for reachability.
func (s *Service) UpdateBackendURL(ctx context.Context, raw string) (string, error) {
	u, err := endpoint.Normalize(raw)
	if err != nil {
		return "", err
	}
	prev := s.endpoint.Load(ctx)
	if err := s.endpoint.Store(ctx, u); err != nil {
		return "", err
	}
	log := requestLogger(ctx)
	log.Info().Str("previous", prev).Str("backend_url", u).Msg("backend url updated")
	metrics.RecordBackendURLUpdate()
	return u, nil
}

// Outcome labels err for metrics.
func Outcome(err error) string {
	var be *BackendError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &be):
		return "backend_error"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	default:
		return "internal"
	}
}

func classify(err error, baseURL string) error {
	switch {
	case isTimeout(err):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case isConnectionFailure(err):
		return &UnreachableError{URL: baseURL, Err: err}
	default:
		return err
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// isConnectionFailure reports transport faults: refused or reset connections,
// DNS failures, dropped connections and TLS handshake failures, including an
// https URL pointing at a plain HTTP server.
func isConnectionFailure(err error) bool {
	var (
		opErr    *net.OpError
		dnsErr   *net.DNSError
		certErr  *tls.CertificateVerificationError
		authErr  x509.UnknownAuthorityError
		hostErr  x509.HostnameError
		recordEr tls.RecordHeaderError
	)
	return errors.As(err, &opErr) ||
		errors.As(err, &dnsErr) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.As(err, &certErr) ||
		errors.As(err, &authErr) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &recordEr) ||
		errors.Is(err, http.ErrSchemeMismatch)
}

func logFailure(log zerolog.Logger, err error) {
	switch Outcome(err) {
	case "timeout":
		log.Error().Err(err).Msg("backend request timed out")
	case "unreachable":
		log.Error().Err(err).Msg("backend connection failed")
	default:
		log.Error().Err(err).Str("stack", string(debug.Stack())).Msg("generation failed")
	}
}

type generationIDKey struct{}

// WithGenerationID tags ctx with a generation id used in log lines.
func WithGenerationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, generationIDKey{}, id)
}

// GenerationID returns the generation id stored in ctx, if any.
func GenerationID(ctx context.Context) string {
	id, _ := ctx.Value(generationIDKey{}).(string)
	return id
}

func requestLogger(ctx context.Context) zerolog.Logger {
	lc := logx.Log.With()
	if id := chiMiddleware.GetReqID(ctx); id != "" {
		lc = lc.Str("request_id", id)
	}
	if id := GenerationID(ctx); id != "" {
		lc = lc.Str("generation_id", id)
	}
	return lc.Logger()
}
