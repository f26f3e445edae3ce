package handlers

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kyxap1/geolocator/internal/locator"
	"github.com/kyxap1/geolocator/internal/metrics"
	"github.com/kyxap1/geolocator/internal/types"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type format string

const (
	formatJSON format = "json"
	formatXML  format = "xml"
	formatCSV  format = "csv"
)

// APIHandler exposes the locator over HTTP
type APIHandler struct {
	locator locator.Locator
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error     string `json:"error" xml:"error"`
	Message   string `json:"message" xml:"message"`
	Timestamp string `json:"timestamp" xml:"timestamp"`
	Status    int    `json:"status" xml:"status"`
}

// xmlLocation wraps the record with a root element name
type xmlLocation struct {
	XMLName xml.Name `xml:"geolocation"`
	*types.GeoLocation
}

// NewAPIHandler creates a new API handler. m may be nil.
func NewAPIHandler(loc locator.Locator, logger *logrus.Logger, m *metrics.Metrics) *APIHandler {
	return &APIHandler{
		locator: loc,
		logger:  logger,
		metrics: m,
	}
}

// sendError writes a standardized error response in the requested format
func (h *APIHandler) sendError(w http.ResponseWriter, f format, statusCode int, errorMsg string) {
	errorResponse := ErrorResponse{
		Error:     http.StatusText(statusCode),
		Message:   errorMsg,
		Timestamp: time.Now().Format(time.RFC3339),
		Status:    statusCode,
	}

	switch f {
	case formatXML:
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(statusCode)
		_, _ = w.Write([]byte(xml.Header))
		_ = xml.NewEncoder(w).Encode(errorResponse)
	case formatCSV:
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, "Error: %s\nMessage: %s\nStatus: %d\nTimestamp: %s\n",
			errorResponse.Error, errorResponse.Message, errorResponse.Status, errorResponse.Timestamp)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(errorResponse)
	}
}

// getClientIP extracts the client IP from the request
func (h *APIHandler) getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP in the list
		if ips := strings.Split(xff, ","); len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// target returns the unescaped {target} path variable, falling back to the client IP
func (h *APIHandler) target(r *http.Request) (string, error) {
	raw, exists := mux.Vars(r)["target"]
	if !exists || raw == "" {
		return h.getClientIP(r), nil
	}

	target, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("invalid target %q: %w", raw, err)
	}
	if strings.TrimSpace(target) == "" {
		return "", fmt.Errorf("target must not be blank")
	}
	return target, nil
}

// errorStatus maps locator failures onto gateway errors with a caller-facing message
func errorStatus(err error) (int, string) {
	var transportErr *locator.TransportError
	var formatErr *locator.ResponseFormatError

	switch {
	case errors.As(err, &formatErr):
		return http.StatusBadGateway, "geolocation service returned an unexpected response"
	case errors.As(err, &transportErr):
		if transportErr.StatusCode != 0 {
			return http.StatusBadGateway, fmt.Sprintf("geolocation service responded with status %d", transportErr.StatusCode)
		}
		return http.StatusBadGateway, "geolocation service is unreachable"
	default:
		return http.StatusInternalServerError, "geolocation lookup failed"
	}
}

// lookupHandler resolves the request target and renders the record in format f
func (h *APIHandler) lookupHandler(f format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, err := h.target(r)
		if err != nil {
			h.sendError(w, f, http.StatusBadRequest, err.Error())
			return
		}

		loc, err := h.locator.Resolve(r.Context(), target)
		if err != nil {
			status, message := errorStatus(err)
			h.logger.WithError(err).WithField("target", target).Warn("Geolocation lookup failed")
			h.sendError(w, f, status, message)
			return
		}

		// A "fail" status is a valid answer and is passed through unchanged
		switch f {
		case formatXML:
			h.writeXML(w, f, loc)
		case formatCSV:
			h.writeCSV(w, f, loc)
		default:
			h.writeJSON(w, f, loc)
		}
	}
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, f format, loc *types.GeoLocation) {
	data, err := json.Marshal(loc)
	if err != nil {
		h.sendError(w, f, http.StatusInternalServerError, "Failed to encode JSON response")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(append(data, '\n'))
}

func (h *APIHandler) writeXML(w http.ResponseWriter, f format, loc *types.GeoLocation) {
	data, err := xml.Marshal(xmlLocation{GeoLocation: loc})
	if err != nil {
		h.sendError(w, f, http.StatusInternalServerError, "Failed to encode XML response")
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(data)
}

func (h *APIHandler) writeCSV(w http.ResponseWriter, f format, loc *types.GeoLocation) {
	var b strings.Builder
	writer := csv.NewWriter(&b)
	_ = writer.Write(types.CSVHeader())
	_ = writer.Write(loc.CSVRecord())
	writer.Flush()
	if err := writer.Error(); err != nil {
		h.sendError(w, f, http.StatusInternalServerError, "Failed to write CSV data")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	_, _ = w.Write([]byte(b.String()))
}

// HealthHandler handles health check requests
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// SetupRoutes configures all HTTP routes
func (h *APIHandler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()
	// Keep %2F and friends inside {target} instead of splitting the path
	router.UseEncodedPath()

	router.HandleFunc("/health", h.middleware(h.HealthHandler)).Methods("GET")
	router.Handle("/metrics", h.metrics.Handler()).Methods("GET")

	for _, f := range []format{formatJSON, formatXML, formatCSV} {
		prefix := "/" + string(f)
		router.HandleFunc(prefix, h.middleware(h.lookupHandler(f))).Methods("GET")
		router.HandleFunc(prefix+"/", h.middleware(h.lookupHandler(f))).Methods("GET")
		router.HandleFunc(prefix+"/{target}", h.middleware(h.lookupHandler(f))).Methods("GET")
	}

	// Paths browsers and crawlers request on their own are not lookup targets
	for _, path := range []string{"/favicon.ico", "/robots.txt"} {
		router.HandleFunc(path, h.middleware(http.NotFound)).Methods("GET")
	}

	// Bare paths default to JSON; registered last so they never shadow the routes above
	router.HandleFunc("/", h.middleware(h.lookupHandler(formatJSON))).Methods("GET")
	router.HandleFunc("/{target}", h.middleware(h.lookupHandler(formatJSON))).Methods("GET")

	router.HandleFunc("/{path:.*}", h.middleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).Methods("OPTIONS")

	return router
}
