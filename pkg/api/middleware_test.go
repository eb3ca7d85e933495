package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goran-ethernal/HolderLedger/internal/logger"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &logger.Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestCORSMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name       string
		allowed    []string
		method     string
		origin     string
		wantOrigin string
		wantVary   bool
		wantStatus int
	}{
		{
			name:       "wildcard echoes the dashboard origin",
			allowed:    []string{"*"},
			method:     http.MethodGet,
			origin:     "https://dashboard.example",
			wantOrigin: "https://dashboard.example",
			wantVary:   true,
			wantStatus: http.StatusTeapot,
		},
		{
			name:       "wildcard without origin header",
			allowed:    []string{"*"},
			method:     http.MethodGet,
			wantOrigin: "*",
			wantStatus: http.StatusTeapot,
		},
		{
			name:       "listed origin",
			allowed:    []string{"https://a.example", "https://b.example"},
			method:     http.MethodPost,
			origin:     "https://b.example",
			wantOrigin: "https://b.example",
			wantVary:   true,
			wantStatus: http.StatusTeapot,
		},
		{
			name:       "unlisted origin still reaches the handler",
			allowed:    []string{"https://a.example"},
			method:     http.MethodGet,
			origin:     "https://evil.example",
			wantStatus: http.StatusTeapot,
		},
		{
			name:       "no allowed origins",
			method:     http.MethodGet,
			origin:     "https://a.example",
			wantStatus: http.StatusTeapot,
		},
		{
			name:       "preflight is answered without the handler",
			allowed:    []string{"https://a.example"},
			method:     http.MethodOptions,
			origin:     "https://a.example",
			wantOrigin: "https://a.example",
			wantVary:   true,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/holders/0xabc", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()

			CORSMiddleware(tt.allowed)(ok).ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			require.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantOrigin != "" {
				require.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
				require.Equal(t, corsMaxAge, rec.Header().Get("Access-Control-Max-Age"))
			}
			if tt.wantVary {
				require.Equal(t, "Origin", rec.Header().Get("Vary"))
			} else {
				require.Empty(t, rec.Header().Get("Vary"))
			}
		})
	}
}

func TestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
	}{
		{
			name: "implicit 200",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{}`))
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "populating",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusAccepted)
			},
			wantStatus: http.StatusAccepted,
		},
		{
			name: "first status wins",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, logs := observedLogger()
			req := httptest.NewRequest(http.MethodGet, "/holders/0xabc", nil)

			LoggingMiddleware(log)(tt.handler).ServeHTTP(httptest.NewRecorder(), req)

			entries := logs.FilterMessage("request").All()
			require.Len(t, entries, 1)
			fields := entries[0].ContextMap()
			require.Equal(t, http.MethodGet, fields["method"])
			require.Equal(t, "/holders/0xabc", fields["path"])
			require.EqualValues(t, tt.wantStatus, fields["status"])
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		wantCode  int
		wantPanic bool
	}{
		{
			name: "no panic",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
			wantCode: http.StatusOK,
		},
		{
			name: "string panic",
			handler: func(http.ResponseWriter, *http.Request) {
				panic("ledger missing")
			},
			wantCode:  http.StatusInternalServerError,
			wantPanic: true,
		},
		{
			name: "error panic",
			handler: func(http.ResponseWriter, *http.Request) {
				panic(http.ErrAbortHandler)
			},
			wantCode:  http.StatusInternalServerError,
			wantPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, logs := observedLogger()
			rec := httptest.NewRecorder()

			require.NotPanics(t, func() {
				RecoveryMiddleware(log)(tt.handler).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/holders/0xabc", nil))
			})

			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantPanic {
				require.Equal(t, 1, logs.FilterMessage("panic in handler").Len())
			} else {
				require.Zero(t, logs.Len())
			}
		})
	}
}

func TestMiddlewareChain(t *testing.T) {
	log, logs := observedLogger()
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	h := CORSMiddleware([]string{"*"})(LoggingMiddleware(log)(RecoveryMiddleware(log)(panicky)))

	req := httptest.NewRequest(http.MethodGet, "/contracts", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "https://dashboard.example", rec.Header().Get("Access-Control-Allow-Origin"))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	require.EqualValues(t, http.StatusInternalServerError, entries[0].ContextMap()["status"])
}
