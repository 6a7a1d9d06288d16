package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticHeaders struct {
	token  string
	tenant string
}

func (h staticHeaders) Token(context.Context) (string, bool) {
	return h.token, h.token != ""
}

func (h staticHeaders) Tenant(context.Context) (string, bool) {
	return h.tenant, h.tenant != ""
}

func newTestClient(t *testing.T, handler http.HandlerFunc, headers HeaderSource, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL}, headers, zap.NewNop(), opts...)
	require.NoError(t, err)
	return c
}

func TestNew_ValidatesBaseURL(t *testing.T) {
	_, err := New(Config{}, nil, nil)
	require.Error(t, err)

	_, err = New(Config{BaseURL: "not a url"}, nil, nil)
	require.Error(t, err)

	c, err := New(Config{BaseURL: "https://api.example.com/"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", c.baseURL)
	assert.Equal(t, defaultTimeout, c.http.Timeout)
}

func TestClient_InjectsSessionHeaders(t *testing.T) {
	var got http.Header
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{}`))
	}, staticHeaders{token: "tok-1", tenant: "T1"})

	require.NoError(t, c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/v1/ewallet/getallwallet"}, nil))

	assert.Equal(t, "Bearer tok-1", got.Get("Authorization"))
	assert.Equal(t, "T1", got.Get(HeaderTenant))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.NotEmpty(t, got.Get(HeaderCorrelationID))
}

func TestClient_OverridesAndAnonymousCalls(t *testing.T) {
	tests := []struct {
		name       string
		headers    HeaderSource
		req        Request
		wantAuth   string
		wantTenant string
	}{
		{
			name:     "no session sends no authorization",
			headers:  staticHeaders{},
			req:      Request{Method: http.MethodPost, Path: "/api/tokens"},
			wantAuth: "",
		},
		{
			name:       "call tenant wins over stored tenant",
			headers:    staticHeaders{tenant: "stored"},
			req:        Request{Method: http.MethodPost, Path: "/api/tokens", Tenant: "T9"},
			wantTenant: "T9",
		},
		{
			name:       "call token wins over session token",
			headers:    staticHeaders{token: "session", tenant: "T1"},
			req:        Request{Method: http.MethodGet, Path: "/x", Token: "explicit"},
			wantAuth:   "Bearer explicit",
			wantTenant: "T1",
		},
		{
			name:    "nil header source",
			headers: nil,
			req:     Request{Method: http.MethodGet, Path: "/x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got http.Header
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Clone()
			}, tt.headers)

			require.NoError(t, c.Do(context.Background(), tt.req, nil))
			assert.Equal(t, tt.wantAuth, got.Get("Authorization"))
			assert.Equal(t, tt.wantTenant, got.Get(HeaderTenant))
		})
	}
}

func TestClient_SendsJSONBodyAndQuery(t *testing.T) {
	var gotBody map[string]any
	var gotQuery url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"ok":true}`))
	}, nil)

	var out struct {
		OK bool `json:"ok"`
	}
	err := c.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/api/v1/ewallet/createqr",
		Query:  url.Values{"ClientId": {"7"}},
		Body:   map[string]any{"walletId": 5},
	}, &out)
	require.NoError(t, err)

	assert.True(t, out.OK)
	assert.Equal(t, "7", gotQuery.Get("ClientId"))
	assert.Equal(t, float64(5), gotBody["walletId"])
}

func TestClient_SendsMultipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}

		assert.Equal(t, "PASSPORT", r.FormValue("DocumentType"))
		file, header, err := r.FormFile("DocumentData")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		content, _ := io.ReadAll(file)
		assert.Equal(t, "passport.pdf", header.Filename)
		assert.Equal(t, "%PDF", string(content))
	}, nil)

	form := NewMultipart().
		Field("DocumentType", "PASSPORT").
		File("DocumentData", "passport.pdf", []byte("%PDF"))
	require.NoError(t, c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/upload", Form: form}, nil))
}

func TestClient_NormalizesErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		want      APIError
		wantKind  Kind
		wantError string
	}{
		{
			name:     "server error without body",
			status:   http.StatusInternalServerError,
			body:     "",
			want:     APIError{StatusCode: 500, Message: []string{DefaultServerMessage}, ErrorCode: ErrorCodeServer},
			wantKind: KindServer,
		},
		{
			name:     "structured validation error is preserved",
			status:   http.StatusBadRequest,
			body:     `{"message":["Email taken"],"error":"Bad Request"}`,
			want:     APIError{StatusCode: 400, Message: []string{"Email taken"}, ErrorCode: ErrorCodeBadRequest},
			wantKind: KindValidation,
		},
		{
			name:     "string message becomes a list",
			status:   http.StatusConflict,
			body:     `{"message":"Duplicate","error":"Conflict"}`,
			want:     APIError{StatusCode: 409, Message: []string{"Duplicate"}, ErrorCode: "Conflict"},
			wantKind: KindValidation,
		},
		{
			name:     "missing fields take defaults",
			status:   http.StatusBadRequest,
			body:     `{}`,
			want:     APIError{StatusCode: 400, Message: []string{DefaultMessage}, ErrorCode: ErrorCodeBadRequest},
			wantKind: KindValidation,
		},
		{
			name:     "structured server error without error code",
			status:   http.StatusBadGateway,
			body:     `{"message":["upstream down"]}`,
			want:     APIError{StatusCode: 502, Message: []string{"upstream down"}, ErrorCode: ErrorCodeServer},
			wantKind: KindServer,
		},
		{
			name:     "html not found page",
			status:   http.StatusNotFound,
			body:     `<html>not found</html>`,
			want:     APIError{StatusCode: 404, Message: []string{DefaultMessage}, ErrorCode: ErrorCodeBadRequest},
			wantKind: KindValidation,
		},
		{
			name:     "unauthorized",
			status:   http.StatusUnauthorized,
			body:     `{"message":["Invalid credentials"],"error":"Unauthorized"}`,
			want:     APIError{StatusCode: 401, Message: []string{"Invalid credentials"}, ErrorCode: "Unauthorized"},
			wantKind: KindAuth,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}, nil)

			err := c.Do(context.Background(), Request{Name: "test", Method: http.MethodGet, Path: "/x"}, nil)
			apiErr, ok := AsAPIError(err)
			require.True(t, ok, "expected APIError, got %v", err)
			assert.Equal(t, tt.want.StatusCode, apiErr.StatusCode)
			assert.Equal(t, tt.want.Message, apiErr.Message)
			assert.Equal(t, tt.want.ErrorCode, apiErr.ErrorCode)
			assert.Equal(t, tt.wantKind, apiErr.Kind)
			assert.Equal(t, "test", apiErr.Endpoint)
		})
	}
}

func TestClient_EmailTakenEnvelopeVerbatim(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":["Email taken"],"error":"Bad Request"}`))
	}, nil)

	err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/api/users/self-register"}, nil)
	require.Error(t, err)
	assert.JSONEq(t, `{"statusCode":400,"message":["Email taken"],"error":"Bad Request"}`, err.Error())
}

func TestClient_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: base, Timeout: time.Second}, nil, zap.NewNop())
	require.NoError(t, err)

	err = c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"}, nil)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, KindNetwork, apiErr.Kind)
	assert.JSONEq(t, `{"statusCode":500,"message":["Network Error or Internal Server Error"],"error":"Server Error"}`, string(apiErr.JSON()))
	assert.NotNil(t, errors.Unwrap(apiErr))
}

func TestClient_MalformedSuccessBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty", body: ""},
		{name: "wrong type", body: `{"walletId":"five"}`},
		{name: "not json", body: `oops`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}, nil)

			var out struct {
				WalletID int64 `json:"walletId"`
			}
			err := c.Do(context.Background(), Request{Name: "getallwallet", Method: http.MethodGet, Path: "/x"}, &out)
			require.ErrorIs(t, err, ErrMalformedResponse)
			assert.Contains(t, err.Error(), "getallwallet")
		})
	}
}

func TestClient_RetryPolicy(t *testing.T) {
	t.Run("default is fire once", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}, nil)

		require.Error(t, c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"}, nil))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("server errors are retried", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`{}`))
		}, nil, WithRetry(RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond}))

		require.NoError(t, c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"}, nil))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("validation errors are not retried", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}, nil, WithRetry(RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond}))

		require.Error(t, c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"}, nil))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("calls with side effects are sent once", func(t *testing.T) {
		for _, method := range []string{http.MethodPost, http.MethodPut} {
			t.Run(method, func(t *testing.T) {
				var calls atomic.Int32
				c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
					calls.Add(1)
					w.WriteHeader(http.StatusInternalServerError)
				}, nil, WithRetry(RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond}))

				err := c.Do(context.Background(), Request{
					Name:   "topupwallet",
					Method: method,
					Path:   "/api/v1/ewallet/topupwallet",
					Body:   map[string]int{"amount": 10},
				}, nil)
				require.True(t, IsKind(err, KindServer))
				assert.Equal(t, int32(1), calls.Load())
			})
		}
	})
}

func TestClient_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, nil, WithMetrics(metrics))

	require.NoError(t, c.Do(context.Background(), Request{Name: "logout", Method: http.MethodPost, Path: "/x"}, nil))

	families, err := reg.Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "cobrand_gateway_requests_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			counts[labels["endpoint"]+" "+labels["status"]] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), counts["logout 204"])
}

func TestDoEnvelope(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantErr     bool
		wantMessage []string
		malformed   bool
		wantData    []int
	}{
		{name: "success", body: `{"succeeded":true,"message":null,"totalRecord":2,"data":[1,2]}`, wantData: []int{1, 2}},
		{name: "failure with message", body: `{"succeeded":false,"message":"Wallet locked","data":null}`, wantErr: true, wantMessage: []string{"Wallet locked"}},
		{name: "failure without message", body: `{"succeeded":false,"message":null}`, wantErr: true, wantMessage: []string{"Failed to fetch wallets"}},
		{name: "missing succeeded flag", body: `{"data":[1]}`, wantErr: true, malformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}, nil)

			env, err := DoEnvelope[[]int](context.Background(), c, Request{Name: "getallwallet", Method: http.MethodGet, Path: "/x"}, "Failed to fetch wallets")
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.wantData, env.Data)
				return
			}

			require.Error(t, err)
			if tt.malformed {
				assert.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			apiErr, ok := AsAPIError(err)
			require.True(t, ok)
			assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
			assert.Equal(t, ErrorCodeBadRequest, apiErr.ErrorCode)
			assert.Equal(t, KindValidation, apiErr.Kind)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
		})
	}
}

func TestMessages_UnmarshalJSON(t *testing.T) {
	var payload struct {
		Message Messages `json:"message"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"message":["a","b"]}`), &payload))
	assert.Equal(t, Messages{"a", "b"}, payload.Message)
	assert.Equal(t, "a", payload.Message.First("x"))

	payload.Message = nil
	require.NoError(t, json.Unmarshal([]byte(`{"message":null}`), &payload))
	assert.Empty(t, payload.Message)
	assert.Equal(t, "x", payload.Message.First("x"))
}

func TestNewValidationError(t *testing.T) {
	cause := errors.New("configuration id is required")
	err := NewValidationError(nil, cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsKind(err, KindValidation))
	assert.False(t, err.Retryable())
	assert.JSONEq(t, `{"statusCode":400,"message":["An unexpected error occurred"],"error":"Bad Request"}`, err.Error())
}

type cannedCaller struct {
	body []byte
	err  error
}

func (c cannedCaller) Call(context.Context, Request) ([]byte, error) {
	return c.body, c.err
}

func TestDoAction(t *testing.T) {
	tests := []struct {
		name        string
		caller      cannedCaller
		wantErr     bool
		wantMessage []string
	}{
		{name: "empty body", caller: cannedCaller{}},
		{name: "succeeded", caller: cannedCaller{body: []byte(`{"succeeded":true}`)}},
		{name: "no outcome flag", caller: cannedCaller{body: []byte(`{"id":3}`)}},
		{name: "rejected", caller: cannedCaller{body: []byte(`{"succeeded":false,"message":"Document rejected"}`)}, wantErr: true, wantMessage: []string{"Document rejected"}},
		{name: "rejected silently", caller: cannedCaller{body: []byte(`{"succeeded":false}`)}, wantErr: true, wantMessage: []string{"Failed to upload document"}},
		{name: "transport error", caller: cannedCaller{err: NewValidationError([]string{"x"}, nil)}, wantErr: true, wantMessage: []string{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := DoAction(context.Background(), tt.caller, Request{Name: "upload"}, "Failed to upload document")
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			apiErr, ok := AsAPIError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
		})
	}
}

func TestDecode(t *testing.T) {
	type user struct {
		ID string `json:"id"`
	}

	got, err := Decode[user](context.Background(), cannedCaller{body: []byte(`{"id":"u1"}`)}, Request{Name: "user"})
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	_, err = Decode[user](context.Background(), cannedCaller{body: []byte(`[]`)}, Request{Name: "user"})
	require.ErrorIs(t, err, ErrMalformedResponse)
}
