package transport_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xenophobed/chatstream"
	"github.com/xenophobed/chatstream/transport"
)

// drain reads chunks until EOF and returns the concatenated payload.
func drain(t *testing.T, cs transport.ChunkStream) string {
	t.Helper()
	var b strings.Builder
	for {
		chunk, err := cs.Next()
		if err == io.EOF {
			return b.String()
		}
		require.NoError(t, err)
		b.Write(chunk)
	}
}

func TestHTTP_Open(t *testing.T) {
	t.Parallel()

	var gotMethod, gotContentType, gotAccept, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotAccept = r.Header.Get("Accept")
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		io.WriteString(w, "data: one\n\n")
		flusher.Flush()
		io.WriteString(w, "data: two\n\n")
	}))
	defer srv.Close()

	tr := transport.NewHTTP(transport.WithHeader("Authorization", "Bearer tok"))
	cs, err := tr.Open(context.Background(), srv.URL, []byte(`{"message":"hi"}`))
	require.NoError(t, err)
	defer cs.Close()

	assert.Equal(t, "data: one\n\ndata: two\n\n", drain(t, cs))
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "text/event-stream", gotAccept)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, `{"message":"hi"}`, gotBody)
}

func TestHTTP_OpenNon200(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tr := transport.NewHTTP()
	_, err := tr.Open(context.Background(), srv.URL, nil)

	var connErr *chatstream.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, srv.URL, connErr.Endpoint)
	assert.Contains(t, connErr.Error(), "503")
}

func TestHTTP_OpenUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	tr := transport.NewHTTP()
	_, err := tr.Open(context.Background(), url, nil)

	var connErr *chatstream.ConnectionError
	require.ErrorAs(t, err, &connErr)
}

func TestHTTP_TruncatedBodyInterruptsStream(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Promise more bytes than delivered so the client sees the
		// stream die mid-body.
		w.Header().Set("Content-Length", "1024")
		io.WriteString(w, "partial")
	}))
	defer srv.Close()

	tr := transport.NewHTTP()
	cs, err := tr.Open(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	defer cs.Close()

	chunk, err := cs.Next()
	require.NoError(t, err)
	assert.Equal(t, "partial", string(chunk))

	_, err = cs.Next()
	var interrupted *chatstream.StreamInterruptedError
	require.ErrorAs(t, err, &interrupted)
	assert.Equal(t, int64(7), interrupted.BytesReceived)
}

func TestHTTP_CancelDuringStream(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: one\n\n")
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := transport.NewHTTP()
	cs, err := tr.Open(ctx, srv.URL, nil)
	require.NoError(t, err)
	defer cs.Close()

	chunk, err := cs.Next()
	require.NoError(t, err)
	assert.Equal(t, "data: one\n\n", string(chunk))

	cancel()
	_, err = cs.Next()
	require.ErrorIs(t, err, context.Canceled)
}

func TestHTTP_NextAfterClose(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: one\n\n")
	}))
	defer srv.Close()

	tr := transport.NewHTTP()
	cs, err := tr.Open(context.Background(), srv.URL, nil)
	require.NoError(t, err)

	require.NoError(t, cs.Close())
	_, err = cs.Next()
	require.ErrorIs(t, err, chatstream.ErrStreamClosed)
}

func TestHTTP_ConnectTimeoutOption(t *testing.T) {
	t.Parallel()

	// A sub-millisecond dial timeout to an unroutable address fails fast
	// with a connection error rather than hanging.
	tr := transport.NewHTTP(transport.WithConnectTimeout(time.Millisecond))
	_, err := tr.Open(context.Background(), "http://10.255.255.1:9/stream", nil)

	var connErr *chatstream.ConnectionError
	require.ErrorAs(t, err, &connErr)
}
