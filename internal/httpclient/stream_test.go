package httpclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nulzo/streamchat/internal/httpclient"
	"github.com/nulzo/streamchat/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkedBody returns one chunk per Read call and counts Close calls.
type chunkedBody struct {
	chunks [][]byte
	reads  int
	closes int
}

func newChunkedBody(chunks ...string) *chunkedBody {
	b := &chunkedBody{}
	for _, c := range chunks {
		b.chunks = append(b.chunks, []byte(c))
	}
	return b
}

func (b *chunkedBody) Read(p []byte) (int, error) {
	b.reads++
	if len(b.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, b.chunks[0])
	if n < len(b.chunks[0]) {
		b.chunks[0] = b.chunks[0][n:]
	} else {
		b.chunks = b.chunks[1:]
	}
	return n, nil
}

func (b *chunkedBody) Close() error {
	b.closes++
	return nil
}

func parseText(payload []byte) (string, error) {
	var event struct {
		Text string `json:"t"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", err
	}
	return event.Text, nil
}

func consume(t *testing.T, ctx context.Context, body io.ReadCloser) ([]string, error) {
	t.Helper()
	var got []string
	err := httpclient.NewEventStream("http://upstream", body).Each(ctx, parseText, func(fragment string) {
		got = append(got, fragment)
	})
	return got, err
}

const sample = "data: {\"t\":\"Hi\"}\n" +
	"\n" +
	"data: {\"t\":\" th\\u00e9re\"}\r\n" +
	"event: ping\n" +
	"data: {\"t\":\"\"}\n" +
	"data: {\"t\":\", 你好\"}\n" +
	"data: {\"t\":\"!\"}"

func TestEach_SplitAnywhereMatchesSingleRead(t *testing.T) {
	want, err := consume(t, context.Background(), newChunkedBody(sample))
	require.NoError(t, err)
	require.Equal(t, []string{"Hi", " thére", ", 你好", "!"}, want)

	for i := 0; i <= len(sample); i++ {
		got, err := consume(t, context.Background(), newChunkedBody(sample[:i], sample[i:]))
		require.NoError(t, err)
		assert.Equal(t, want, got, "split at %d", i)
	}

	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		var chunks []string
		rest := sample
		for len(rest) > 0 {
			n := rng.Intn(len(rest)) + 1
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		got, err := consume(t, context.Background(), newChunkedBody(chunks...))
		require.NoError(t, err)
		assert.Equal(t, want, got, "chunks %q", chunks)
	}
}

func TestEach_OneByteReads(t *testing.T) {
	var fragments []string
	body := io.NopCloser(strings.NewReader(sample))
	err := httpclient.NewEventStream("http://upstream", body, httpclient.WithReadSize(1)).
		Each(context.Background(), parseText, func(f string) { fragments = append(fragments, f) })

	require.NoError(t, err)
	assert.Equal(t, []string{"Hi", " thére", ", 你好", "!"}, fragments)
}

func TestEach_DoneMidChunkStopsReading(t *testing.T) {
	body := newChunkedBody(
		"data: {\"t\":\"a\"}\ndata: [DONE]\ndata: {\"t\":\"b\"}\n",
		"data: {\"t\":\"c\"}\n",
	)

	got, err := consume(t, context.Background(), body)

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, 1, body.reads, "no read after the sentinel")
	assert.Equal(t, 1, body.closes)
}

func TestEach_DoneAsFinalRemainder(t *testing.T) {
	body := newChunkedBody("data: {\"t\":\"a\"}\ndata: [DO", "NE]")

	got, err := consume(t, context.Background(), body)

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)
}

func TestEach_MalformedFrameIsSkipped(t *testing.T) {
	body := newChunkedBody(
		"data: {\"t\":\"before\"}\n",
		"data: {\"t\": broken\n",
		"data: {\"t\":\"after\"}\n",
	)

	got, err := consume(t, context.Background(), body)

	require.NoError(t, err)
	assert.Equal(t, []string{"before", "after"}, got)
}

func TestEach_CancelAfterNFragments(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	body := newChunkedBody(
		"data: {\"t\":\"1\"}\ndata: {\"t\":\"2\"}\ndata: {\"t\":\"3\"}\n",
		"data: {\"t\":\"4\"}\n",
	)

	var got []string
	err := httpclient.NewEventStream("http://upstream", body).Each(ctx, parseText, func(fragment string) {
		got = append(got, fragment)
		if len(got) == 2 {
			cancel()
		}
	})

	assert.Equal(t, []string{"1", "2"}, got)
	assert.ErrorIs(t, err, api.ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, body.closes)
}

func TestEach_ReadErrorIsTransportError(t *testing.T) {
	boom := errors.New("connection reset")
	body := io.NopCloser(io.MultiReader(strings.NewReader("data: {\"t\":\"a\"}\n"), &failingReader{err: boom}))

	got, err := consume(t, context.Background(), body)

	assert.Equal(t, []string{"a"}, got)
	var transportErr *api.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, transportErr.StatusCode)
}

type failingReader struct{ err error }

func (r *failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestEventStream_CloseIsIdempotent(t *testing.T) {
	body := newChunkedBody()
	s := httpclient.NewEventStream("http://upstream", body)

	require.NoError(t, s.Each(context.Background(), parseText, func(string) {}))
	require.NoError(t, s.Close())
	assert.Equal(t, 1, body.closes)
}

func TestOpen_SendsHeadersAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"t\":\"ok\"}\n\ndata: [DONE]\n\n")
	}))
	defer server.Close()

	var got []string
	err := httpclient.StreamRequest(context.Background(), server.Client(), server.URL,
		map[string]string{"Authorization": "Bearer sk-test"},
		map[string]interface{}{"stream": true},
		parseText, func(f string) { got = append(got, f) },
	)

	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, got)
}

func TestOpen_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key"}}`)
	}))
	defer server.Close()

	stream, err := httpclient.Open(context.Background(), server.Client(), server.URL, nil, struct{}{})

	assert.Nil(t, stream)
	var transportErr *api.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusUnauthorized, transportErr.StatusCode)
	assert.Contains(t, string(transportErr.Body), "bad key")
}

func TestOpen_ConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := httpclient.Open(context.Background(), http.DefaultClient, url, nil, struct{}{})

	var transportErr *api.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Zero(t, transportErr.StatusCode)
	assert.NotErrorIs(t, err, api.ErrCanceled)
}

func TestEach_CancelAbortsBlockedRead(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"t\":\"first\"}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := httpclient.Open(ctx, server.Client(), server.URL, nil, struct{}{})
	require.NoError(t, err)

	first := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- stream.Each(ctx, parseText, func(f string) {
			first <- f
		})
	}()

	select {
	case f := <-first:
		assert.Equal(t, "first", f)
	case <-time.After(5 * time.Second):
		t.Fatal("first fragment never arrived")
	}
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, api.ErrCanceled)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop after cancellation")
	}
}
