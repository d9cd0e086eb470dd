package chainweb

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestSSEReaderParsesEvents(t *testing.T) {
	stream := "event: BlockHeader\n" +
		"data: {\"a\":1}\n" +
		"\n" +
		"event: BlockHeader\n" +
		"data: {\"a\":2}\n" +
		"\n"

	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(stream)),
			Header:     make(http.Header),
		}, nil
	})}

	reader := NewSSEReader(client, "http://node.example", "mainnet01")

	var events []SSEEvent
	err := reader.Subscribe(context.Background(), func(ev SSEEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "BlockHeader", events[0].Type)
	require.JSONEq(t, `{"a":1}`, events[0].Data)
	require.JSONEq(t, `{"a":2}`, events[1].Data)
}

func TestSSEReaderNonSuccessStatus(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusInternalServerError,
			Body:       io.NopCloser(strings.NewReader("")),
			Header:     make(http.Header),
		}, nil
	})}

	reader := NewSSEReader(client, "http://node.example", "mainnet01")
	err := reader.Subscribe(context.Background(), func(SSEEvent) error { return nil })
	require.Error(t, err)
}
