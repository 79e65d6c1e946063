package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type outcome struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

func (o outcome) Attributes() map[string]string {
	return map[string]string{"session_id": o.SessionID, "status": o.Status}
}

func newTestPublisher(t *testing.T) (*Publisher, *pstest.Server) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	client, err := pubsub.NewClient(ctx, "searchmon-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	_, err = client.CreateTopic(ctx, "search-outcomes")
	require.NoError(t, err)

	pub := New(client)
	t.Cleanup(func() { _ = pub.Close() })
	return pub, srv
}

func TestPublisherPublishesJSONWithAttributes(t *testing.T) {
	t.Parallel()

	pub, srv := newTestPublisher(t)
	id, err := pub.Publish(context.Background(), "search-outcomes", outcome{SessionID: "abc", Status: "completed"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "completed", msgs[0].Attributes["status"])

	var got outcome
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, "abc", got.SessionID)
}

func TestPublisherValidatesInput(t *testing.T) {
	t.Parallel()

	pub, _ := newTestPublisher(t)
	_, err := pub.Publish(context.Background(), "", outcome{})
	require.Error(t, err)

	_, err = pub.Publish(context.Background(), "search-outcomes", func() {})
	require.ErrorContains(t, err, "marshal payload")

	var unset *Publisher
	_, err = unset.Publish(context.Background(), "search-outcomes", outcome{})
	require.Error(t, err)
}
