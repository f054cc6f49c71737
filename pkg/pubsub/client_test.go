package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clubemecanico/courses-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	cases := []struct {
		name, kind, in, want string
	}{
		{"bare topic", "topics", "clube-order-events", "projects/clube/topics/clube-order-events"},
		{"trimmed", "subscriptions", "  worker  ", "projects/clube/subscriptions/worker"},
		{"full name kept", "topics", "projects/other/topics/x", "projects/other/topics/x"},
		{"wrong kind", "topics", "projects/other/subscriptions/x", ""},
		{"partial path", "topics", "topics/x", ""},
		{"empty", "topics", " ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, resourceName("clube", tc.kind, tc.in))
		})
	}
}

func TestRequiredResourcesFollowRole(t *testing.T) {
	cfg := config.PubSubConfig{
		OrdersTopic:              "orders",
		NotificationTopic:        "notifications",
		NotificationSubscription: "notifications-worker",
	}

	publisher := &Client{projectID: "clube", role: RolePublisher, cfg: cfg}
	require.Equal(t, []string{
		"projects/clube/topics/orders",
		"projects/clube/topics/notifications",
	}, publisher.requiredResources())

	subscriber := &Client{projectID: "clube", role: RoleSubscriber, cfg: cfg}
	require.Equal(t, []string{"projects/clube/subscriptions/notifications-worker"}, subscriber.requiredResources())
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	require.Nil(t, c.Publisher("orders"))
	require.Nil(t, c.NotificationSubscription())
	require.NoError(t, c.Close())
	require.ErrorIs(t, c.Ping(context.Background()), errClientClosed)
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{ProjectID: " "}, config.PubSubConfig{}, RolePublisher, nil)
	require.ErrorIs(t, err, errProjectIDRequired)
}
