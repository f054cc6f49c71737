package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/clubemecanico/courses-backend/pkg/config"
	"github.com/clubemecanico/courses-backend/pkg/logger"
)

// Role says which side of the order event stream a process sits on. It decides which
// resources must exist before the process starts.
type Role int

const (
	// RolePublisher drains the outbox into the order and notification topics.
	RolePublisher Role = iota
	// RoleSubscriber consumes the notification subscription.
	RoleSubscriber
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errClientClosed      = errors.New("pubsub client not initialized")
)

// Client wraps the Pub/Sub v2 client with the course platform's topics and subscription.
// Publisher handles are shared per topic and flushed on Close.
type Client struct {
	client    *pubsub.Client
	projectID string
	role      Role
	cfg       config.PubSubConfig

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, role Role, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	var opts []option.ClientOption
	if creds := strings.TrimSpace(gcp.CredentialsJSON); creds != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	}
	psClient, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:     psClient,
		projectID:  projectID,
		role:       role,
		cfg:        cfg,
		publishers: map[string]*pubsub.Publisher{},
	}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project":   projectID,
			"resources": c.requiredResources(),
		}), "pubsub client initialized")
	}
	return c, nil
}

// Ping checks that every topic or subscription this process depends on exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errClientClosed
	}
	resources := c.requiredResources()
	if len(resources) == 0 {
		return fmt.Errorf("no pubsub resources configured for role %d", c.role)
	}
	for _, name := range resources {
		if err := c.exists(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) requiredResources() []string {
	var names []string
	switch c.role {
	case RolePublisher:
		for _, topic := range []string{c.cfg.OrdersTopic, c.cfg.NotificationTopic} {
			if name := resourceName(c.projectID, "topics", topic); name != "" {
				names = append(names, name)
			}
		}
	case RoleSubscriber:
		if name := resourceName(c.projectID, "subscriptions", c.cfg.NotificationSubscription); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func (c *Client) exists(ctx context.Context, name string) error {
	var err error
	if strings.Contains(name, "/subscriptions/") {
		_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
	} else {
		_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	}
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub resource %q does not exist", name)
	default:
		return fmt.Errorf("checking pubsub resource %q: %w", name, err)
	}
}

// NotificationSubscription returns the subscriber feeding the email worker.
func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	name := resourceName(c.projectID, "subscriptions", c.cfg.NotificationSubscription)
	if name == "" {
		return nil
	}
	return c.client.Subscriber(name)
}

// Publisher returns the shared publisher for a topic ID or full resource name.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	name := resourceName(c.projectID, "topics", topic)
	if name == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[name]; ok {
		return p
	}
	p := c.client.Publisher(name)
	c.publishers[name] = p
	return p
}

// Close flushes pending publishes and releases the client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for name, p := range c.publishers {
		p.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.client.Close()
}

// resourceName expands a bare ID into projects/<project>/<kind>/<id>. Full names of the
// same kind pass through; anything else resolves to "".
func resourceName(projectID, kind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") {
		if strings.Contains(n, "/"+kind+"/") {
			return n
		}
		return ""
	}
	if strings.Contains(n, "/") || projectID == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", projectID, kind, n)
}
