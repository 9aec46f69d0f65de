// Package nostrpublish implements the publish-as-user tool: an agent asks a
// human's NIP-46 remote signer (a "bunker") to sign an event on the human's
// behalf, then broadcasts the signed event to the configured relays.
package nostrpublish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nexus-ral/nexus/internal/agent"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip46"
)

const (
	connectTimeout = 30 * time.Second
	signTimeout    = 120 * time.Second

	// millisecondThreshold flags created_at values that look like they were
	// supplied in milliseconds instead of the NIP-01 second resolution.
	millisecondThreshold = int64(1_000_000_000_000)
)

// BunkerDialer opens a connection to a user's remote signer. Production
// wiring passes nip46.ConnectBunker; tests substitute a fake.
type BunkerDialer func(ctx context.Context, clientSecretKey, bunkerURL string) (BunkerClient, error)

// BunkerClient is the subset of nip46.BunkerClient the tool depends on.
type BunkerClient interface {
	SignEvent(ctx context.Context, evt *nostr.Event) error
}

// Publisher broadcasts a signed event to one or more relays.
type Publisher interface {
	Publish(ctx context.Context, relayURL string, evt nostr.Event) error
}

// Config wires the tool to a specific agent identity and bunker endpoint.
type Config struct {
	// ClientSecretKey is the agent's own NIP-46 client key (hex), distinct
	// from the human's key held by the bunker.
	ClientSecretKey string
	// BunkerURL is the bunker:// or NIP-05 address of the human's signer.
	BunkerURL string
	Relays    []string
	Dialer    BunkerDialer
	Publisher Publisher
}

// Tool is the publish-as-user / NIP-46 remote-signing tool.
type Tool struct {
	cfg Config
}

// New builds a publish-as-user tool bound to cfg.
func New(cfg Config) *Tool {
	if cfg.Dialer == nil {
		cfg.Dialer = defaultDialer
	}
	return &Tool{cfg: cfg}
}

func defaultDialer(ctx context.Context, clientSecretKey, bunkerURL string) (BunkerClient, error) {
	client, err := nip46.ConnectBunker(ctx, clientSecretKey, bunkerURL, nil, func(string) {})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (t *Tool) Name() string { return "publish_as_user" }

func (t *Tool) Description() string {
	return "Publish a Nostr event signed by the user's own remote signer (NIP-46)."
}

func (t *Tool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"kind": map[string]interface{}{
				"type":        "integer",
				"description": "Nostr event kind (e.g. 1 for a text note).",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Event content.",
			},
			"tags": map[string]interface{}{
				"type":        "array",
				"description": "Event tags, each an array of strings.",
				"items": map[string]interface{}{
					"type":  "array",
					"items": map[string]interface{}{"type": "string"},
				},
			},
			"explanation": map[string]interface{}{
				"type":        "string",
				"description": "Why this event is being published, shown to the user approving the signature request.",
			},
			"created_at": map[string]interface{}{
				"type":        "integer",
				"description": "Unix seconds for the event timestamp (defaults to now).",
			},
		},
		"required": []string{"kind", "content", "explanation"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

type input struct {
	Kind        int        `json:"kind"`
	Content     string     `json:"content"`
	Tags        [][]string `json:"tags"`
	Explanation string     `json:"explanation"`
	CreatedAt   int64      `json:"created_at"`
}

// Execute builds the event, routes it through the bunker for signing, and
// publishes the result.
//
// The explanation a caller supplies is audit metadata for why the event is
// being published, not a tag on the event that gets signed: embedding it in
// the signed payload and then stripping it afterward would invalidate the
// signature the bunker returned, since a NIP-01 event id is a hash over its
// full tag set. Tags named "tenex_explanation" are stripped defensively in
// case a signer echoes back stray metadata, and the id/signature are then
// recomputed and reverified as a standard post-signing integrity check
// before anything is published.
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in input
	if err := json.Unmarshal(params, &in); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(in.Explanation) == "" {
		return toolError("explanation is required"), nil
	}
	if in.CreatedAt >= millisecondThreshold {
		return toolError("created_at looks like milliseconds, not seconds"), nil
	}

	createdAt := in.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().Unix()
	}

	evt := nostr.Event{
		Kind:      in.Kind,
		Content:   in.Content,
		CreatedAt: nostr.Timestamp(createdAt),
		Tags:      toNostrTags(in.Tags),
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	bunker, err := t.cfg.Dialer(connectCtx, t.cfg.ClientSecretKey, t.cfg.BunkerURL)
	cancel()
	if err != nil {
		return toolError(fmt.Sprintf("failed to connect to remote signer: %v", err)), nil
	}

	signCtx, signCancel := context.WithTimeout(ctx, signTimeout)
	err = bunker.SignEvent(signCtx, &evt)
	signCancel()
	if err != nil {
		return toolError(fmt.Sprintf("remote signer declined or timed out: %v", err)), nil
	}

	evt.Tags = stripExplanationTag(evt.Tags)
	evt.ID = evt.GetID()
	ok, err := evt.CheckSignature()
	if err != nil || !ok {
		return toolError("signature no longer valid after normalizing tags; refusing to publish"), nil
	}

	published := 0
	var lastErr error
	for _, relay := range t.cfg.Relays {
		if err := t.cfg.Publisher.Publish(ctx, relay, evt); err != nil {
			lastErr = err
			continue
		}
		published++
	}
	if published == 0 {
		return toolError(fmt.Sprintf("failed to publish to any relay: %v", lastErr)), nil
	}

	payload, err := json.Marshal(map[string]interface{}{
		"event_id":       evt.ID,
		"published_to":   published,
		"relays_offered": len(t.cfg.Relays),
	})
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}

func toNostrTags(tags [][]string) nostr.Tags {
	if len(tags) == 0 {
		return nil
	}
	out := make(nostr.Tags, 0, len(tags))
	for _, t := range tags {
		out = append(out, nostr.Tag(t))
	}
	return out
}

// stripExplanationTag removes any "tenex_explanation" tag a non-conformant signer
// might have appended to the event it returned.
func stripExplanationTag(tags nostr.Tags) nostr.Tags {
	out := make(nostr.Tags, 0, len(tags))
	for _, tag := range tags {
		if len(tag) > 0 && tag[0] == "tenex_explanation" {
			continue
		}
		out = append(out, tag)
	}
	return out
}

func toolError(message string) *agent.ToolResult {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &agent.ToolResult{Content: message, IsError: true}
	}
	return &agent.ToolResult{Content: string(payload), IsError: true}
}
