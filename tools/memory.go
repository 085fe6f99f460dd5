package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	bolt "go.etcd.io/bbolt"

	"github.com/seaborne/helmsman/agent"
)

var memoryBucket = []byte("memories")

// MemoryStore persists agent memories to a BoltDB file on disk, keyed by
// topic. It survives process restarts so the agent can recall facts across
// sessions.
type MemoryStore struct {
	db *bolt.DB
}

// OpenMemoryStore opens (or creates) the memory database at path.
func OpenMemoryStore(path string) (*MemoryStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(memoryBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init memory bucket: %w", err)
	}
	return &MemoryStore{db: db}, nil
}

// Close releases the underlying database.
func (s *MemoryStore) Close() error {
	return s.db.Close()
}

// Save stores content under a topic, replacing any previous value.
func (s *MemoryStore) Save(topic, content string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(memoryBucket).Put([]byte(topic), []byte(content))
	})
}

// Recall returns the content stored under a topic, or "" when absent.
func (s *MemoryStore) Recall(topic string) (string, error) {
	var content string
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(memoryBucket).Get([]byte(topic)); v != nil {
			content = string(v)
		}
		return nil
	})
	return content, err
}

// Topics returns all stored topic names in sorted order.
func (s *MemoryStore) Topics() ([]string, error) {
	var topics []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(memoryBucket).ForEach(func(k, _ []byte) error {
			topics = append(topics, string(k))
			return nil
		})
	})
	sort.Strings(topics)
	return topics, err
}

// RecallAll renders every stored memory as a text block, for seeding the
// system prompt's memory section. Returns "" when the store is empty.
func (s *MemoryStore) RecallAll() (string, error) {
	var sb strings.Builder
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(memoryBucket).ForEach(func(k, v []byte) error {
			fmt.Fprintf(&sb, "- %s: %s\n", k, v)
			return nil
		})
	})
	return strings.TrimRight(sb.String(), "\n"), err
}

// RegisterMemoryTools registers memory_save and memory_recall backed by the
// store. memory_save writes outside the conversation, so callers normally
// list it in the approval-gated set.
func RegisterMemoryTools(reg *agent.Registry, store *MemoryStore) {
	reg.Register(agent.Tool{
		Name:        "memory_save",
		Description: "Persist a fact under a topic so it can be recalled in later sessions.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"topic": map[string]any{
					"type":        "string",
					"description": "Short topic key, e.g. 'user_preferences'.",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "The fact to remember.",
				},
			},
			"required": []string{"topic", "content"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			topic, ok := agent.StringArg(args, "topic")
			if !ok || topic == "" {
				return "", fmt.Errorf("topic is required")
			}
			content, ok := agent.StringArg(args, "content")
			if !ok || content == "" {
				return "", fmt.Errorf("content is required")
			}
			if err := store.Save(topic, content); err != nil {
				return "", err
			}
			return fmt.Sprintf("remembered %q", topic), nil
		},
	})

	reg.Register(agent.Tool{
		Name:        "memory_recall",
		Description: "Recall a fact by topic. With no topic, lists all stored topics.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"topic": map[string]any{
					"type":        "string",
					"description": "Topic key to recall. Omit to list all topics.",
				},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			topic, _ := agent.StringArg(args, "topic")
			if topic == "" {
				topics, err := store.Topics()
				if err != nil {
					return "", err
				}
				if len(topics) == 0 {
					return "no memories stored", nil
				}
				return "stored topics: " + strings.Join(topics, ", "), nil
			}

			content, err := store.Recall(topic)
			if err != nil {
				return "", err
			}
			if content == "" {
				return fmt.Sprintf("nothing stored under %q", topic), nil
			}
			return content, nil
		},
	})
}
