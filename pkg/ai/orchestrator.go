// Package ai turns assist commands into persisted artifacts.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yz174/kliq/pkg/llm"
	"github.com/yz174/kliq/pkg/logger"
	"github.com/yz174/kliq/pkg/models"
	"github.com/yz174/kliq/pkg/telemetry"
	"github.com/yz174/kliq/pkg/timeutil"
)

type Store interface {
	LatestArtifact(convID, userID string, t models.ArtifactType) (models.Artifact, bool, error)
	LatestArtifacts(convID, userID string) (map[models.ArtifactType]models.Artifact, error)
	InsertArtifact(a models.Artifact) (models.Artifact, error)
	LatestMessages(convID string, limit int, keep func(models.Message) bool) ([]models.Message, error)
	GetUsers(ids []string) (map[string]models.User, error)
	IsMember(convID, userID string) (bool, error)
}

type Options struct {
	SummaryCooldown time.Duration
	ContextLimit    int
}

// Orchestrator runs assist commands. Summaries for one (conversation,
// user) run one at a time so the cooldown check sees the previous run's
// artifact; other commands run unguarded and always produce a new one.
type Orchestrator struct {
	store    Store
	provider llm.Provider
	clock    timeutil.Clock
	opts     Options
	summary  keyedMutex
}

// keyedMutex hands out one mutex per key and drops it when unused.
type keyedMutex struct {
	mu sync.Mutex
	m  map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.m == nil {
		k.m = make(map[string]*refMutex)
	}
	rm, ok := k.m[key]
	if !ok {
		rm = &refMutex{}
		k.m[key] = rm
	}
	rm.refs++
	k.mu.Unlock()

	rm.Lock()
	return func() {
		rm.Unlock()
		k.mu.Lock()
		if rm.refs--; rm.refs == 0 {
			delete(k.m, key)
		}
		k.mu.Unlock()
	}
}

func New(s Store, p llm.Provider, clock timeutil.Clock, opts Options) *Orchestrator {
	if opts.ContextLimit <= 0 {
		opts.ContextLimit = 40
	}
	return &Orchestrator{store: s, provider: p, clock: timeutil.Or(clock), opts: opts}
}

// Result describes one command run. Skipped runs carry a reason and no
// artifact.
type Result struct {
	Artifact   models.Artifact
	Produced   bool
	SkipReason string
}

const (
	skipCooldown     = "cooldown"
	skipEmptyContext = "empty_context"
)

// Run executes cmd for userID in convID. Provider errors match
// llm.ErrProviderFailure and leave no artifact behind.
func (o *Orchestrator) Run(ctx context.Context, convID, userID string, cmd models.ArtifactType) (Result, error) {
	if !cmd.Valid() {
		return Result{}, fmt.Errorf("command %q: %w", cmd, models.ErrInvalidArgument)
	}
	if cmd == models.ArtifactSummary {
		unlock := o.summary.lock(convID + "|" + userID)
		defer unlock()
	}
	return o.run(ctx, convID, userID, cmd)
}

func (o *Orchestrator) run(ctx context.Context, convID, userID string, cmd models.ArtifactType) (Result, error) {
	tr := telemetry.Track("ai.run." + string(cmd))
	defer tr.Finish()

	if cmd == models.ArtifactSummary && o.opts.SummaryCooldown > 0 {
		last, ok, err := o.store.LatestArtifact(convID, userID, cmd)
		if err != nil {
			return Result{}, err
		}
		if ok && o.clock.Now().UnixNano()-last.CreatedTS < o.opts.SummaryCooldown.Nanoseconds() {
			return o.skip(convID, userID, cmd, skipCooldown), nil
		}
	}
	tr.Mark("cooldown")

	lines, err := o.contextFor(convID, userID, cmd)
	if err != nil {
		return Result{}, err
	}
	if len(lines) == 0 {
		return o.skip(convID, userID, cmd, skipEmptyContext), nil
	}
	tr.Mark("context")

	prompt, err := BuildPrompt(cmd, lines)
	if err != nil {
		return Result{}, err
	}
	out, err := o.provider.Generate(ctx, prompt)
	if err == nil && strings.TrimSpace(out) == "" {
		err = fmt.Errorf("blank completion: %w", llm.ErrProviderFailure)
	}
	if err != nil {
		if !errors.Is(err, llm.ErrProviderFailure) {
			err = fmt.Errorf("%w: %v", llm.ErrProviderFailure, err)
		}
		logger.Error("ai_command_failed", "conversation_id", convID, "user_id", userID, "command", cmd, "error", err)
		return Result{}, err
	}
	tr.Mark("generate")

	a, err := o.store.InsertArtifact(models.Artifact{
		ConversationID: convID,
		UserID:         userID,
		Type:           cmd,
		Content:        strings.TrimSpace(out),
		Metadata:       models.ArtifactMetadata{MessageCount: len(lines)},
	})
	if err != nil {
		return Result{}, err
	}
	telemetry.ArtifactsWritten.WithLabelValues(string(cmd)).Inc()
	logger.Info("ai_artifact_written", "conversation_id", convID, "user_id", userID, "type", cmd, "messages", len(lines))
	return Result{Artifact: a, Produced: true}, nil
}

func (o *Orchestrator) skip(convID, userID string, cmd models.ArtifactType, reason string) Result {
	telemetry.AISkipped.WithLabelValues(reason).Inc()
	logger.Debug("ai_command_skipped", "conversation_id", convID, "user_id", userID, "command", cmd, "reason", reason)
	return Result{SkipReason: reason}
}

// contextFor takes the newest ContextLimit messages, oldest first, and
// drops deleted and system ones. Replies additionally drop the requester's
// own messages, so a chatty requester gets a shorter context.
func (o *Orchestrator) contextFor(convID, userID string, cmd models.ArtifactType) ([]ContextLine, error) {
	window, err := o.store.LatestMessages(convID, o.opts.ContextLimit, nil)
	if err != nil {
		return nil, err
	}
	msgs := window[:0]
	for _, m := range window {
		if m.Deleted || m.Kind == models.MessageSystem {
			continue
		}
		if cmd == models.ArtifactReply && m.SenderID == userID {
			continue
		}
		msgs = append(msgs, m)
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.SenderID)
	}
	users, err := o.store.GetUsers(ids)
	if err != nil {
		return nil, err
	}
	lines := make([]ContextLine, 0, len(msgs))
	for _, m := range msgs {
		name := models.UnknownSenderName
		if u, ok := users[m.SenderID]; ok {
			name = u.Name
		}
		lines = append(lines, ContextLine{SenderID: m.SenderID, SenderName: name, Content: m.Content, CreatedTS: m.CreatedTS})
	}
	return lines, nil
}

// HandleJob runs an ai job for the requester recorded on it.
func (o *Orchestrator) HandleJob(ctx context.Context, j models.Job) error {
	_, err := o.Run(ctx, j.ConversationID, j.UserID, j.Command)
	return err
}

// GetArtifacts returns the caller's newest artifact per type.
func (o *Orchestrator) GetArtifacts(_ context.Context, convID, userID string) (map[models.ArtifactType]models.Artifact, error) {
	ok, err := o.store.IsMember(convID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user %s not in %s: %w", userID, convID, models.ErrUnauthorized)
	}
	return o.store.LatestArtifacts(convID, userID)
}
