// Package handlers implements the HTTP endpoints over the domain
// services. Each handler resolves the acting user, decodes its input and
// maps service errors through router.WriteError.
package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/yz174/kliq/internal/retention"
	"github.com/yz174/kliq/pkg/ai"
	"github.com/yz174/kliq/pkg/api/router"
	"github.com/yz174/kliq/pkg/conversations"
	"github.com/yz174/kliq/pkg/jobs"
	"github.com/yz174/kliq/pkg/live"
	"github.com/yz174/kliq/pkg/messaging"
	"github.com/yz174/kliq/pkg/models"
	"github.com/yz174/kliq/pkg/presence"
	"github.com/yz174/kliq/pkg/search"
	"github.com/yz174/kliq/pkg/telemetry"
	"github.com/yz174/kliq/pkg/users"
)

// Store is the slice of the store the handlers read directly.
type Store interface {
	IsMember(convID, userID string) (bool, error)
	Stats() (map[string]int, error)
	Ready() bool
	Writes() uint64
}

type JobStats interface {
	Stats() jobs.Stats
}

type RetentionRunner interface {
	RunNow(ctx context.Context) (retention.Report, error)
}

type Deps struct {
	Store         Store
	Users         *users.Service
	Conversations *conversations.Service
	Messaging     *messaging.Service
	Presence      *presence.Tracker
	AI            *ai.Orchestrator
	Search        *search.Engine
	Hub           *live.Hub
	Jobs          JobStats
	Retention     RetentionRunner
	// PollTimeout bounds a live long-poll.
	PollTimeout time.Duration
	// Base parents every service call and long-poll; cancelled at shutdown.
	Base    context.Context
	Version string
}

type Handlers struct {
	Deps
}

func New(d Deps) *Handlers {
	if d.Base == nil {
		d.Base = context.Background()
	}
	if d.PollTimeout <= 0 {
		d.PollTimeout = 25 * time.Second
	}
	return &Handlers{Deps: d}
}

// begin starts a trace and resolves the acting user.
func begin(ctx *fasthttp.RequestCtx, op string) (string, *telemetry.Trace, bool) {
	tr := telemetry.Track("api." + op)
	userID, ok := router.RequireUser(ctx)
	if !ok {
		tr.Finish()
		return "", nil, false
	}
	return userID, tr, true
}

// stampVersion records the topic version before the read it guards, so a
// write racing the read is never missed by the next long-poll.
func (h *Handlers) stampVersion(ctx *fasthttp.RequestCtx, topic string) {
	ctx.Response.Header.Set("X-Live-Version", strconv.FormatUint(h.Hub.Version(topic), 10))
}

func (h *Handlers) requireMember(convID, userID string) error {
	ok, err := h.Store.IsMember(convID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %s not in %s: %w", userID, convID, models.ErrUnauthorized)
	}
	return nil
}
