package game

import (
	"context"
	"errors"
	"fmt"
	"starterlock/internal/domain"
	"starterlock/internal/service"
	"strings"
	"time"

	"github.com/df-mc/dragonfly/server/cmd"
	"github.com/df-mc/dragonfly/server/player"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Admin interface {
	Lock(ctx context.Context, actor domain.PlayerIdentity, name, reason string) (*domain.PlayerRecord, error)
	Unlock(ctx context.Context, actor domain.PlayerIdentity, name string) (*domain.PlayerRecord, error)
	Status(ctx context.Context, name string) (*service.PlayerStatus, error)
	LockAll(ctx context.Context, actor domain.PlayerIdentity, reason string) (service.BulkResult, error)
	UnlockAll(ctx context.Context, actor domain.PlayerIdentity) (service.BulkResult, error)
	Reload(ctx context.Context, actor domain.PlayerIdentity) error
	Flush(ctx context.Context) service.FlushResult
}

type Operators interface {
	IsOperator(id uuid.UUID, name string) bool
}

type commandDeps struct {
	admin      Admin
	operators  Operators
	sessions   *Sessions
	dispatcher Dispatcher
	logger     zerolog.Logger
}

// RegisterCommands registers /starter with dragonfly's command registry.
func RegisterCommands(admin Admin, operators Operators, sessions *Sessions, dispatcher Dispatcher, logger zerolog.Logger) {
	b := base{deps: &commandDeps{
		admin:      admin,
		operators:  operators,
		sessions:   sessions,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "command").Logger(),
	}}

	cmd.Register(cmd.New("starter", "Manage starter selection locks.", []string{"sl"},
		lockCommand{base: b},
		unlockCommand{base: b},
		statusCommand{base: b},
		lockAllCommand{base: b},
		unlockAllCommand{base: b},
		reloadCommand{base: b},
		flushCommand{base: b},
	))
}

// base carries the dependencies of every /starter runnable. It is unexported
// so dragonfly does not treat it as a parameter.
type base struct {
	deps *commandDeps
}

// Allow lets the console through and limits players to the operator list.
func (b base) Allow(src cmd.Source) bool {
	p, ok := src.(*player.Player)
	if !ok {
		return true
	}
	return b.deps.operators.IsOperator(p.UUID(), p.Name())
}

func actorOf(src cmd.Source) domain.PlayerIdentity {
	if p, ok := src.(*player.Player); ok {
		return domain.PlayerIdentity{ID: p.UUID(), Name: p.Name()}
	}
	return service.Console
}

// async runs fn on the worker pool and sends its result back to the actor,
// which keeps store access off the world transaction.
func (b base) async(src cmd.Source, o *cmd.Output, name string, fn func(ctx context.Context, actor domain.PlayerIdentity) string) {
	actor := actorOf(src)
	ok := b.deps.dispatcher.Submit("command_"+name, func(ctx context.Context) {
		b.reply(actor, fn(ctx, actor))
	})
	if !ok {
		o.Error("The server is busy, try again shortly.")
		return
	}
	o.Printf("Running %s...", name)
}

func (b base) reply(actor domain.PlayerIdentity, message string) {
	if actor.ID != uuid.Nil && b.deps.sessions.Notify(actor.ID, message) {
		return
	}
	b.deps.logger.Info().Str("actor", actor.Name).Msg(message)
}

type lockCommand struct {
	base
	Sub    cmd.SubCommand            `cmd:"lock"`
	Player string                    `cmd:"player"`
	Reason cmd.Optional[cmd.Varargs] `cmd:"reason"`
}

func (c lockCommand) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	reason, _ := c.Reason.Load()
	c.async(src, o, "lock", func(ctx context.Context, actor domain.PlayerIdentity) string {
		return lockResult(c.deps.admin.Lock(ctx, actor, c.Player, strings.TrimSpace(string(reason))))
	})
}

type unlockCommand struct {
	base
	Sub    cmd.SubCommand `cmd:"unlock"`
	Player string         `cmd:"player"`
}

func (c unlockCommand) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	c.async(src, o, "unlock", func(ctx context.Context, actor domain.PlayerIdentity) string {
		return lockResult(c.deps.admin.Unlock(ctx, actor, c.Player))
	})
}

type statusCommand struct {
	base
	Sub    cmd.SubCommand `cmd:"status"`
	Player string         `cmd:"player"`
}

func (c statusCommand) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	c.async(src, o, "status", func(ctx context.Context, _ domain.PlayerIdentity) string {
		status, err := c.deps.admin.Status(ctx, c.Player)
		if err != nil {
			return errorMessage(err)
		}
		return formatStatus(status)
	})
}

type lockAllCommand struct {
	base
	Sub    cmd.SubCommand            `cmd:"lockall"`
	Reason cmd.Optional[cmd.Varargs] `cmd:"reason"`
}

func (c lockAllCommand) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	reason, _ := c.Reason.Load()
	c.async(src, o, "lockall", func(ctx context.Context, actor domain.PlayerIdentity) string {
		r, err := c.deps.admin.LockAll(ctx, actor, strings.TrimSpace(string(reason)))
		return bulkResult("Locked", r, err)
	})
}

type unlockAllCommand struct {
	base
	Sub cmd.SubCommand `cmd:"unlockall"`
}

func (c unlockAllCommand) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	c.async(src, o, "unlockall", func(ctx context.Context, actor domain.PlayerIdentity) string {
		r, err := c.deps.admin.UnlockAll(ctx, actor)
		return bulkResult("Unlocked", r, err)
	})
}

type reloadCommand struct {
	base
	Sub cmd.SubCommand `cmd:"reload"`
}

func (c reloadCommand) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	c.async(src, o, "reload", func(ctx context.Context, actor domain.PlayerIdentity) string {
		if err := c.deps.admin.Reload(ctx, actor); err != nil {
			return errorMessage(err)
		}
		return "Settings reloaded."
	})
}

type flushCommand struct {
	base
	Sub cmd.SubCommand `cmd:"flush"`
}

func (c flushCommand) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	c.async(src, o, "flush", func(ctx context.Context, _ domain.PlayerIdentity) string {
		r := c.deps.admin.Flush(ctx)
		return fmt.Sprintf("Flushed %d pending writes, %d failed.", r.Flushed, r.Failed)
	})
}

func lockResult(record *domain.PlayerRecord, err error) string {
	if err != nil {
		return errorMessage(err)
	}
	if record.Locked {
		return fmt.Sprintf("Locked starter selection for %s.", record.Name)
	}
	return fmt.Sprintf("Unlocked starter selection for %s.", record.Name)
}

func bulkResult(verb string, r service.BulkResult, err error) string {
	if err != nil {
		return errorMessage(err)
	}
	return fmt.Sprintf("%s %d of %d online players.", verb, r.Succeeded, r.Total)
}

func errorMessage(err error) string {
	if errors.Is(err, service.ErrPlayerNotFound) {
		return "Player not found."
	}
	return "Operation failed: " + err.Error()
}

func formatStatus(s *service.PlayerStatus) string {
	r := s.Record
	var b strings.Builder

	fmt.Fprintf(&b, "%s (%s)", r.Name, r.ID)
	if s.Online {
		b.WriteString(" [online]")
	}
	fmt.Fprintf(&b, "\nLocked: %t", r.Locked)
	if r.Locked && r.LockReason != "" {
		fmt.Fprintf(&b, " (%s)", r.LockReason)
	}
	if r.Locked && !r.LockedAt.IsZero() {
		fmt.Fprintf(&b, " since %s", r.LockedAt.Format(time.DateTime))
	}
	fmt.Fprintf(&b, "\nSelected: %t", r.Selected)
	fmt.Fprintf(&b, "\nFirst seen: %s", r.FirstSeen.Format(time.DateTime))
	fmt.Fprintf(&b, "\nLast seen: %s", r.LastSeen.Format(time.DateTime))
	return b.String()
}
