package game

import (
	"github.com/df-mc/dragonfly/server/player"
)

type Handler struct {
	player.NopHandler
	joiner *Joiner
}

func (h *Handler) HandleQuit(p *player.Player) {
	h.joiner.Quit(p.UUID())
}
