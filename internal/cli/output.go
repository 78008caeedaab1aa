package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"starterlock/internal/api"
	"time"
)

type Output struct {
	format string
	w      io.Writer
}

func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
		return
	}
	o.printText(data)
}

func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		o.printJSON(map[string]string{"message": msg})
		return
	}
	fmt.Fprintln(o.w, msg)
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case api.Player:
		o.printPlayer(v)
	case api.PlayerList:
		for _, p := range v.Players {
			fmt.Fprintf(o.w, "%-16s locked=%-5t selected=%-5t online=%t\n", p.Name, p.Locked, p.Selected, p.Online)
		}
		fmt.Fprintf(o.w, "Showing %d of %d players (offset %d)\n", len(v.Players), v.Total, v.Offset)
	case api.BulkResponse:
		fmt.Fprintf(o.w, "Updated %d of %d online players\n", v.Succeeded, v.Total)
	case api.FlushResponse:
		fmt.Fprintf(o.w, "Flushed %d pending writes, %d failed\n", v.Flushed, v.Failed)
	case api.Health:
		fmt.Fprintf(o.w, "Status: %s\nCached players: %d (%d pending)\n", v.Status, v.CacheEntries, v.CacheDirty)
	default:
		o.printJSON(data)
	}
}

func (o *Output) printPlayer(p api.Player) {
	fmt.Fprintf(o.w, "Player: %s (%s)\n", p.Name, p.UUID)
	fmt.Fprintf(o.w, "Online: %t\n", p.Online)
	fmt.Fprintf(o.w, "Locked: %t\n", p.Locked)
	if p.Locked {
		if p.LockReason != "" {
			fmt.Fprintf(o.w, "Reason: %s\n", p.LockReason)
		}
		if p.LockedBy != "" {
			fmt.Fprintf(o.w, "Locked by: %s\n", p.LockedBy)
		}
		if p.LockedAt != nil {
			fmt.Fprintf(o.w, "Locked at: %s\n", p.LockedAt.Format(time.DateTime))
		}
	}
	fmt.Fprintf(o.w, "Selected: %t\n", p.Selected)
	fmt.Fprintf(o.w, "Last seen: %s\n", p.LastSeen.Format(time.DateTime))
}
