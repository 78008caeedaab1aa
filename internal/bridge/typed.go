package bridge

import "github.com/google/uuid"

type typedAdapter struct {
	host StarterHost
}

func newTypedAdapter(host StarterHost) *typedAdapter {
	return &typedAdapter{host: host}
}

func (a *typedAdapter) Name() string { return "typed" }

func (a *typedAdapter) SetSelectionBlocked(p Player, blocked bool) error {
	return a.host.SetStarterSelected(p.UUID(), blocked)
}

func (a *typedAdapter) RequestSelection(p Player) error {
	return a.host.RequestStarterSelection(p.UUID())
}

func (a *typedAdapter) Subscribe(h Hooks) error {
	events, ok := a.host.(StarterEvents)
	if !ok {
		return ErrUnsupported
	}
	if h.DataSynchronized != nil {
		events.OnDataSynchronized(func(id uuid.UUID) {
			h.DataSynchronized(playerID(id))
		})
	}
	if h.SelectionCompleted != nil {
		events.OnStarterChosen(h.SelectionCompleted)
	}
	return nil
}
