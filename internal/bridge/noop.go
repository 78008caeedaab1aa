package bridge

type noopAdapter struct{}

func NewNoop() Adapter { return noopAdapter{} }

func (noopAdapter) Name() string                          { return "noop" }
func (noopAdapter) SetSelectionBlocked(Player, bool) error { return ErrUnsupported }
func (noopAdapter) RequestSelection(Player) error          { return ErrUnsupported }
func (noopAdapter) Subscribe(Hooks) error                  { return ErrUnsupported }
