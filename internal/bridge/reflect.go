package bridge

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	uuidType  = reflect.TypeOf(uuid.UUID{})
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// Accessor names probed on hosts that do not implement StarterHost, tried in
// order.
var (
	setSelectedNames  = []string{"SetStarterSelected", "SetSelectedStarter", "SetStarterChosen"}
	dataAccessorNames = []string{"PlayerData", "GenericData", "DataOf"}
	requestNames      = []string{"RequestStarterSelection", "PromptStarterSelection", "OpenStarterSelection"}
	chosenHookNames   = []string{"OnStarterChosen", "SubscribeStarterChosen"}
	syncHookNames     = []string{"OnDataSynchronized", "SubscribeDataSynchronized"}
)

// reflectAdapter drives a host whose type is unknown at compile time. The
// selected flag is set either directly on the host, as Set*(player, bool), or
// on a per-player data object returned by one of the accessor methods.
type reflectAdapter struct {
	setDirect reflect.Value
	accessor  reflect.Value
	request   reflect.Value
	chosen    reflect.Value
	synced    reflect.Value
	logger    zerolog.Logger
}

func newReflectAdapter(host any, logger zerolog.Logger) (*reflectAdapter, bool) {
	v := reflect.ValueOf(host)
	a := &reflectAdapter{
		setDirect: findMethod(v, setSelectedNames, 2),
		request:   findMethod(v, requestNames, 1),
		chosen:    findMethod(v, chosenHookNames, 1),
		synced:    findMethod(v, syncHookNames, 1),
		logger:    logger,
	}
	if !a.setDirect.IsValid() {
		a.accessor = findMethod(v, dataAccessorNames, 1)
	}
	if !a.setDirect.IsValid() && !a.accessor.IsValid() {
		return nil, false
	}

	logger.Debug().
		Bool("direct_setter", a.setDirect.IsValid()).
		Bool("data_accessor", a.accessor.IsValid()).
		Bool("request", a.request.IsValid()).
		Bool("chosen_hook", a.chosen.IsValid()).
		Bool("sync_hook", a.synced.IsValid()).
		Msg("starter mod accessors probed")
	return a, true
}

func (a *reflectAdapter) Name() string { return "reflect" }

func (a *reflectAdapter) SetSelectionBlocked(p Player, blocked bool) error {
	if a.setDirect.IsValid() {
		_, err := invoke(a.setDirect, p, blocked)
		return err
	}

	out, err := invoke(a.accessor, p)
	if err != nil {
		return err
	}
	if len(out) == 0 {
		return ErrUnsupported
	}

	data := out[0]
	if data.Kind() == reflect.Interface {
		data = data.Elem()
	}
	if !data.IsValid() || (data.Kind() == reflect.Ptr && data.IsNil()) {
		return fmt.Errorf("%w: no starter data for %s", ErrUnsupported, p.UUID())
	}

	set := findMethod(data, setSelectedNames, 1)
	if !set.IsValid() {
		return ErrUnsupported
	}
	_, err = invoke(set, blocked)
	return err
}

func (a *reflectAdapter) RequestSelection(p Player) error {
	if !a.request.IsValid() {
		return ErrUnsupported
	}
	_, err := invoke(a.request, p)
	return err
}

func (a *reflectAdapter) Subscribe(h Hooks) error {
	registered := 0

	if h.DataSynchronized != nil && a.synced.IsValid() {
		if err := a.hook(a.synced, h.DataSynchronized); err != nil {
			a.logger.Debug().Err(err).Msg("failed to subscribe to data sync")
		} else {
			registered++
		}
	}
	if h.SelectionCompleted != nil && a.chosen.IsValid() {
		chosen := h.SelectionCompleted
		if err := a.hook(a.chosen, func(p Player) { chosen(p.UUID()) }); err != nil {
			a.logger.Debug().Err(err).Msg("failed to subscribe to starter chosen")
		} else {
			registered++
		}
	}

	if registered == 0 {
		return ErrUnsupported
	}
	return nil
}

// hook registers fn through a subscribe method taking a one-argument
// callback. The callback argument is resolved to a player, or to its ID.
func (a *reflectAdapter) hook(subscribe reflect.Value, fn func(Player)) error {
	ft := subscribe.Type().In(0)
	if ft.Kind() != reflect.Func || ft.NumIn() != 1 {
		return fmt.Errorf("%w: unexpected callback type %s", ErrUnsupported, ft)
	}

	handler := reflect.MakeFunc(ft, func(args []reflect.Value) []reflect.Value {
		if p, ok := playerOf(args[0]); ok {
			fn(p)
		} else {
			a.logger.Debug().Str("type", ft.In(0).String()).Msg("could not resolve player from starter mod event")
		}

		out := make([]reflect.Value, ft.NumOut())
		for i := range out {
			out[i] = reflect.Zero(ft.Out(i))
		}
		return out
	})

	_, err := invoke(subscribe, handler)
	return err
}

func findMethod(v reflect.Value, names []string, arity int) reflect.Value {
	if !v.IsValid() {
		return reflect.Value{}
	}
	for _, name := range names {
		m := v.MethodByName(name)
		if m.IsValid() && m.Type().NumIn() == arity {
			return m
		}
	}
	return reflect.Value{}
}

// invoke calls m, converting each argument to the parameter type. A trailing
// non-nil error result and any panic are returned as errors.
func invoke(m reflect.Value, args ...any) (out []reflect.Value, err error) {
	mt := m.Type()
	if mt.NumIn() != len(args) {
		return nil, fmt.Errorf("%w: want %d arguments, have %d", ErrUnsupported, mt.NumIn(), len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		v, ok := argValue(arg, mt.In(i))
		if !ok {
			return nil, fmt.Errorf("%w: cannot pass %T as %s", ErrUnsupported, arg, mt.In(i))
		}
		in[i] = v
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("starter mod call panicked: %v", r)
		}
	}()

	out = m.Call(in)
	if n := mt.NumOut(); n > 0 && mt.Out(n-1).Implements(errorType) {
		if last := out[n-1]; !last.IsNil() {
			return out, last.Interface().(error)
		}
	}
	return out, nil
}

func argValue(arg any, t reflect.Type) (reflect.Value, bool) {
	switch a := arg.(type) {
	case reflect.Value:
		return a, a.Type().AssignableTo(t)
	case Player:
		switch {
		case t == uuidType:
			return reflect.ValueOf(a.UUID()), true
		case t.Kind() == reflect.String:
			return reflect.ValueOf(a.UUID().String()).Convert(t), true
		case reflect.TypeOf(a).AssignableTo(t):
			return reflect.ValueOf(a), true
		}
		return reflect.Value{}, false
	}

	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(t) {
		return v, true
	}
	if v.Type().ConvertibleTo(t) && v.Kind() == t.Kind() {
		return v.Convert(t), true
	}
	return reflect.Value{}, false
}

var playerType = reflect.TypeOf((*Player)(nil)).Elem()

func playerOf(v reflect.Value) (Player, bool) {
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if v.IsValid() && v.Type().Implements(playerType) {
		if (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) && v.IsNil() {
			return nil, false
		}
		return v.Interface().(Player), true
	}
	id, ok := idOf(v)
	if !ok {
		return nil, false
	}
	return playerID(id), true
}

// idOf extracts a player ID from an event argument: a UUID, its string form,
// or anything with a UUID() method.
func idOf(v reflect.Value) (uuid.UUID, bool) {
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() {
		return uuid.Nil, false
	}
	if (v.Kind() == reflect.Ptr || v.Kind() == reflect.Map) && v.IsNil() {
		return uuid.Nil, false
	}

	switch {
	case v.Type() == uuidType:
		return v.Interface().(uuid.UUID), true
	case v.Kind() == reflect.String:
		id, err := uuid.Parse(v.String())
		return id, err == nil
	}

	m := v.MethodByName("UUID")
	if m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() == 1 && m.Type().Out(0) == uuidType {
		return m.Call(nil)[0].Interface().(uuid.UUID), true
	}
	return uuid.Nil, false
}
