package script

import (
	"github.com/dop251/goja"

	"ad-reporting-engine/internal/reporting"
)

// beaconRecorder backs the registerAdBeacon global. It may be called once
// per script run with a plain object of event name to uri.
type beaconRecorder struct {
	vm      *goja.Runtime
	max     int64
	called  bool
	entries []reporting.InteractionBeacon
}

func (b *beaconRecorder) register(call goja.FunctionCall) goja.Value {
	if b.called {
		panic(b.vm.NewTypeError("registerAdBeacon may only be called once"))
	}
	b.called = true

	obj, ok := call.Argument(0).(*goja.Object)
	if !ok || obj.ClassName() != "Object" {
		panic(b.vm.NewTypeError("registerAdBeacon expects an object of interaction keys to uris"))
	}
	// entries past the cap are dropped in declaration order
	keys := obj.Keys()
	if b.max > 0 && int64(len(keys)) > b.max {
		keys = keys[:b.max]
	}
	entries := make([]reporting.InteractionBeacon, 0, len(keys))
	for _, k := range keys {
		v := obj.Get(k)
		if _, isString := v.Export().(string); !isString {
			panic(b.vm.NewTypeError("registerAdBeacon: uri for %q is not a string", k))
		}
		entries = append(entries, reporting.InteractionBeacon{Key: k, URI: v.String()})
	}
	b.entries = entries
	return goja.Undefined()
}
