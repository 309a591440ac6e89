// Package script runs ad tech reporting logic in an isolated JavaScript VM.
package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog/log"

	"ad-reporting-engine/internal/reporting"
)

// Engine executes reportResult and reportWin. Each call gets a fresh VM, so
// scripts never share state.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Execute runs in.Script and calls its reporting entry point. Cancelling ctx
// interrupts the VM and yields reporting.ErrTimedOut.
func (e *Engine) Execute(ctx context.Context, in reporting.ScriptInput) (reporting.ScriptResult, error) {
	vm := goja.New()
	var beacons *beaconRecorder
	if in.BeaconsEnabled {
		beacons = &beaconRecorder{vm: vm, max: in.MaxBeaconsPerAdTech}
		if err := vm.Set("registerAdBeacon", beacons.register); err != nil {
			return reporting.ScriptResult{}, err
		}
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-stop:
		}
	}()

	start := time.Now()
	ret, err := e.invoke(vm, in)
	log.Debug().Str("function", in.Kind.FunctionName()).Dur("elapsed", time.Since(start)).Err(err).Msg("reporting script executed")
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return reporting.ScriptResult{}, fmt.Errorf("%w: %s interrupted", reporting.ErrTimedOut, in.Kind.FunctionName())
		}
		return reporting.ScriptResult{}, err
	}

	res, err := decodeResult(ret)
	if err != nil {
		return reporting.ScriptResult{}, err
	}
	if beacons != nil {
		res.Beacons = beacons.entries
	}
	return res, nil
}

func (e *Engine) invoke(vm *goja.Runtime, in reporting.ScriptInput) (goja.Value, error) {
	if _, err := vm.RunString(in.Script); err != nil {
		return nil, fmt.Errorf("loading script: %w", err)
	}
	name := in.Kind.FunctionName()
	fn, ok := goja.AssertFunction(vm.Get(name))
	if !ok {
		return nil, fmt.Errorf("script does not define %s", name)
	}
	args, err := arguments(vm, in)
	if err != nil {
		return nil, err
	}
	ret, err := fn(goja.Undefined(), args...)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", name, err)
	}
	return ret, nil
}

func arguments(vm *goja.Runtime, in reporting.ScriptInput) ([]goja.Value, error) {
	contextual, err := contextualSignals(vm, in.ContextualSignals)
	if err != nil {
		return nil, err
	}
	if in.Kind == reporting.ScriptReportResult {
		cfg, err := jsonValue(vm, in.Config)
		if err != nil {
			return nil, err
		}
		return []goja.Value{cfg, vm.ToValue(in.RenderURI), vm.ToValue(in.Bid), contextual}, nil
	}

	vals := make([]goja.Value, 0, 5)
	for _, raw := range []string{in.AdSelectionSignals, in.PerBuyerSignals, in.SignalsForBuyer} {
		v, err := parseJSON(vm, raw)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	vals = append(vals, contextual)
	ca := goja.Null()
	if in.CustomAudience != nil {
		ca, err = jsonValue(vm, customAudienceReportingSignals{
			Owner:              in.CustomAudience.Owner,
			Buyer:              in.CustomAudience.Buyer,
			Name:               in.CustomAudience.Name,
			ActivationTime:     in.CustomAudience.ActivationTime.UnixMilli(),
			ExpirationTime:     in.CustomAudience.ExpirationTime.UnixMilli(),
			UserBiddingSignals: json.RawMessage(orEmptyObject(in.CustomAudience.UserBiddingSignals)),
		})
		if err != nil {
			return nil, err
		}
	}
	return append(vals, ca), nil
}

type customAudienceReportingSignals struct {
	Owner              string          `json:"owner"`
	Buyer              string          `json:"buyer"`
	Name               string          `json:"name"`
	ActivationTime     int64           `json:"activation_time"`
	ExpirationTime     int64           `json:"expiration_time"`
	UserBiddingSignals json.RawMessage `json:"user_bidding_signals"`
}

func contextualSignals(vm *goja.Runtime, s reporting.ContextualSignals) (goja.Value, error) {
	v, err := parseJSON(vm, s.JSON)
	if err != nil {
		return nil, err
	}
	if s.DataVersion != nil {
		if obj, ok := v.(*goja.Object); ok {
			if err := obj.Set("dataVersion", *s.DataVersion); err != nil {
				return nil, err
			}
		}
	}
	return v, nil
}

func orEmptyObject(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}

func jsonValue(vm *goja.Runtime, v any) (goja.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return parseJSON(vm, string(b))
}

func parseJSON(vm *goja.Runtime, raw string) (goja.Value, error) {
	parse, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
	if !ok {
		return nil, errors.New("JSON.parse unavailable")
	}
	v, err := parse(goja.Undefined(), vm.ToValue(orEmptyObject(raw)))
	if err != nil {
		return nil, fmt.Errorf("invalid json argument: %w", err)
	}
	return v, nil
}

// decodeResult reads {status, results: {reporting_uri, signals_for_buyer}}.
// Fields placed at the top level are accepted too.
func decodeResult(ret goja.Value) (reporting.ScriptResult, error) {
	if ret == nil || goja.IsUndefined(ret) || goja.IsNull(ret) {
		return reporting.ScriptResult{}, errors.New("script returned no result")
	}
	out, ok := ret.Export().(map[string]any)
	if !ok {
		return reporting.ScriptResult{}, fmt.Errorf("script returned %T, want object", ret.Export())
	}
	var res reporting.ScriptResult
	switch s := out["status"].(type) {
	case int64:
		res.Status = int(s)
	case float64:
		res.Status = int(s)
	default:
		return reporting.ScriptResult{}, fmt.Errorf("script result status %v is not a number", out["status"])
	}
	fields := out
	if results, ok := out["results"].(map[string]any); ok {
		fields = results
	}
	if uri, ok := fields["reporting_uri"].(string); ok {
		res.ReportingURI = uri
	}
	switch s := fields["signals_for_buyer"].(type) {
	case string:
		res.SignalsForBuyer = s
	case nil:
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return reporting.ScriptResult{}, fmt.Errorf("encoding signals_for_buyer: %w", err)
		}
		res.SignalsForBuyer = string(b)
	}
	return res, nil
}
