// Package simulator implements initialization and per-step evaluation of a
// compiled SimulationPlan (spec §4.8, §4.9, component I). Grounded on the
// teacher's ExecutionPlanner/graph traversal idiom — walk a precomputed
// order, evaluate each node, write results into a shared store — adapted
// from one-shot workflow execution to a repeatable, deterministic Euler
// step over a numeric state vector.
package simulator

import (
	"github.com/expr-lang/expr"
	"github.com/rs/zerolog/log"

	"github.com/smilemakc/stockflow/internal/domain"
	"github.com/smilemakc/stockflow/internal/plan"
	"github.com/smilemakc/stockflow/internal/utils"
)

// Overrides maps an object's variable_index to a value that wins over its
// formula result during initialization (spec §4.8: "override wins, with
// type coercion").
type Overrides map[int]float64

// Simulator runs a single SimulationPlan deterministically. A Simulator is
// safe to use from one goroutine at a time; the plan itself may be shared
// by many concurrently running Simulators (spec §5).
type Simulator struct {
	plan *plan.SimulationPlan
}

// New builds a Simulator for a compiled plan.
func New(p *plan.SimulationPlan) *Simulator {
	return &Simulator{plan: p}
}

// Init allocates and evaluates the initial state (spec §4.8). time and
// timeDelta default to 0 and 1 respectively when zero-valued, matching the
// spec's "plan.initial_time or 0" / "plan.time_delta or 1" fallback when the
// plan carries no Simulation node.
func (sim *Simulator) Init(time, timeDelta float64, overrides Overrides) (plan.SimulationState, error) {
	p := sim.plan
	if timeDelta == 0 {
		if p.Parameters != nil && p.Parameters.TimeDelta != 0 {
			timeDelta = p.Parameters.TimeDelta
		} else {
			timeDelta = 1
		}
	}
	if time == 0 && p.Parameters != nil {
		time = p.Parameters.InitialTime
	}

	state := plan.SimulationState{
		Values:    make([]float64, len(p.StateVariables)),
		Time:      time,
		TimeDelta: timeDelta,
		Step:      0,
	}
	state.Values[p.Builtins.Time] = time
	state.Values[p.Builtins.TimeDelta] = timeDelta
	state.Values[p.Builtins.SimulationStep] = 0

	for _, obj := range p.Objects {
		// Smooth seeds its running average from its input before its own
		// output slot is written: evaluate() for a Smooth object reads
		// StateIndex, which is still zero until seeded here, so seeding must
		// happen first or the initial state reports 0 instead of the seeded
		// average.
		if obj.Computation.Kind == plan.ComputationSmooth {
			input := 0.0
			if obj.Computation.InputIndex >= 0 {
				input = state.Values[obj.Computation.InputIndex]
			}
			state.Values[obj.Computation.StateIndex] = input
		}

		val, err := sim.evaluate(obj, state)
		if err != nil {
			return plan.SimulationState{}, err
		}
		if ov, ok := overrides[obj.VariableIndex]; ok {
			val = ov
		}
		state.Values[obj.VariableIndex] = val

		if obj.Computation.Kind == plan.ComputationDelay {
			base := obj.Computation.QueueBaseIndex
			for i := 0; i <= obj.Computation.DelayDuration; i++ {
				state.Values[base+i] = obj.Computation.InitialValue
			}
		}
	}

	return state, nil
}

// Step advances the state by one Δt following the five-phase order in spec
// §4.9: non-stock evaluation, non-negativity adjustment, Euler integration,
// stateful-internal advancement, builtin write-back.
func (sim *Simulator) Step(s plan.SimulationState) (plan.SimulationState, error) {
	p := sim.plan
	dt := s.TimeDelta
	next := s.Clone()

	// 1. Non-stock computed values, in computation order.
	for _, obj := range p.Objects {
		if isStock(p, obj.VariableIndex) {
			continue
		}
		val, err := sim.evaluate(obj, next)
		if err != nil {
			return plan.SimulationState{}, err
		}
		next.Values[obj.VariableIndex] = val
	}

	// 2. Non-negativity flow adjustment.
	adjusted := make([]float64, len(p.Flows))
	for i, fl := range p.Flows {
		raw := next.Values[fl.VariableIndex]
		if raw < 0 {
			raw = 0
		}
		adjusted[i] = raw
	}
	for _, st := range p.Stocks {
		if st.AllowsNegative {
			continue
		}
		sumOut := sumIndices(adjusted, st.OutflowFlowIndices)
		if sumOut <= 0 {
			continue
		}
		var budget float64
		switch p.Scaling {
		case plan.InflowFirst:
			budget = next.Values[st.VariableIndex]/dt + sumIndices(adjusted, st.InflowFlowIndices)
		default: // plan.OutflowFirst
			budget = next.Values[st.VariableIndex] / dt
		}
		if sumOut > budget {
			factor := 0.0
			if budget > 0 {
				factor = budget / sumOut
			}
			for _, idx := range st.OutflowFlowIndices {
				adjusted[idx] *= factor
			}
			log.Debug().Str("stock", st.ObjectID.String()).Float64("budget", budget).
				Float64("requested", sumOut).Float64("factor", factor).Msg("step: outflow clamped")
		}
	}
	// The adjusted values are what actually flowed this step; write them
	// back so charts, inspection, and any downstream reader of a flow's own
	// slot see the clamped rate rather than the pre-clamp formula result.
	for i, fl := range p.Flows {
		next.Values[fl.VariableIndex] = adjusted[i]
	}

	// 3. Euler integration.
	for _, st := range p.Stocks {
		derivative := (sumIndices(adjusted, st.InflowFlowIndices) - sumIndices(adjusted, st.OutflowFlowIndices)) * dt
		v := s.Values[st.VariableIndex] + derivative
		if !st.AllowsNegative && v < 0 {
			v = 0
		}
		next.Values[st.VariableIndex] = v
	}

	// 4. Advance stateful internals. A Delay's own slot is re-read from its
	// ring buffer's new head after rotation, not before: the queue holds
	// duration+1 slots, and the entry pushed during step k only reaches the
	// head on step k+duration's rotation, which is the step whose output
	// must show it (spec §8 scenario 7: duration d, steps [1..d] emit the
	// initial value, step d+1 emits the input).
	for _, obj := range p.Objects {
		switch obj.Computation.Kind {
		case plan.ComputationDelay:
			advanceDelay(next, obj.Computation)
			next.Values[obj.VariableIndex] = next.Values[obj.Computation.QueueBaseIndex]
		case plan.ComputationSmooth:
			advanceSmooth(next, obj.Computation, dt)
		}
	}

	// 5. Builtins.
	next.Time = s.Time + dt
	next.Step = s.Step + 1
	next.Values[p.Builtins.Time] = next.Time
	next.Values[p.Builtins.TimeDelta] = dt
	next.Values[p.Builtins.SimulationStep] = float64(next.Step)

	log.Debug().Int("step", next.Step).Float64("time", next.Time).Msg("step: complete")
	return next, nil
}

func isStock(p *plan.SimulationPlan, variableIndex int) bool {
	for _, st := range p.Stocks {
		if st.VariableIndex == variableIndex {
			return true
		}
	}
	return false
}

func sumIndices(values []float64, indices []int) float64 {
	var total float64
	for _, i := range indices {
		total += values[i]
	}
	return total
}

func advanceDelay(s plan.SimulationState, c plan.Computation) {
	base := c.QueueBaseIndex
	n := c.DelayDuration + 1
	input := 0.0
	if c.InputIndex >= 0 {
		input = s.Values[c.InputIndex]
	}
	for i := 0; i < n-1; i++ {
		s.Values[base+i] = s.Values[base+i+1]
	}
	s.Values[base+n-1] = input
}

func advanceSmooth(s plan.SimulationState, c plan.Computation, dt float64) {
	input := 0.0
	if c.InputIndex >= 0 {
		input = s.Values[c.InputIndex]
	}
	avg := s.Values[c.StateIndex]
	window := utils.DefaultValue(c.WindowTime, 1)
	s.Values[c.StateIndex] = avg + (input-avg)*(dt/window)
}

func (sim *Simulator) evaluate(obj plan.SimulationObject, s plan.SimulationState) (float64, error) {
	switch obj.Computation.Kind {
	case plan.ComputationFormula:
		return sim.runFormula(obj, s)
	case plan.ComputationGraphicalFunction:
		x := 0.0
		if obj.Computation.InputIndex >= 0 {
			x = s.Values[obj.Computation.InputIndex]
		}
		return sampleGraphicalFunction(obj.Computation.Points, obj.Computation.Interpolation, x), nil
	case plan.ComputationDelay:
		return s.Values[obj.Computation.QueueBaseIndex], nil
	case plan.ComputationSmooth:
		return s.Values[obj.Computation.StateIndex], nil
	default:
		return 0, domain.NewDomainError(domain.ErrCodeInternal, "unknown computation kind", nil)
	}
}

func (sim *Simulator) runFormula(obj plan.SimulationObject, s plan.SimulationState) (float64, error) {
	f := obj.Computation.Formula
	if f == nil {
		return 0, nil
	}
	env := make(map[string]float64, len(f.Bindings))
	for _, b := range f.Bindings {
		env[b.Name] = s.Values[b.VariableIndex]
	}
	out, err := expr.Run(f.Program, env)
	if err != nil {
		return 0, domain.NewDomainError(domain.ErrCodeUnknownFunctionAtRun,
			"formula "+obj.Name+" failed at runtime: "+err.Error(), err)
	}
	switch v := out.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, domain.NewDomainError(domain.ErrCodeTypeMismatch,
			"formula "+obj.Name+" produced a non-numeric result", nil)
	}
}
