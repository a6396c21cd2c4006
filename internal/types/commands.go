package types

import "encoding/json"

// CommandKind names the actuator command variants.
type CommandKind string

const (
	CommandEmergencyStop      CommandKind = "emergency_stop"
	CommandReduceVelocity     CommandKind = "reduce_velocity"
	CommandSteeringCorrection CommandKind = "steering_correction"
	CommandMonitor            CommandKind = "monitor"
	CommandContinue           CommandKind = "continue"
)

// Command is a sealed sum type over the actuator commands. Only the
// variants declared in this file implement it.
type Command interface {
	Kind() CommandKind
	Reason() string
	isCommand()
}

type EmergencyStop struct {
	Why string
}

type ReduceVelocity struct {
	TargetVelocityMS float64
	Why              string
}

type SteeringCorrection struct {
	AngleDeg float64
	Why      string
}

type Monitor struct {
	Why string
}

type Continue struct {
	Why string
}

func (EmergencyStop) Kind() CommandKind      { return CommandEmergencyStop }
func (ReduceVelocity) Kind() CommandKind     { return CommandReduceVelocity }
func (SteeringCorrection) Kind() CommandKind { return CommandSteeringCorrection }
func (Monitor) Kind() CommandKind            { return CommandMonitor }
func (Continue) Kind() CommandKind           { return CommandContinue }

func (c EmergencyStop) Reason() string      { return c.Why }
func (c ReduceVelocity) Reason() string     { return c.Why }
func (c SteeringCorrection) Reason() string { return c.Why }
func (c Monitor) Reason() string            { return c.Why }
func (c Continue) Reason() string           { return c.Why }

func (EmergencyStop) isCommand()      {}
func (ReduceVelocity) isCommand()     {}
func (SteeringCorrection) isCommand() {}
func (Monitor) isCommand()            {}
func (Continue) isCommand()           {}

type commandWire struct {
	Type             CommandKind `json:"type"`
	Reason           string      `json:"reason"`
	Immediate        bool        `json:"immediate,omitempty"`
	TargetVelocityMS *float64    `json:"target_velocity_m_s,omitempty"`
	AngleDeg         *float64    `json:"angle_deg,omitempty"`
}

func (c EmergencyStop) MarshalJSON() ([]byte, error) {
	return json.Marshal(commandWire{Type: c.Kind(), Reason: c.Why, Immediate: true})
}

func (c ReduceVelocity) MarshalJSON() ([]byte, error) {
	v := c.TargetVelocityMS
	return json.Marshal(commandWire{Type: c.Kind(), Reason: c.Why, TargetVelocityMS: &v})
}

func (c SteeringCorrection) MarshalJSON() ([]byte, error) {
	a := c.AngleDeg
	return json.Marshal(commandWire{Type: c.Kind(), Reason: c.Why, AngleDeg: &a})
}

func (c Monitor) MarshalJSON() ([]byte, error) {
	return json.Marshal(commandWire{Type: c.Kind(), Reason: c.Why})
}

func (c Continue) MarshalJSON() ([]byte, error) {
	return json.Marshal(commandWire{Type: c.Kind(), Reason: c.Why})
}

// CommandKinds lists the kinds of cmds in order.
func CommandKinds(cmds []Command) []CommandKind {
	out := make([]CommandKind, len(cmds))
	for i, c := range cmds {
		out[i] = c.Kind()
	}
	return out
}
