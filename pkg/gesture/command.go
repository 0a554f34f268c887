// Package gesture turns a noisy per-frame gesture classification stream into
// sparse, confirmed motion commands.
package gesture

import (
	"fmt"
	"strings"
)

// Command is a motion directive from the fixed wire vocabulary.
type Command string

const (
	Up         Command = "UP"
	Down       Command = "DOWN"
	Left       Command = "LEFT"
	Right      Command = "RIGHT"
	Forward    Command = "FORWARD"
	Back       Command = "BACK"
	Stop       Command = "STOP"
	Land       Command = "LAND"
	ReturnHome Command = "RETURN_HOME"
)

// Kind groups commands by how the executor runs them.
type Kind int

const (
	KindUnknown Kind = iota
	KindDirectional
	KindStop
	KindLand
	KindReturnHome
)

func (k Kind) String() string {
	switch k {
	case KindDirectional:
		return "directional"
	case KindStop:
		return "stop"
	case KindLand:
		return "land"
	case KindReturnHome:
		return "return_home"
	default:
		return "unknown"
	}
}

// All lists every known command.
var All = []Command{Up, Down, Left, Right, Forward, Back, Stop, Land, ReturnHome}

// Kind reports the command's execution kind.
func (c Command) Kind() Kind {
	switch c {
	case Up, Down, Left, Right, Forward, Back:
		return KindDirectional
	case Stop:
		return KindStop
	case Land:
		return KindLand
	case ReturnHome:
		return KindReturnHome
	default:
		return KindUnknown
	}
}

// Valid reports whether c is part of the vocabulary.
func (c Command) Valid() bool {
	return c.Kind() != KindUnknown
}

func (c Command) String() string {
	return string(c)
}

// ParseCommand normalizes a wire token (trim + upper-case) and validates it.
// The normalized token is returned even when it is not a known command.
func ParseCommand(s string) (Command, bool) {
	c := Command(strings.ToUpper(strings.TrimSpace(s)))
	return c, c.Valid()
}

// ClassID is a raw classifier output for one frame.
type ClassID int

// NoGesture marks a frame with no detected gesture.
const NoGesture ClassID = -1

// LabelMap resolves class ids to labels and labels to commands.
// Labels without a command mapping are dropped, never forwarded.
type LabelMap struct {
	labels   []string
	commands map[string]Command
}

// NewLabelMap builds a LabelMap. labels is indexed by class id.
func NewLabelMap(labels []string, commands map[string]string) (*LabelMap, error) {
	m := &LabelMap{
		labels:   append([]string(nil), labels...),
		commands: make(map[string]Command, len(commands)),
	}
	for label, raw := range commands {
		cmd, ok := ParseCommand(raw)
		if !ok {
			return nil, fmt.Errorf("label %q maps to unknown command %q", label, raw)
		}
		m.commands[label] = cmd
	}
	return m, nil
}

// Label returns the label for id, or "" when id is out of range.
func (m *LabelMap) Label(id ClassID) string {
	if id < 0 || int(id) >= len(m.labels) {
		return ""
	}
	return m.labels[id]
}

// ClassOf returns the class id for label, or NoGesture.
func (m *LabelMap) ClassOf(label string) ClassID {
	for i, l := range m.labels {
		if strings.EqualFold(l, label) {
			return ClassID(i)
		}
	}
	return NoGesture
}

// Command returns the command mapped to id's label.
func (m *LabelMap) Command(id ClassID) (Command, bool) {
	cmd, ok := m.commands[m.Label(id)]
	return cmd, ok
}
