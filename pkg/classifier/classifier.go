// Package classifier defines the per-frame gesture classifier the pipeline
// consumes, plus a replay implementation driven by a label script.
package classifier

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/teslashibe/go-gesture/pkg/gesture"
)

// Classifier returns one class id per frame. io.EOF ends the stream; any
// other error affects only the current frame.
type Classifier interface {
	Classify(ctx context.Context) (gesture.ClassID, error)
}

// ErrUnknownLabel is returned for a script label missing from the label table.
var ErrUnknownLabel = errors.New("classifier: unknown label")

// Replay plays back a script with one frame per line:
//
//	Up        one frame of "Up"
//	Up*6      six frames of "Up"
//	-         one frame with no gesture
//	# text    comment, skipped
type Replay struct {
	sc     *bufio.Scanner
	labels *gesture.LabelMap

	pending gesture.ClassID
	repeat  int
	line    int
}

// NewReplay creates a Replay reading from r.
func NewReplay(r io.Reader, labels *gesture.LabelMap) *Replay {
	return &Replay{sc: bufio.NewScanner(r), labels: labels}
}

// Classify returns the next frame's class id.
func (p *Replay) Classify(ctx context.Context) (gesture.ClassID, error) {
	if err := ctx.Err(); err != nil {
		return gesture.NoGesture, err
	}
	if p.repeat > 0 {
		p.repeat--
		return p.pending, nil
	}

	for p.sc.Scan() {
		p.line++
		text := strings.TrimSpace(p.sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		label, count := text, 1
		if i := strings.LastIndexByte(text, '*'); i > 0 {
			n, err := strconv.Atoi(strings.TrimSpace(text[i+1:]))
			if err != nil || n < 1 {
				return gesture.NoGesture, fmt.Errorf("classifier: line %d: bad repeat %q", p.line, text)
			}
			label, count = strings.TrimSpace(text[:i]), n
		}

		id := gesture.NoGesture
		if label != "-" {
			id = p.labels.ClassOf(label)
			if id == gesture.NoGesture {
				return gesture.NoGesture, fmt.Errorf("line %d: %w %q", p.line, ErrUnknownLabel, label)
			}
		}
		p.pending = id
		p.repeat = count - 1
		return id, nil
	}

	if err := p.sc.Err(); err != nil {
		return gesture.NoGesture, err
	}
	return gesture.NoGesture, io.EOF
}
