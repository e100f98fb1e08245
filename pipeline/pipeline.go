// Package pipeline composes an ordered list of message-transformation stages
// and one terminal consumer into a single push-driven chain. Each Submit
// drives one envelope through every stage in order, synchronously, before
// returning; the terminal consumes without forwarding.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/ecarter/tagsync/envelope"
)

var ErrClosed = errors.New("pipeline is closed")

// Stage transforms one envelope and hands back the value to forward. It may
// mutate the envelope in place or replace it, but must produce exactly one
// value per input.
type Stage interface {
	Name() string
	Apply(m *envelope.Message) (*envelope.Message, error)
}

// Terminal consumes the envelope at the end of the chain. Close releases any
// resources the terminal holds.
type Terminal interface {
	Consume(m *envelope.Message) error
	Close() error
}

// consumer is one element of the built chain.
type consumer interface {
	submit(m *envelope.Message) error
	close() error
}

// Pipeline is the assembled chain. Construction composes the elements
// right-to-left: the terminal is built first and each stage is bound to the
// next-built consumer.
type Pipeline struct {
	head   consumer
	closed bool
}

// New builds the chain [stages..., terminal].
func New(terminal Terminal, stages ...Stage) *Pipeline {
	var next consumer = &sink{terminal: terminal}
	for i := len(stages) - 1; i >= 0; i-- {
		next = &link{stage: stages[i], next: next}
	}
	return &Pipeline{head: next}
}

// Submit pushes one envelope through the chain. Synchronous and
// single-threaded: when it returns, every stage and the terminal have run.
// Stages must not re-enter their own pipeline.
func (p *Pipeline) Submit(m *envelope.Message) error {
	if p.closed {
		return ErrClosed
	}
	return p.head.submit(m)
}

// Close propagates the termination signal down the chain in order. Submit
// must not be called afterwards.
func (p *Pipeline) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return p.head.close()
}

type link struct {
	stage Stage
	next  consumer
}

func (l *link) submit(m *envelope.Message) error {
	out, err := l.stage.Apply(m)
	if err != nil {
		return fmt.Errorf("stage %s: %w", l.stage.Name(), err)
	}
	return l.next.submit(out)
}

func (l *link) close() error {
	return l.next.close()
}

type sink struct {
	terminal Terminal
}

func (s *sink) submit(m *envelope.Message) error {
	return s.terminal.Consume(m)
}

func (s *sink) close() error {
	return s.terminal.Close()
}

// StageFunc adapts a plain function into a Stage.
type StageFunc struct {
	name string
	fn   func(m *envelope.Message) (*envelope.Message, error)
}

func NewStageFunc(name string, fn func(m *envelope.Message) (*envelope.Message, error)) StageFunc {
	return StageFunc{name: name, fn: fn}
}

func (s StageFunc) Name() string { return s.name }

func (s StageFunc) Apply(m *envelope.Message) (*envelope.Message, error) {
	return s.fn(m)
}
