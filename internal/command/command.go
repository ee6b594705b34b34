// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package command maps a parsed protocol.Frame to one of the three
// recognised verbs and applies it against a storage engine, via Go's
// switch-on-string dispatch.
package command

import (
	"fmt"
	"strings"

	"github.com/nishisan-dev/keydb/internal/protocol"
	"github.com/nishisan-dev/keydb/internal/store"
)

// Kind tags which verb a Command carries.
type Kind int

const (
	// KindGet is a GET key command.
	KindGet Kind = iota
	// KindSet is a SET key value command.
	KindSet
	// KindUnknown is any other verb; Name holds the verb, lowercased.
	KindUnknown
)

// Command is a parsed, ready-to-apply client request.
type Command struct {
	Kind  Kind
	Key   string
	Value []byte
	Name  string // populated for KindUnknown
}

// FromFrame constructs a Command from a parsed frame. The frame's first
// element is the case-insensitive verb; recognised verbs are parsed with
// their own arity rules, unrecognised verbs bypass the Finish() check
// and produce an Unknown command carrying only the verb (the remaining
// arguments are never read, so trailing arguments are not an error for
// an unknown verb).
func FromFrame(frame protocol.Frame) (Command, error) {
	p, err := protocol.NewParser(frame)
	if err != nil {
		return Command{}, err
	}

	verb, err := p.NextString()
	if err != nil {
		return Command{}, err
	}
	verb = strings.ToLower(verb)

	switch verb {
	case "get":
		return parseGet(p)
	case "set":
		return parseSet(p)
	default:
		return Command{Kind: KindUnknown, Name: verb}, nil
	}
}

func parseGet(p *protocol.Parser) (Command, error) {
	key, err := p.NextString()
	if err != nil {
		return Command{}, err
	}
	if err := p.Finish(); err != nil {
		return Command{}, err
	}
	return Command{Kind: KindGet, Key: key}, nil
}

func parseSet(p *protocol.Parser) (Command, error) {
	key, err := p.NextString()
	if err != nil {
		return Command{}, err
	}
	value, err := p.NextBytes()
	if err != nil {
		return Command{}, err
	}
	if err := p.Finish(); err != nil {
		return Command{}, err
	}
	return Command{Kind: KindSet, Key: key, Value: value}, nil
}

// Apply executes the command's side effect against engine and returns
// exactly one reply frame. Store errors are converted to Error frames
// rather than returned, so the dispatcher always has a reply to write.
func Apply(engine store.Engine, cmd Command) protocol.Frame {
	switch cmd.Kind {
	case KindGet:
		value, ok, err := engine.Get(cmd.Key)
		if err != nil {
			return protocol.NewError(err.Error())
		}
		if !ok {
			return protocol.NewNull()
		}
		return protocol.NewBulk(value)
	case KindSet:
		if err := engine.Set(cmd.Key, cmd.Value); err != nil {
			return protocol.NewError(err.Error())
		}
		return protocol.NewSimple("OK")
	case KindUnknown:
		return protocol.NewError(fmt.Sprintf("ERR unknown command '%s'", cmd.Name))
	default:
		return protocol.NewError("ERR internal command dispatch error")
	}
}
