// Package action holds the namespaced action types dispatched through the client store.
package action

import "strings"

type Type string

type Action struct {
	Type    Type `json:"type"`
	Payload any  `json:"payload,omitempty"`
}

// MakeActionsType returns a constructor of action types namespaced by prefix.
func MakeActionsType(prefix string) func(name string) Type {
	prefix = strings.TrimSuffix(prefix, "/")
	return func(name string) Type {
		return Type(prefix + "/" + name)
	}
}

// Feature returns the namespace part of the type.
func (t Type) Feature() string {
	i := strings.LastIndexByte(string(t), '/')
	if i < 0 {
		return ""
	}
	return string(t[:i])
}

// Name returns the short name of the type.
func (t Type) Name() string {
	return string(t[strings.LastIndexByte(string(t), '/')+1:])
}

// New is a convenience constructor.
func New(t Type, payload any) Action {
	return Action{Type: t, Payload: payload}
}
