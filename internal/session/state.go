package session

import (
	"errors"
	"fmt"
)

type State int

const (
	Connecting State = iota
	Negotiating
	Login
	Authenticated
	Menu
	Chat
	Boards
	Files
	Transfer
	Disconnecting
)

var stateNames = map[State]string{
	Connecting:    "connecting",
	Negotiating:   "negotiating",
	Login:         "login",
	Authenticated: "authenticated",
	Menu:          "menu",
	Chat:          "chat",
	Boards:        "boards",
	Files:         "files",
	Transfer:      "transfer",
	Disconnecting: "disconnecting",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Interactive reports whether s is one of the post-login areas a transfer
// can start from and return to.
func (s State) Interactive() bool {
	switch s {
	case Menu, Chat, Boards, Files:
		return true
	}
	return false
}

var ErrInvalidTransition = errors.New("invalid session state transition")

// Disconnecting is reachable from everywhere and Transfer only through
// BeginTransfer, so neither appears here.
var transitions = map[State][]State{
	Connecting:    {Negotiating, Login},
	Negotiating:   {Login},
	Login:         {Authenticated},
	Authenticated: {Menu, Chat, Boards, Files},
	Menu:          {Chat, Boards, Files},
	Chat:          {Menu, Boards, Files},
	Boards:        {Menu, Chat, Files},
	Files:         {Menu, Chat, Boards},
}

func canTransition(from, to State) bool {
	if from == Disconnecting {
		return false
	}
	if to == Disconnecting {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
