package domain

import (
	interfaces "peerchat/internal/domain/interfaces"
	types "peerchat/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Role        = types.Role
	State       = types.State
	ChatMessage = types.ChatMessage
	Direction   = types.Direction
	FileEvent   = types.FileEvent
)

const (
	RoleListener  = types.RoleListener
	RoleInitiator = types.RoleInitiator

	StateIdle           = types.StateIdle
	StateListening      = types.StateListening
	StateConnecting     = types.StateConnecting
	StateAuthenticating = types.StateAuthenticating
	StateConnected      = types.StateConnected
	StateClosed         = types.StateClosed

	DirectionSending  = types.DirectionSending
	DirectionReceived = types.DirectionReceived
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	Host        = interfaces.Host
	Chat        = interfaces.Chat
	FileStore   = interfaces.FileStore
	PendingFile = interfaces.PendingFile
)
