package entity

import "errors"

var (
	// Room errors
	ErrInvalidRoomID     = errors.New("invalid room id")
	ErrInvalidBusinessID = errors.New("invalid business id")
	ErrInvalidUserID     = errors.New("invalid user id")
	ErrRoomClosed        = errors.New("room is closed")
	ErrInvalidRoomStatus = errors.New("invalid room status")

	// Message errors
	ErrInvalidMessageID = errors.New("invalid message id")
	ErrEmptyContent     = errors.New("empty message content")
	ErrInvalidSender    = errors.New("invalid sender for room")

	// Knowledge errors
	ErrInvalidDocumentID = errors.New("invalid document id")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
