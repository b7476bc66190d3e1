package service

import (
	"errors"
	"fmt"
)

// Common service errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUserNotFound = errors.New("user not found")
	ErrRateLimited  = errors.New("too many requests")
)

// Queue / match errors
var (
	ErrAlreadyQueued       = errors.New("already in queue")
	ErrAlreadyInMatch      = errors.New("already in an active match")
	ErrNoCompatibleProblem = errors.New("no compatible problem found")
	ErrMatchNotFound       = errors.New("match not found")
	ErrMatchNotStarted     = errors.New("match has not started")
	ErrUnauthorizedAction  = errors.New("not a participant of this match")
	ErrMatchFinished       = errors.New("match already resolved")
	ErrPendingOutgoing     = errors.New("pending outgoing match request")
)

// Friend match request errors
var (
	ErrMatchRequestNotFound = errors.New("match request not found")
	ErrAlreadyResponded     = errors.New("match request already responded")
	ErrExpired              = errors.New("match request expired")
	ErrNotFriends           = errors.New("users are not friends")
	ErrSelfRequest          = errors.New("cannot send a match request to yourself")
	ErrPendingRequestExists = errors.New("pending match request already exists")
	ErrReceiverBusy         = errors.New("receiver cannot accept match requests right now")
	ErrInQueue              = errors.New("user is in the matchmaking queue")
)

// PersistenceError 저장소 실패. 요청한 클라이언트에게 그대로 전달됨
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// IsPersistenceError 저장소 실패 여부
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

var clientMessages = []struct {
	err error
	msg string
}{
	{ErrAlreadyQueued, "Already in queue"},
	{ErrAlreadyInMatch, "You are already in an active match"},
	{ErrPendingOutgoing, "Cancel your pending match request before joining the queue"},
	{ErrNoCompatibleProblem, "Could not find a problem for this match"},
	{ErrMatchNotFound, "Match not found"},
	{ErrMatchNotStarted, "Match has not started yet"},
	{ErrUnauthorizedAction, "You are not a participant in this match"},
	{ErrMatchFinished, "Match already finished"},
	{ErrUserNotFound, "User not found"},
	{ErrInvalidInput, "Invalid request"},
	{ErrRateLimited, "Too many requests"},
	{ErrMatchRequestNotFound, "Match request not found"},
	{ErrAlreadyResponded, "Match request has already been responded to"},
	{ErrExpired, "Match request has expired"},
	{ErrNotFriends, "You can only send match requests to friends"},
	{ErrSelfRequest, "You cannot send a match request to yourself"},
	{ErrPendingRequestExists, "You already have a pending match request"},
	{ErrReceiverBusy, "User is not available for a match right now"},
	{ErrInQueue, "Leave the queue before sending a match request"},
}

// ClientMessage 사용자에게 보여줄 에러 문구
func ClientMessage(err error) string {
	for _, m := range clientMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	if IsPersistenceError(err) {
		return "Could not save your action, please try again"
	}
	return "Something went wrong"
}

