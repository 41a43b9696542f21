package lstore

import (
	"context"
	"errors"
	"time"

	"github.com/ValentinKolb/roc/lib/command"
	"github.com/ValentinKolb/roc/lib/store"
)

type storeImpl struct {
	dispatcher store.Dispatcher
	timeout    time.Duration
}

// NewLocalStore creates a store that sends every operation as a command through the
// dispatcher (usually the session router) and waits for the reply.
// A timeout of zero waits forever.
func NewLocalStore(dispatcher store.Dispatcher, timeout time.Duration) store.IStore {
	return &storeImpl{
		dispatcher: dispatcher,
		timeout:    timeout,
	}
}

// await dispatches the command and waits for its reply.
func await[T any](s *storeImpl, cmd command.Command, reply command.Reply[T]) (T, error) {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var zero T
	if err := s.dispatcher.Route(ctx, cmd); err != nil {
		return zero, translate(err)
	}
	value, err := reply.Wait(ctx)
	if err != nil {
		return zero, translate(err)
	}
	return value, nil
}

// translate maps actor level errors to store errors. Store errors pass unchanged.
func translate(err error) error {
	var storeErr *store.Error
	switch {
	case errors.As(err, &storeErr):
		return err
	case errors.Is(err, store.ErrClosed):
		return store.WrapError(store.RetCUnavailable, "server is shutting down", err)
	case errors.Is(err, context.DeadlineExceeded):
		return store.WrapError(store.RetCUnavailable, "request timed out", err)
	default:
		return store.WrapError(store.RetCInternalError, "request failed", err)
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Hi(userID string) (string, error) {
	reply := command.NewReply[string]()
	return await(s, command.Hi{UserID: userID, Reply: reply}, reply)
}

func (s *storeImpl) Ping(userID string) (string, error) {
	reply := command.NewReply[string]()
	return await(s, command.Ping{UserID: userID, Reply: reply}, reply)
}

func (s *storeImpl) Set(userID, key string, value uint64) error {
	reply := command.NewReply[command.Ack]()
	_, err := await(s, command.Set{UserID: userID, Key: key, Value: value, Reply: reply}, reply)
	return err
}

func (s *storeImpl) Get(userID, key string) (uint64, bool, error) {
	reply := command.NewReply[command.Lookup]()
	res, err := await(s, command.Get{UserID: userID, Key: key, Reply: reply}, reply)
	return res.Value, res.Found, err
}

func (s *storeImpl) Delete(userID, key string) error {
	reply := command.NewReply[command.Ack]()
	_, err := await(s, command.Del{UserID: userID, Key: key, Reply: reply}, reply)
	return err
}

func (s *storeImpl) Update(userID, key string, value uint64) error {
	reply := command.NewReply[command.Ack]()
	_, err := await(s, command.Update{UserID: userID, Key: key, Value: value, Reply: reply}, reply)
	return err
}

func (s *storeImpl) Range(userID, start, end string) ([]command.Entry, error) {
	reply := command.NewReply[[]command.Entry]()
	return await(s, command.Range{UserID: userID, Start: start, End: end, Reply: reply}, reply)
}

func (s *storeImpl) List(userID string) ([]command.Entry, error) {
	reply := command.NewReply[[]command.Entry]()
	return await(s, command.List{UserID: userID, Reply: reply}, reply)
}

func (s *storeImpl) Exit(userID string) error {
	reply := command.NewReply[command.Ack]()
	_, err := await(s, command.Exit{UserID: userID, Reply: reply}, reply)
	return err
}
