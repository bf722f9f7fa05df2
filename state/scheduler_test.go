package state

import (
	"context"
	"testing"
	"time"
)

func testEnv(t *testing.T, buffer int) (*Env, chan func(*State) error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	dispatchChan := make(chan func(*State) error, buffer)
	env := &Env{
		DispatchChannel: dispatchChan,
		Context:         ctx,
		Cancel: func(err error) {
			cancel()
		},
	}
	return env, dispatchChan
}

func TestDispatch(t *testing.T) {
	env, dispatchChan := testEnv(t, 10)
	st := &State{Env: env}

	called := make(chan bool, 1)
	env.Dispatch(func(s *State) error {
		called <- true
		return nil
	})

	select {
	case f := <-dispatchChan:
		if err := f(st); err != nil {
			t.Errorf("Dispatch error: %v", err)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timed out waiting for dispatched function")
	}
	<-called
}

func TestDispatchWait(t *testing.T) {
	env, dispatchChan := testEnv(t, 10)
	st := &State{Env: env}

	go func() {
		f := <-dispatchChan
		_ = f(st)
	}()

	res, err := env.DispatchWait(func(s *State) (any, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("DispatchWait error: %v", err)
	}
	if res != 42 {
		t.Fatalf("DispatchWait returned %v, want 42", res)
	}
}

func TestScheduleTask(t *testing.T) {
	env, dispatchChan := testEnv(t, 10)

	env.ScheduleTask(func(s *State) error { return nil }, 10*time.Millisecond)

	select {
	case <-dispatchChan:
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for scheduled task")
	}
}

func TestRepeatTask(t *testing.T) {
	env, dispatchChan := testEnv(t, 10)

	env.RepeatTask(func(s *State) error { return nil }, 10*time.Millisecond)

	for i := 0; i < 3; i++ {
		select {
		case <-dispatchChan:
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for repeat %d", i)
		}
	}
}
