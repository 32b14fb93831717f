package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

type testMsg struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type fakeConn struct {
	published []*nats.Msg
	timeout   time.Duration
	reply     []byte
	err       error
}

func (f *fakeConn) PublishMsg(m *nats.Msg) error {
	f.published = append(f.published, m)
	return f.err
}

func (f *fakeConn) RequestMsg(m *nats.Msg, timeout time.Duration) (*nats.Msg, error) {
	f.published = append(f.published, m)
	f.timeout = timeout
	if f.err != nil {
		return nil, f.err
	}
	return &nats.Msg{Data: f.reply}, nil
}

func TestNatsHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*natsHeaderCarrier)(msg)

	if got := carrier.Get("missing"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if keys := carrier.Keys(); keys != nil {
		t.Fatalf("expected nil keys, got %v", keys)
	}

	carrier.Set("traceparent", "00-abc-def-01")
	if got := carrier.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("expected traceparent, got %q", got)
	}
	if keys := carrier.Keys(); len(keys) != 1 {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestPublishEncodesJSON(t *testing.T) {
	fc := &fakeConn{}
	if err := Publish(context.Background(), fc, "subj", testMsg{Name: "a", Value: 1}); err != nil {
		t.Fatal(err)
	}
	if len(fc.published) != 1 || fc.published[0].Subject != "subj" {
		t.Fatalf("unexpected publish %+v", fc.published)
	}
	var got testMsg
	if err := json.Unmarshal(fc.published[0].Data, &got); err != nil || got.Name != "a" {
		t.Fatalf("bad payload %s: %v", fc.published[0].Data, err)
	}
}

func TestRequestDecodesReply(t *testing.T) {
	fc := &fakeConn{reply: []byte(`{"name":"pong","value":2}`)}
	got, err := Request[testMsg, testMsg](context.Background(), fc, "ping", testMsg{Name: "ping"}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "pong" || got.Value != 2 {
		t.Fatalf("unexpected reply %+v", got)
	}
	if fc.timeout != time.Second {
		t.Fatalf("timeout %v", fc.timeout)
	}
}

func TestRequestHonoursDeadline(t *testing.T) {
	fc := &fakeConn{reply: []byte(`{}`)}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := Request[testMsg, testMsg](ctx, fc, "s", testMsg{}, time.Minute); err != nil {
		t.Fatal(err)
	}
	if fc.timeout > 50*time.Millisecond {
		t.Fatalf("timeout %v should be capped by the context deadline", fc.timeout)
	}

	expired, cancel2 := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel2()
	if _, err := Request[testMsg, testMsg](expired, fc, "s", testMsg{}, time.Second); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestRequestErrors(t *testing.T) {
	fc := &fakeConn{err: nats.ErrTimeout}
	if _, err := Request[testMsg, testMsg](context.Background(), fc, "s", testMsg{}, 0); !errors.Is(err, nats.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if fc.timeout != nats.DefaultTimeout {
		t.Fatalf("zero timeout should use the default, got %v", fc.timeout)
	}

	fc = &fakeConn{reply: []byte("{not json")}
	if _, err := Request[testMsg, testMsg](context.Background(), fc, "s", testMsg{}, time.Second); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestReply(t *testing.T) {
	double := func(_ context.Context, in testMsg) testMsg { return testMsg{Name: in.Name, Value: in.Value * 2} }

	data, err := Reply(&nats.Msg{Data: []byte(`{"name":"x","value":21}`)}, double)
	if err != nil {
		t.Fatal(err)
	}
	var out testMsg
	if err := json.Unmarshal(data, &out); err != nil || out.Value != 42 {
		t.Fatalf("unexpected reply %s", data)
	}

	called := false
	_, err = Reply(&nats.Msg{Data: []byte("{invalid")}, func(_ context.Context, in testMsg) testMsg {
		called = true
		return in
	})
	if err == nil || called {
		t.Fatalf("malformed request should fail before the handler (err=%v called=%v)", err, called)
	}
}

type fakeSubscriber struct {
	subject string
	cb      nats.MsgHandler
}

func (f *fakeSubscriber) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	f.subject, f.cb = subject, cb
	return nil, nil
}

func TestSubscribeDecodesJSON(t *testing.T) {
	fs := &fakeSubscriber{}
	var got []testMsg
	if _, err := Subscribe(fs, "test.sub", func(_ context.Context, m testMsg) {
		got = append(got, m)
	}); err != nil {
		t.Fatal(err)
	}
	if fs.subject != "test.sub" {
		t.Fatalf("subject = %q", fs.subject)
	}

	fs.cb(&nats.Msg{Subject: "test.sub", Data: []byte(`{"name":"a","value":1}`)})
	fs.cb(&nats.Msg{Subject: "test.sub", Data: []byte(`{bad`)})
	if len(got) != 1 || got[0].Name != "a" || got[0].Value != 1 {
		t.Fatalf("got %+v, want one decoded message", got)
	}
}
