package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/domain-controller/pkg/model"
)

const testPrefix = "events:comms_publisher_integration_test"

// startTestServer starts an in-process NATS server for testing.
func startTestServer(t *testing.T, port int) (*comms.Conn, func()) {
	t.Helper()

	opts := &commsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := commsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", testPrefix, err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", testPrefix)
	}

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("%s - failed to connect: %v", testPrefix, err)
	}

	cleanup := func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	}

	return nc, cleanup
}

func sampleEvent(host string) *ResolutionEvent {
	return &ResolutionEvent{
		RequestID: "req-42",
		Host:      host,
		Operation: "add",
		Address:   "/system-property=foo",
		ServerGroups: []ServerGroupEvent{
			{
				Servers: []string{"master/main-server-group/server-one", "master/main-server-group/server-two"},
				Op:      model.Node{"operation": "add", "address": []interface{}{map[string]interface{}{"system-property": "foo"}}},
			},
		},
		Timestamp: "2025-01-01T00:00:00Z",
	}
}

func subscribeEvents(t *testing.T, nc *comms.Conn, subject string) (chan *ResolutionEvent, func()) {
	t.Helper()
	received := make(chan *ResolutionEvent, 1)
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		var event ResolutionEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			t.Errorf("%s - failed to unmarshal: %v", testPrefix, err)
			return
		}
		received <- &event
	})
	if err != nil {
		t.Fatalf("%s - failed to subscribe to %s: %v", testPrefix, subject, err)
	}
	return received, func() { sub.Unsubscribe() }
}

func TestCommsPublisher_PublishResolved_HostSubject(t *testing.T) {
	nc, cleanup := startTestServer(t, 14230)
	defer cleanup()

	publisher := NewCommsPublisher(nc, nil)
	received, unsub := subscribeEvents(t, nc, "domain.server-ops.master")
	defer unsub()

	if err := publisher.PublishResolved(context.Background(), sampleEvent("master")); err != nil {
		t.Fatalf("%s - PublishResolved failed: %v", testPrefix, err)
	}
	nc.Flush()

	select {
	case got := <-received:
		if got.Host != "master" {
			t.Errorf("%s - Host = %q, want master", testPrefix, got.Host)
		}
		if got.Operation != "add" {
			t.Errorf("%s - Operation = %q, want add", testPrefix, got.Operation)
		}
		if got.ServerCount() != 2 {
			t.Errorf("%s - ServerCount = %d, want 2", testPrefix, got.ServerCount())
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - timeout waiting for host event", testPrefix)
	}
}

func TestCommsPublisher_PublishResolved_BothSubjects(t *testing.T) {
	nc, cleanup := startTestServer(t, 14231)
	defer cleanup()

	publisher := NewCommsPublisher(nc, nil)
	hostCh, unsub1 := subscribeEvents(t, nc, "domain.server-ops.slave_1")
	defer unsub1()
	globalCh, unsub2 := subscribeEvents(t, nc, "domain.resolved")
	defer unsub2()

	if err := publisher.PublishResolved(context.Background(), sampleEvent("slave.1")); err != nil {
		t.Fatalf("%s - PublishResolved failed: %v", testPrefix, err)
	}
	nc.Flush()

	for _, ch := range []struct {
		name string
		ch   chan *ResolutionEvent
	}{
		{"host", hostCh},
		{"global", globalCh},
	} {
		select {
		case <-ch.ch:
		case <-time.After(5 * time.Second):
			t.Errorf("%s - timeout waiting for %s event", testPrefix, ch.name)
		}
	}
}

func TestCommsPublisher_CustomGlobalSubject(t *testing.T) {
	nc, cleanup := startTestServer(t, 14232)
	defer cleanup()

	customSubject := "custom.plans"
	publisher := NewCommsPublisher(nc, &CommsPublisherOpts{GlobalSubject: customSubject})
	received, unsub := subscribeEvents(t, nc, customSubject)
	defer unsub()

	if err := publisher.PublishResolved(context.Background(), sampleEvent("master")); err != nil {
		t.Fatalf("%s - PublishResolved failed: %v", testPrefix, err)
	}
	nc.Flush()

	select {
	case got := <-received:
		if got.RequestID != "req-42" {
			t.Errorf("%s - RequestID = %q, want req-42", testPrefix, got.RequestID)
		}
		if len(got.ServerGroups) != 1 || model.OperationName(got.ServerGroups[0].Op) != "add" {
			t.Errorf("%s - server groups not preserved: %+v", testPrefix, got.ServerGroups)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - timeout waiting for custom subject event", testPrefix)
	}
}

func TestNewCommsPublisher_DefaultSubject(t *testing.T) {
	nc, cleanup := startTestServer(t, 14233)
	defer cleanup()

	for _, opts := range []*CommsPublisherOpts{nil, {GlobalSubject: ""}} {
		publisher := NewCommsPublisher(nc, opts)
		if publisher.globalSubject != "domain.resolved" {
			t.Errorf("%s - globalSubject = %q, want domain.resolved", testPrefix, publisher.globalSubject)
		}
	}
}
