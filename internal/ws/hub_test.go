package ws

import (
	"encoding/json"
	"testing"
	"time"
)

func mockClient(hub *Hub, topic string) *Client {
	return &Client{
		hub:   hub,
		topic: topic,
		send:  make(chan []byte, 256),
	}
}

func TestHubRegistration(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := mockClient(hub, TopicOrders)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if hub.rooms[TopicOrders] == nil {
		t.Fatal("topic room not created")
	}
	if !hub.rooms[TopicOrders][client] {
		t.Fatal("client not registered in topic room")
	}
}

func TestHubUnregistration(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := mockClient(hub, TopicKitchen)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if hub.rooms[TopicKitchen] != nil {
		t.Fatal("topic room not cleaned up after last client unregistered")
	}
}

func TestBroadcastTopicIsolation(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	ordersClient := mockClient(hub, TopicOrders)
	kitchenClient := mockClient(hub, TopicKitchen)

	hub.register <- ordersClient
	hub.register <- kitchenClient
	time.Sleep(10 * time.Millisecond)

	payload := json.RawMessage(`{"tab_number":"TAB-12-1700000000"}`)
	hub.BroadcastToTopic(TopicOrders, Event{Type: "tab_payment_completed", Payload: payload})

	select {
	case msg := <-ordersClient.send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if received.Type != "tab_payment_completed" {
			t.Errorf("event type = %q", received.Type)
		}
		if string(received.Payload) != string(payload) {
			t.Errorf("payload = %s", received.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("orders client did not receive message")
	}

	select {
	case <-kitchenClient.send:
		t.Fatal("kitchen client should not receive orders-topic message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastReachesAllClientsOnTopic(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	clients := []*Client{
		mockClient(hub, TopicKitchen),
		mockClient(hub, TopicKitchen),
		mockClient(hub, TopicKitchen),
	}
	for _, c := range clients {
		hub.register <- c
	}
	time.Sleep(10 * time.Millisecond)

	hub.BroadcastToTopic(TopicKitchen, Event{
		Type:    "order_created",
		Payload: json.RawMessage(`{"order_number":"ORD-20250501-120000-0001"}`),
	})

	for i, c := range clients {
		select {
		case msg := <-c.send:
			var received Event
			if err := json.Unmarshal(msg, &received); err != nil {
				t.Fatalf("client %d: unmarshal: %v", i, err)
			}
			if received.Type != "order_created" {
				t.Errorf("client %d: event type = %q", i, received.Type)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("client %d did not receive message", i)
		}
	}
}

func TestBroadcastToEmptyTopic(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := mockClient(hub, TopicOrders)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.BroadcastToTopic(TopicKitchen, Event{
		Type:    "order_created",
		Payload: json.RawMessage(`{}`),
	})

	select {
	case <-client.send:
		t.Fatal("client should not receive message for another topic")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublisherNotify(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := mockClient(hub, TopicOrders)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	pub := NewPublisher(hub)
	pub.Notify(TopicOrders, "order_status_changed", map[string]string{
		"order_number": "ORD-20250501-120000-0001",
		"status":       "ready",
	})

	select {
	case msg := <-client.send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if received.Type != "order_status_changed" {
			t.Errorf("event type = %q", received.Type)
		}
		var payload map[string]string
		if err := json.Unmarshal(received.Payload, &payload); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if payload["status"] != "ready" {
			t.Errorf("status = %q", payload["status"])
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("client did not receive published event")
	}
}
