package ws

import (
	"encoding/json"
	"log"
)

// Publisher adapts the hub to the notifier interfaces the services
// consume. Marshal failures are logged and dropped; a notification
// must never fail a committed state change.
type Publisher struct {
	hub *Hub
}

func NewPublisher(hub *Hub) *Publisher {
	return &Publisher{hub: hub}
}

func (p *Publisher) Notify(topic, eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: marshal %s event: %v", eventType, err)
		return
	}
	p.hub.BroadcastToTopic(topic, Event{Type: eventType, Payload: raw})
}
