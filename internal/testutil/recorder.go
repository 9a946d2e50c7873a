package testutil

import (
	"encoding/json"
	"sync"
)

// Published is one captured bus message.
type Published struct {
	Topic string
	Type  string
	Data  []byte
}

// Recorder is an in-memory publisher that keeps every message.
type Recorder struct {
	mu   sync.Mutex
	msgs []Published
}

func (r *Recorder) Publish(topic string, payload interface{}) (int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	var head struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(data, &head)

	r.mu.Lock()
	r.msgs = append(r.msgs, Published{Topic: topic, Type: head.Type, Data: data})
	r.mu.Unlock()
	return 0, nil
}

// Messages returns the captured messages, optionally only those on topic.
func (r *Recorder) Messages(topic string) []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Published
	for _, m := range r.msgs {
		if topic == "" || m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// Types lists the event types published on topic in order.
func (r *Recorder) Types(topic string) []string {
	var out []string
	for _, m := range r.Messages(topic) {
		out = append(out, m.Type)
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.msgs = nil
	r.mu.Unlock()
}
