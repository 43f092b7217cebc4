// Package events implements the push-style subscription surface: every
// durable job-ledger write is published to a topic keyed by the owner's
// email, and SSE clients stream the frames live instead of polling.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"adforge/internal/domain"
)

const subscriberBuffer = 16

// Hub fans JSON frames out to per-topic subscribers. Sends never block: a
// subscriber that stops draining its channel loses frames instead of stalling
// the pipeline.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[chan []byte]struct{}
}

// Subscription is one client's handle on a topic stream.
type Subscription struct {
	C     <-chan []byte
	hub   *Hub
	topic string
	ch    chan []byte
	once  sync.Once
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[chan []byte]struct{})}
}

// Subscribe registers a buffered channel on the topic. The caller must Close
// the subscription when done.
func (h *Hub) Subscribe(topic string) *Subscription {
	ch := make(chan []byte, subscriberBuffer)
	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[chan []byte]struct{})
		h.topics[topic] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()
	return &Subscription{C: ch, hub: h, topic: topic, ch: ch}
}

// Close removes the subscription from the hub.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		if subs, ok := h.topics[s.topic]; ok {
			delete(subs, s.ch)
			if len(subs) == 0 {
				delete(h.topics, s.topic)
			}
		}
		h.mu.Unlock()
	})
}

// Publish delivers msg to every subscriber of the topic, dropping frames for
// subscribers whose buffers are full.
func (h *Hub) Publish(topic string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.topics[topic] {
		select {
		case ch <- msg:
		default:
			// slow client, drop
		}
	}
}

// adFrame is the wire shape of one job snapshot.
type adFrame struct {
	ID                string     `json:"id"`
	OwnerEmail        string     `json:"email"`
	Status            string     `json:"status"`
	VideoStatus       string     `json:"videoStatus"`
	Description       string     `json:"description"`
	RequestedSize     string     `json:"requestedSize"`
	OriginalImageURL  string     `json:"originalImageUrl,omitempty"`
	GeneratedImageURL string     `json:"generatedImageUrl,omitempty"`
	VideoURL          string     `json:"videoUrl,omitempty"`
	Error             string     `json:"error,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
}

// PublishAd publishes a JSON snapshot of the ad to its owner's topic. It
// satisfies the pipeline's Publisher contract.
func (h *Hub) PublishAd(ad domain.Ad) {
	frame := adFrame{
		ID:                ad.ID,
		OwnerEmail:        ad.OwnerEmail,
		Status:            string(ad.Status),
		VideoStatus:       string(ad.VideoStatus),
		Description:       ad.Description,
		RequestedSize:     ad.RequestedSize,
		OriginalImageURL:  ad.OriginalImageURL,
		GeneratedImageURL: ad.GeneratedImageURL,
		VideoURL:          ad.VideoURL,
		Error:             ad.ErrorMessage,
		CreatedAt:         ad.CreatedAt,
		UpdatedAt:         ad.UpdatedAt,
		CompletedAt:       ad.CompletedAt,
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	h.Publish(ad.OwnerEmail, payload)
}
