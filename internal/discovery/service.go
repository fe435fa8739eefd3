package discovery

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// EventType distinguishes device arrival from departure.
type EventType string

const (
	EventAlive  EventType = "alive"
	EventByeBye EventType = "byebye"
)

// Event is a device advertisement seen on the network, either from an
// M-SEARCH response or a multicast NOTIFY.
type Event struct {
	Type     EventType
	USN      string
	NT       string
	Location string
}

// IsMediaRenderer reports whether the advertisement names a MediaRenderer.
func (e Event) IsMediaRenderer() bool {
	return containsRenderer(e.USN) || containsRenderer(e.NT)
}

func containsRenderer(value string) bool {
	return strings.Contains(strings.ToLower(value), "mediarenderer:")
}

// Options tunes the discovery service.
type Options struct {
	// SearchTarget is the ST header for M-SEARCH passes.
	SearchTarget string
	// Passes is the number of M-SEARCH packets per scan.
	Passes int
	// PassInterval is the gap between packets of one scan.
	PassInterval time.Duration
	// ResponseTimeout is how long a scan collects responses.
	ResponseTimeout time.Duration
	// RescanSchedule is a cron spec for periodic rescans, e.g. "@every 5m".
	// Empty disables rescans after the initial scan.
	RescanSchedule string
}

func (o Options) withDefaults() Options {
	if o.SearchTarget == "" {
		o.SearchTarget = MediaRendererTarget
	}
	if o.Passes <= 0 {
		o.Passes = 3
	}
	if o.PassInterval <= 0 {
		o.PassInterval = time.Second
	}
	if o.ResponseTimeout <= 0 {
		o.ResponseTimeout = 5 * time.Second
	}
	return o
}

// Service watches the network for renderers: an initial M-SEARCH scan, a
// cron-scheduled rescan, and a continuous NOTIFY listener. Events fan out
// to every subscriber.
type Service struct {
	opts Options

	mu          sync.Mutex
	subscribers map[int]chan Event
	nextSubID   int
	started     bool

	cron *cron.Cron
	stop chan struct{}
}

// NewService creates a stopped discovery service.
func NewService(opts Options) *Service {
	return &Service{
		opts:        opts.withDefaults(),
		subscribers: make(map[int]chan Event),
		stop:        make(chan struct{}),
	}
}

// Subscribe registers for discovery events. The returned cancel func must
// be called to release the channel.
func (s *Service) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Event, 64)
	s.subscribers[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(existing)
		}
	}
}

func (s *Service) publish(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			// Slow subscriber, drop rather than block discovery.
		}
	}
}

// Start launches the NOTIFY listener, runs an initial scan and schedules
// rescans.
func (s *Service) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go func() {
		if err := listenNotify(s.stop, s.handleNotify); err != nil {
			log.Printf("ssdp notify listener stopped: %v", err)
		}
	}()

	go s.Scan()

	if s.opts.RescanSchedule != "" {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(s.opts.RescanSchedule, s.Scan); err != nil {
			log.Printf("invalid rescan schedule %q: %v", s.opts.RescanSchedule, err)
		} else {
			s.cron.Start()
		}
	}
}

// Stop halts the listener and the rescan schedule.
func (s *Service) Stop() {
	close(s.stop)
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Scan runs one M-SEARCH scan and publishes each response as an alive event.
func (s *Service) Scan() {
	ctx, cancel := context.WithTimeout(context.Background(),
		s.opts.ResponseTimeout+time.Duration(s.opts.Passes)*s.opts.PassInterval+5*time.Second)
	defer cancel()

	responses, err := Discover(ctx, s.opts.SearchTarget, s.opts.Passes, s.opts.PassInterval, s.opts.ResponseTimeout)
	if err != nil {
		log.Printf("ssdp scan failed: %v", err)
	}
	for _, resp := range responses {
		s.publish(Event{
			Type:     EventAlive,
			USN:      resp.USN,
			NT:       resp.NT,
			Location: resp.Location,
		})
	}
}

func (s *Service) handleNotify(msg notifyMessage) {
	event := Event{
		USN:      msg.USN,
		NT:       msg.NT,
		Location: msg.Location,
	}
	switch msg.NTS {
	case "ssdp:byebye":
		event.Type = EventByeBye
	case "ssdp:alive":
		event.Type = EventAlive
		if event.Location == "" {
			return
		}
	default:
		return
	}
	s.publish(event)
}
