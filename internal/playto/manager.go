package playto

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/strefethen/playto-hub-go/internal/discovery"
	"github.com/strefethen/playto-hub-go/internal/library"
	"github.com/strefethen/playto-hub-go/internal/profiles"
	"github.com/strefethen/playto-hub-go/internal/upnp"
)

// ManagerConfig tunes session creation.
type ManagerConfig struct {
	Session       SessionConfig
	Device        upnp.DeviceOptions
	CreateTimeout time.Duration
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.CreateTimeout <= 0 {
		c.CreateTimeout = 15 * time.Second
	}
	return c
}

// Manager turns discovered MediaRenderers into PlayTo sessions and retires
// them when their devices leave.
type Manager struct {
	client    *upnp.Client
	discovery *discovery.Service
	profiles  *profiles.Store
	lib       *library.Service
	sink      EventSink
	activity  ActivityRecorder
	cfg       ManagerConfig

	// mu serializes discovery handling so two advertisements for the
	// same device cannot race into two sessions, and guards the map.
	mu       sync.Mutex
	sessions map[string]*Session

	cancelSub func()
	stopOnce  sync.Once
}

// NewManager wires the manager; call Start to begin consuming discovery.
func NewManager(
	client *upnp.Client,
	disc *discovery.Service,
	store *profiles.Store,
	lib *library.Service,
	sink EventSink,
	activity ActivityRecorder,
	cfg ManagerConfig,
) *Manager {
	if sink == nil {
		sink = NopSink{}
	}
	return &Manager{
		client:    client,
		discovery: disc,
		profiles:  store,
		lib:       lib,
		sink:      sink,
		activity:  activity,
		cfg:       cfg.withDefaults(),
		sessions:  make(map[string]*Session),
	}
}

// Start subscribes to discovery events and processes them until Stop.
func (m *Manager) Start() {
	events, cancel := m.discovery.Subscribe()
	m.cancelSub = cancel
	go func() {
		for event := range events {
			m.handleDiscoveryEvent(event)
		}
	}()
}

// Stop unsubscribes and ends every session.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		if m.cancelSub != nil {
			m.cancelSub()
		}
		for _, session := range m.Sessions() {
			session.End()
		}
	})
}

func (m *Manager) handleDiscoveryEvent(event discovery.Event) {
	if !event.IsMediaRenderer() {
		return
	}
	switch event.Type {
	case discovery.EventByeBye:
		for _, session := range m.Sessions() {
			session.HandleDeviceLeft(event.USN)
		}
	case discovery.EventAlive:
		m.handleRendererFound(event)
	}
}

func (m *Manager) handleRendererFound(event discovery.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	usnLower := strings.ToLower(event.USN)
	for _, session := range m.sessions {
		deviceID := session.Device().Info.UUID
		if deviceID != "" && strings.Contains(usnLower, strings.ToLower(deviceID)) {
			return
		}
	}

	deviceID := ExtractUUID(event.USN)

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CreateTimeout)
	defer cancel()
	device, err := upnp.CreateDevice(ctx, m.client, event.Location, m.cfg.Device)
	if err != nil {
		log.Printf("ignoring renderer at %s: %v", event.Location, err)
		return
	}
	device.Info.UUID = deviceID

	profile := m.profiles.Resolve(device.Info.ToIdentification())
	sessionID := uuid.NewString()
	session := NewSession(sessionID, device, profile, m.lib, m.sink, m.activity, m.cfg.Session, m.removeSession)
	m.sessions[sessionID] = session

	log.Printf("session %s created for %s (%s, profile %s)",
		sessionID, device.Info.Name, deviceID, profile.Name)
}

func (m *Manager) removeSession(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// Sessions returns the active sessions sorted by device name.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Device().Info.Name < sessions[j].Device().Info.Name
	})
	return sessions
}

// Session returns the session with the given id, or nil.
func (m *Manager) Session(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// ExtractUUID pulls the device uuid out of an SSDP USN. Without a uuid:
// prefix the USN is hashed so the id stays stable.
func ExtractUUID(usn string) string {
	index := strings.Index(usn, "uuid:")
	if index == -1 {
		sum := md5.Sum([]byte(usn))
		return hex.EncodeToString(sum[:])
	}
	id := usn[index+len("uuid:"):]
	if end := strings.Index(id, "::"); end != -1 {
		id = id[:end]
	}
	if strings.HasPrefix(id, "{") && strings.HasSuffix(id, "}") {
		id = id[1 : len(id)-1]
	}
	return id
}
