package library

import (
	"fmt"
	"sort"
	"sync"
)

// Service is an in-memory media library. It stands in for the host media
// server: sessions resolve item ids against it and the control API manages
// its contents.
type Service struct {
	mu    sync.RWMutex
	items map[string]*Item
}

// NewService creates an empty library.
func NewService() *Service {
	return &Service{items: make(map[string]*Item)}
}

// Upsert adds or replaces an item.
func (s *Service) Upsert(item *Item) error {
	if item.ID == "" {
		return fmt.Errorf("library item requires an id")
	}
	if item.MediaType == "" {
		return fmt.Errorf("library item %s requires a media type", item.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
	return nil
}

// Get returns the item with the given id, or nil.
func (s *Service) Get(id string) *Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items[id]
}

// GetMany resolves a list of ids, silently skipping unknown ones.
func (s *Service) GetMany(ids []string) []*Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]*Item, 0, len(ids))
	for _, id := range ids {
		if item, ok := s.items[id]; ok {
			items = append(items, item)
		}
	}
	return items
}

// List returns all items sorted by name.
func (s *Service) List() []*Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]*Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}

// Delete removes an item, reporting whether it existed.
func (s *Service) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	return true
}
