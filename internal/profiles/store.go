package profiles

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/strefethen/playto-hub-go/internal/library"
	"github.com/strefethen/playto-hub-go/internal/upnp"
)

// Store holds the loaded device profiles and resolves devices to them.
type Store struct {
	profiles     []*DeviceProfile
	defaultEntry *DeviceProfile
}

// NewStore loads every *.yml / *.yaml file in dir as a device profile. A
// missing or empty directory is fine; resolution then always lands on the
// built-in default.
func NewStore(dir string) (*Store, error) {
	store := &Store{defaultEntry: DefaultProfile()}
	if dir == "" {
		return store, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, fmt.Errorf("reading profiles dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yml" && ext != ".yaml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading profile %s: %w", path, err)
		}
		profile := &DeviceProfile{}
		if err := yaml.Unmarshal(data, profile); err != nil {
			return nil, fmt.Errorf("parsing profile %s: %w", path, err)
		}
		if profile.Name == "" {
			profile.Name = strings.TrimSuffix(entry.Name(), ext)
		}
		store.profiles = append(store.profiles, profile)
	}

	log.Printf("loaded %d device profiles from %s", len(store.profiles), dir)
	return store, nil
}

// Profiles returns the loaded profiles, without the default.
func (s *Store) Profiles() []*DeviceProfile {
	return s.profiles
}

// Default returns the built-in fallback profile.
func (s *Store) Default() *DeviceProfile {
	return s.defaultEntry
}

// ByName returns the profile with the given name, or nil.
func (s *Store) ByName(name string) *DeviceProfile {
	if strings.EqualFold(name, s.defaultEntry.Name) {
		return s.defaultEntry
	}
	for _, profile := range s.profiles {
		if strings.EqualFold(profile.Name, name) {
			return profile
		}
	}
	return nil
}

// Resolve picks the first profile whose identification matches the device,
// falling back to the default.
func (s *Store) Resolve(ident upnp.Identification) *DeviceProfile {
	for _, profile := range s.profiles {
		if profile.Matches(ident) {
			return profile
		}
	}
	return s.defaultEntry
}

// DefaultProfile is the generic renderer profile used when nothing claims
// the device: common audio containers direct, everything else transcoded.
func DefaultProfile() *DeviceProfile {
	return &DeviceProfile{
		Name: "Default",
		SupportedMediaTypes: []library.MediaType{
			library.MediaTypeAudio,
			library.MediaTypeVideo,
			library.MediaTypePhoto,
		},
		DirectPlayProfiles: []DirectPlayProfile{
			{Type: library.MediaTypeAudio, Containers: []string{"mp3", "flac", "wav", "m4a", "aac"}},
			{Type: library.MediaTypeVideo, Containers: []string{"mp4"}, VideoCodecs: []string{"h264"}, AudioCodecs: []string{"aac", "mp3"}},
			{Type: library.MediaTypePhoto, Containers: []string{"jpeg", "jpg", "png"}},
		},
		TranscodingProfiles: []TranscodingProfile{
			{Type: library.MediaTypeAudio, Container: "mp3", AudioCodec: "mp3"},
			{Type: library.MediaTypeVideo, Container: "ts", VideoCodec: "h264", AudioCodec: "aac"},
			{Type: library.MediaTypePhoto, Container: "jpeg"},
		},
	}
}
