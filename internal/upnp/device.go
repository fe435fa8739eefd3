package upnp

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
	log "github.com/sirupsen/logrus"
)

// DeviceOptions tunes the polling and refresh behavior of a Device.
type DeviceOptions struct {
	// PollInterval is the delay between transport polls while media is
	// loaded. Zero means the 10 second default.
	PollInterval time.Duration
	// ImmediateDelay is the short delay used when a command requests an
	// immediate state refresh. Zero means 100ms.
	ImmediateDelay time.Duration
	// InitialDelay is the delay before the first poll after Start.
	InitialDelay time.Duration
	// FailureThreshold is the number of consecutive poll failures after
	// which the device is reported unavailable. Zero means 3.
	FailureThreshold int
	// VolumeStaleness bounds how old the cached volume may get before a
	// background refresh is triggered. Zero means 5 seconds.
	VolumeStaleness time.Duration
}

func (o DeviceOptions) withDefaults() DeviceOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Second
	}
	if o.ImmediateDelay <= 0 {
		o.ImmediateDelay = 100 * time.Millisecond
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = time.Second
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 3
	}
	if o.VolumeStaleness <= 0 {
		o.VolumeStaleness = 5 * time.Second
	}
	return o
}

// Device is the protocol client for a single renderer. It issues AVTransport
// and RenderingControl actions and runs a polling goroutine that keeps a
// local snapshot of transport state, position and volume, raising playback
// events as the snapshot changes.
type Device struct {
	Info *DeviceInfo

	client *Client
	opts   DeviceOptions

	// Callbacks fire from the polling goroutine. Set them before Start.
	OnPlaybackStart    func(media *UBaseObject)
	OnPlaybackProgress func(media *UBaseObject)
	OnPlaybackStopped  func(media *UBaseObject)
	OnMediaChanged     func(previous, current *UBaseObject)
	OnUnavailable      func()

	mu             sync.Mutex
	transportState TransportState
	currentMedia   *UBaseObject
	position       time.Duration
	duration       time.Duration
	volume         int
	muted          bool
	mutedVolume    int
	volumeFetched  time.Time
	refreshing     bool

	avCommandsCache *TransportCommands
	rcCommandsCache *TransportCommands

	failureCount int

	wake    chan struct{}
	done    chan struct{}
	started bool
	closeMu sync.Once
}

// NewDevice wraps an already-parsed DeviceInfo. Use CreateDevice to build
// one from a description URL.
func NewDevice(info *DeviceInfo, client *Client, opts DeviceOptions) *Device {
	return &Device{
		Info:           info,
		client:         client,
		opts:           opts.withDefaults(),
		transportState: TransportStateStopped,
		wake:           make(chan struct{}, 1),
		done:           make(chan struct{}),
	}
}

// CreateDevice fetches and parses the description document at location and
// returns a Device bound to it.
func CreateDevice(ctx context.Context, client *Client, location string, opts DeviceOptions) (*Device, error) {
	doc, err := client.GetData(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("fetching device description %s: %w", location, err)
	}
	info := CreateFromDescription(doc, location)
	if info == nil {
		return nil, fmt.Errorf("device description %s is unusable", location)
	}
	return NewDevice(info, client, opts), nil
}

// Start launches the polling goroutine.
func (d *Device) Start() {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()
	go d.pollLoop()
}

// Dispose stops the polling goroutine. Safe to call more than once.
func (d *Device) Dispose() {
	d.closeMu.Do(func() { close(d.done) })
}

// TransportState returns the last observed transport state.
func (d *Device) TransportState() TransportState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transportState
}

// IsPlaying reports whether the renderer is playing or transitioning.
func (d *Device) IsPlaying() bool {
	state := d.TransportState()
	return state == TransportStatePlaying || state == TransportStateTransitioning
}

// IsPaused reports whether playback is paused.
func (d *Device) IsPaused() bool {
	return d.TransportState() == TransportStatePaused
}

// IsStopped reports whether the transport is stopped.
func (d *Device) IsStopped() bool {
	return d.TransportState() == TransportStateStopped
}

// CurrentMedia returns the last observed media snapshot, or nil.
func (d *Device) CurrentMedia() *UBaseObject {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentMedia
}

// Progress returns the last observed position and duration.
func (d *Device) Progress() (position, duration time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.position, d.duration
}

// Volume returns the cached volume level without touching the network.
// Call RefreshVolume for an on-demand fetch.
func (d *Device) Volume() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.volume
}

// IsMuted returns the cached mute state.
func (d *Device) IsMuted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.muted
}

func (d *Device) pokePoll() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// pollLoop drives the device state machine: poll, decide the next delay,
// sleep. While stopped the loop goes inactive and waits for a command to
// wake it instead of rescheduling.
func (d *Device) pollLoop() {
	timer := time.NewTimer(d.opts.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-d.done:
			return
		case <-timer.C:
		case <-d.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(d.opts.ImmediateDelay)
			continue
		}

		active, fatal := d.pollOnce()
		if fatal {
			return
		}
		if active {
			timer.Reset(d.opts.PollInterval)
			continue
		}

		// Inactive: nothing is playing, so wait for the next command.
		select {
		case <-d.done:
			return
		case <-d.wake:
			timer.Reset(d.opts.ImmediateDelay)
		}
	}
}

// pollOnce performs a single poll pass. It returns whether the loop should
// stay on the active interval, and whether it should terminate outright
// because the device was declared unavailable.
func (d *Device) pollOnce() (active, fatal bool) {
	ctx, cancel := context.WithTimeout(context.Background(), d.client.timeout)
	defer cancel()

	state, err := d.fetchTransportState(ctx)
	if err != nil {
		d.failureCount++
		log.Printf("device %s poll failed (%d): %v", d.Info.Name, d.failureCount, err)
		if d.failureCount >= d.opts.FailureThreshold {
			if d.OnUnavailable != nil {
				d.OnUnavailable()
			}
			return false, true
		}
		return true, false
	}
	d.failureCount = 0

	if state == "" {
		// The device answered with something unparsable. Treat it as
		// no data rather than a failure.
		return false, false
	}

	if state == TransportStateStopped {
		d.updateMediaInfo(nil, state, 0, 0)
		return false, false
	}

	d.refreshVolumeIfNeeded()

	media, position, duration, err := d.fetchPositionInfo(ctx)
	if err != nil {
		d.failureCount++
		if d.failureCount >= d.opts.FailureThreshold {
			if d.OnUnavailable != nil {
				d.OnUnavailable()
			}
			return false, true
		}
		return true, false
	}
	if media == nil {
		media, err = d.fetchMediaInfo(ctx)
		if err != nil {
			media = nil
		}
	}

	d.updateMediaInfo(media, state, position, duration)
	return true, false
}

// updateMediaInfo swaps the media snapshot and raises the matching event:
// start when media appears, changed when the id differs, progress when the
// same item advanced, stopped when media went away.
func (d *Device) updateMediaInfo(media *UBaseObject, state TransportState, position, duration time.Duration) {
	d.mu.Lock()
	previous := d.currentMedia
	d.currentMedia = media
	d.transportState = state
	d.position = position
	d.duration = duration
	d.mu.Unlock()

	switch {
	case media != nil && previous == nil:
		if d.OnPlaybackStart != nil {
			d.OnPlaybackStart(media)
		}
	case media != nil && !media.SameIdentity(previous):
		if d.OnMediaChanged != nil {
			d.OnMediaChanged(previous, media)
		}
	case media != nil:
		if d.OnPlaybackProgress != nil {
			d.OnPlaybackProgress(media)
		}
	case previous != nil:
		if d.OnPlaybackStopped != nil {
			d.OnPlaybackStopped(previous)
		}
	}
}

// --- AVTransport commands ---

// SetAvTransport loads a URI on the renderer and starts playback. Metadata
// is the DIDL-Lite fragment describing the item; contentFeatures is passed
// through as the DLNA content features header.
func (d *Device) SetAvTransport(ctx context.Context, uri, contentFeatures, metadata string) error {
	commands, service, err := d.avCommands(ctx)
	if err != nil {
		return err
	}
	action := commands.Action("SetAVTransportURI")
	if action == nil {
		return nil
	}

	post := commands.BuildPost(action, service.ServiceType, uri, map[string]string{
		"CurrentURI":         uri,
		"CurrentURIMetaData": metadata,
	})
	if _, err := d.client.SendCommand(ctx, d.Info.BaseURL, service, action.Name, post, contentFeatures); err != nil {
		return err
	}

	// Some renderers need a moment between loading the URI and the
	// Play command; the Play itself is best effort.
	time.Sleep(50 * time.Millisecond)
	_ = d.SetPlay(ctx)

	d.pokePoll()
	return nil
}

// SetNextAvTransport pre-announces the next URI for gapless handoff.
// Renderers without the action are silently skipped.
func (d *Device) SetNextAvTransport(ctx context.Context, uri, contentFeatures, metadata string) error {
	commands, service, err := d.avCommands(ctx)
	if err != nil {
		return err
	}
	action := commands.Action("SetNextAVTransportURI")
	if action == nil {
		return nil
	}

	post := commands.BuildPost(action, service.ServiceType, uri, map[string]string{
		"NextURI":         uri,
		"NextURIMetaData": metadata,
	})
	_, err = d.client.SendCommand(ctx, d.Info.BaseURL, service, action.Name, post, contentFeatures)
	return err
}

// SetPlay issues Play at speed 1.
func (d *Device) SetPlay(ctx context.Context) error {
	return d.sendAvAction(ctx, "Play", "1", nil)
}

// SetStop halts playback.
func (d *Device) SetStop(ctx context.Context) error {
	err := d.sendAvAction(ctx, "Stop", "1", nil)
	d.pokePoll()
	return err
}

// SetPause pauses playback and optimistically records the paused state so
// callers see it before the next poll lands.
func (d *Device) SetPause(ctx context.Context) error {
	if err := d.sendAvAction(ctx, "Pause", "1", nil); err != nil {
		return err
	}
	d.mu.Lock()
	d.transportState = TransportStatePaused
	d.mu.Unlock()
	return nil
}

// Seek jumps to an absolute position within the current track.
func (d *Device) Seek(ctx context.Context, position time.Duration) error {
	target := formatTransportTime(position)
	err := d.sendAvAction(ctx, "Seek", target, map[string]string{
		"Unit":   "REL_TIME",
		"Target": target,
	})
	d.pokePoll()
	return err
}

func (d *Device) sendAvAction(ctx context.Context, name, value string, args map[string]string) error {
	commands, service, err := d.avCommands(ctx)
	if err != nil {
		return err
	}
	action := commands.Action(name)
	if action == nil {
		return nil
	}
	post := commands.BuildPost(action, service.ServiceType, value, args)
	_, err = d.client.SendCommand(ctx, d.Info.BaseURL, service, action.Name, post, "")
	return err
}

// --- RenderingControl commands ---

// SetVolume sets the master volume and caches the value optimistically.
func (d *Device) SetVolume(ctx context.Context, volume int) error {
	if volume < 0 {
		volume = 0
	} else if volume > 100 {
		volume = 100
	}
	if err := d.sendRcAction(ctx, "SetVolume", strconv.Itoa(volume), nil); err != nil {
		return err
	}
	d.mu.Lock()
	d.volume = volume
	d.muted = volume == 0
	d.volumeFetched = time.Now()
	d.mu.Unlock()
	return nil
}

// VolumeUp raises the volume by five points.
func (d *Device) VolumeUp(ctx context.Context) error {
	return d.SetVolume(ctx, d.Volume()+5)
}

// VolumeDown lowers the volume by five points.
func (d *Device) VolumeDown(ctx context.Context) error {
	return d.SetVolume(ctx, d.Volume()-5)
}

// Mute silences the renderer. Devices without a SetMute action are muted
// by remembering the volume and dropping it to zero.
func (d *Device) Mute(ctx context.Context) error {
	if ok, err := d.setMute(ctx, true); err != nil || ok {
		return err
	}
	d.mu.Lock()
	d.mutedVolume = d.volume
	d.mu.Unlock()
	return d.SetVolume(ctx, 0)
}

// Unmute restores audio. For the volume-zero emulation the previous volume
// is restored, defaulting to 20 when none was recorded.
func (d *Device) Unmute(ctx context.Context) error {
	if ok, err := d.setMute(ctx, false); err != nil || ok {
		return err
	}
	d.mu.Lock()
	restored := d.mutedVolume
	d.mu.Unlock()
	if restored <= 0 {
		restored = 20
	}
	return d.SetVolume(ctx, restored)
}

// ToggleMute flips between Mute and Unmute based on the cached state.
func (d *Device) ToggleMute(ctx context.Context) error {
	d.mu.Lock()
	muted := d.muted || d.volume == 0
	d.mu.Unlock()
	if muted {
		return d.Unmute(ctx)
	}
	return d.Mute(ctx)
}

// setMute sends the native SetMute action. The bool result reports whether
// the device advertised the action at all.
func (d *Device) setMute(ctx context.Context, mute bool) (bool, error) {
	commands, service, err := d.rcCommands(ctx)
	if err != nil {
		return false, err
	}
	action := commands.Action("SetMute")
	if action == nil {
		return false, nil
	}
	value := "0"
	if mute {
		value = "1"
	}
	post := commands.BuildPost(action, service.ServiceType, value, map[string]string{
		"DesiredMute": value,
	})
	if _, err := d.client.SendCommand(ctx, d.Info.BaseURL, service, action.Name, post, ""); err != nil {
		return true, err
	}
	d.mu.Lock()
	d.muted = mute
	d.mu.Unlock()
	return true, nil
}

func (d *Device) sendRcAction(ctx context.Context, name, value string, args map[string]string) error {
	commands, service, err := d.rcCommands(ctx)
	if err != nil {
		return err
	}
	action := commands.Action(name)
	if action == nil {
		return nil
	}
	post := commands.BuildPost(action, service.ServiceType, value, args)
	_, err = d.client.SendCommand(ctx, d.Info.BaseURL, service, action.Name, post, "")
	return err
}

// RefreshVolume fetches the current volume and mute state synchronously.
func (d *Device) RefreshVolume(ctx context.Context) error {
	if err := d.fetchVolume(ctx); err != nil {
		return err
	}
	return d.fetchMute(ctx)
}

// refreshVolumeIfNeeded kicks off a background refresh when the cached
// volume has gone stale. At most one refresh runs at a time.
func (d *Device) refreshVolumeIfNeeded() {
	d.mu.Lock()
	stale := time.Since(d.volumeFetched) > d.opts.VolumeStaleness
	if !stale || d.refreshing {
		d.mu.Unlock()
		return
	}
	d.refreshing = true
	d.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.client.timeout)
		defer cancel()
		if err := d.RefreshVolume(ctx); err != nil {
			log.Printf("device %s volume refresh failed: %v", d.Info.Name, err)
		}
		d.mu.Lock()
		d.refreshing = false
		d.mu.Unlock()
	}()
}

func (d *Device) fetchVolume(ctx context.Context) error {
	doc, err := d.sendRcQuery(ctx, "GetVolume")
	if err != nil || doc == nil {
		return err
	}
	if elem := doc.FindElement("//CurrentVolume"); elem != nil {
		if value, err := strconv.Atoi(strings.TrimSpace(elem.Text())); err == nil {
			d.mu.Lock()
			d.volume = value
			if value > 0 {
				d.mutedVolume = value
			}
			d.volumeFetched = time.Now()
			d.mu.Unlock()
		}
	}
	return nil
}

func (d *Device) fetchMute(ctx context.Context) error {
	doc, err := d.sendRcQuery(ctx, "GetMute")
	if err != nil || doc == nil {
		return err
	}
	if elem := doc.FindElement("//CurrentMute"); elem != nil {
		value := strings.TrimSpace(elem.Text())
		d.mu.Lock()
		d.muted = value == "1" || strings.EqualFold(value, "true")
		d.mu.Unlock()
	}
	return nil
}

func (d *Device) sendRcQuery(ctx context.Context, name string) (*etree.Document, error) {
	commands, service, err := d.rcCommands(ctx)
	if err != nil {
		return nil, err
	}
	action := commands.Action(name)
	if action == nil {
		return nil, nil
	}
	post := commands.BuildPost(action, service.ServiceType, "", nil)
	return d.client.SendCommand(ctx, d.Info.BaseURL, service, action.Name, post, "")
}

// --- transport polling queries ---

func (d *Device) fetchTransportState(ctx context.Context) (TransportState, error) {
	commands, service, err := d.avCommands(ctx)
	if err != nil {
		return "", err
	}
	action := commands.Action("GetTransportInfo")
	if action == nil {
		return "", fmt.Errorf("device %s has no GetTransportInfo action", d.Info.Name)
	}
	post := commands.BuildPost(action, service.ServiceType, "", nil)
	doc, err := d.client.SendCommand(ctx, d.Info.BaseURL, service, action.Name, post, "")
	if err != nil {
		return "", err
	}
	if doc == nil {
		return "", nil
	}
	elem := doc.FindElement("//CurrentTransportState")
	if elem == nil {
		return "", nil
	}
	state, ok := ParseTransportState(elem.Text())
	if !ok {
		return "", nil
	}
	return state, nil
}

func (d *Device) fetchPositionInfo(ctx context.Context) (*UBaseObject, time.Duration, time.Duration, error) {
	commands, service, err := d.avCommands(ctx)
	if err != nil {
		return nil, 0, 0, err
	}
	action := commands.Action("GetPositionInfo")
	if action == nil {
		return nil, 0, 0, nil
	}
	post := commands.BuildPost(action, service.ServiceType, "", nil)
	doc, err := d.client.SendCommand(ctx, d.Info.BaseURL, service, action.Name, post, "")
	if err != nil {
		return nil, 0, 0, err
	}
	if doc == nil {
		return nil, 0, 0, nil
	}

	duration := parseTransportTime(findText(doc, "//TrackDuration"))
	position := parseTransportTime(findText(doc, "//RelTime"))
	trackURI := findText(doc, "//TrackURI")
	media := uBaseObjectFromMetadata(findText(doc, "//TrackMetaData"), trackURI)
	return media, position, duration, nil
}

func (d *Device) fetchMediaInfo(ctx context.Context) (*UBaseObject, error) {
	commands, service, err := d.avCommands(ctx)
	if err != nil {
		return nil, err
	}
	action := commands.Action("GetMediaInfo")
	if action == nil {
		return nil, nil
	}
	post := commands.BuildPost(action, service.ServiceType, "", nil)
	doc, err := d.client.SendCommand(ctx, d.Info.BaseURL, service, action.Name, post, "")
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	return uBaseObjectFromMetadata(findText(doc, "//CurrentURIMetaData"), findText(doc, "//CurrentURI")), nil
}

func findText(doc *etree.Document, path string) string {
	if elem := doc.FindElement(path); elem != nil {
		return strings.TrimSpace(elem.Text())
	}
	return ""
}

// --- SCPD caches ---

func (d *Device) avCommands(ctx context.Context) (*TransportCommands, *DeviceService, error) {
	service := d.Info.AVTransportService()
	if service == nil {
		return nil, nil, fmt.Errorf("device %s advertises no AVTransport service", d.Info.Name)
	}
	d.mu.Lock()
	cached := d.avCommandsCache
	d.mu.Unlock()
	if cached != nil {
		return cached, service, nil
	}
	commands, err := d.loadCommands(ctx, service)
	if err != nil {
		return nil, nil, err
	}
	d.mu.Lock()
	d.avCommandsCache = commands
	d.mu.Unlock()
	return commands, service, nil
}

func (d *Device) rcCommands(ctx context.Context) (*TransportCommands, *DeviceService, error) {
	service := d.Info.RenderingControlService()
	if service == nil {
		return nil, nil, fmt.Errorf("device %s advertises no RenderingControl service", d.Info.Name)
	}
	d.mu.Lock()
	cached := d.rcCommandsCache
	d.mu.Unlock()
	if cached != nil {
		return cached, service, nil
	}
	commands, err := d.loadCommands(ctx, service)
	if err != nil {
		return nil, nil, err
	}
	d.mu.Lock()
	d.rcCommandsCache = commands
	d.mu.Unlock()
	return commands, service, nil
}

func (d *Device) loadCommands(ctx context.Context, service *DeviceService) (*TransportCommands, error) {
	doc, err := d.client.GetData(ctx, NormalizeURL(d.Info.BaseURL, service.ScpdURL))
	if err != nil {
		return nil, fmt.Errorf("fetching scpd for %s: %w", service.ServiceType, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("scpd for %s is unparsable", service.ServiceType)
	}
	return ParseSCPD(doc), nil
}

// uBaseObjectFromMetadata parses a DIDL-Lite fragment into a snapshot. When
// the fragment is missing the track URI still identifies the item.
func uBaseObjectFromMetadata(metadata, trackURI string) *UBaseObject {
	if strings.TrimSpace(metadata) == "" || strings.EqualFold(metadata, "NOT_IMPLEMENTED") {
		if trackURI == "" {
			return nil
		}
		return &UBaseObject{ID: trackURI, URL: trackURI}
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(escapeBareAmpersands(metadata)); err != nil {
		if trackURI == "" {
			return nil
		}
		return &UBaseObject{ID: trackURI, URL: trackURI}
	}

	item := doc.FindElement("//item")
	if item == nil {
		item = doc.FindElement("//container")
	}
	if item == nil {
		if trackURI == "" {
			return nil
		}
		return &UBaseObject{ID: trackURI, URL: trackURI}
	}

	obj := &UBaseObject{
		ID:        item.SelectAttrValue("id", ""),
		ParentID:  item.SelectAttrValue("parentID", ""),
		Title:     childText(item, "title"),
		IconURL:   childText(item, "albumArtURI"),
		UpnpClass: childText(item, "class"),
		MetaData:  metadata,
	}
	if res := item.FindElement("res"); res != nil {
		obj.URL = strings.TrimSpace(res.Text())
		if proto := res.SelectAttrValue("protocolInfo", ""); proto != "" {
			obj.ProtocolInfo = strings.Split(proto, ":")
		}
	}
	if obj.URL == "" {
		obj.URL = trackURI
	}
	if obj.ID == "" {
		obj.ID = obj.URL
	}
	return obj
}

// formatTransportTime renders a duration in the hh:mm:ss form AVTransport
// expects for REL_TIME targets.
func formatTransportTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

// parseTransportTime reads hh:mm:ss values, tolerating fractional seconds
// and the NOT_IMPLEMENTED placeholder.
func parseTransportTime(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "NOT_IMPLEMENTED") {
		return 0
	}
	if dot := strings.IndexByte(value, '.'); dot >= 0 {
		value = value[:dot]
	}
	parts := strings.Split(value, ":")
	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second
}
