package engine

import (
	"fmt"
	"sync"
)

// MockClient is an in-memory Client used in tests. It tracks channels,
// bridges and variables well enough to exercise the transfer and relocate
// machines without a real engine.
type MockClient struct {
	mu          sync.Mutex
	err         error
	channels    map[string]*Channel
	bridges     map[string][]string
	globals     map[string]string
	channelVars map[string]map[string]string
	moh         map[string]bool
	originated  []OriginateRequest
	hungup      []string
	originateID string
	originateN  int
}

func NewMockClient() *MockClient {
	return &MockClient{
		channels:    make(map[string]*Channel),
		bridges:     make(map[string][]string),
		globals:     make(map[string]string),
		channelVars: make(map[string]map[string]string),
		moh:         make(map[string]bool),
	}
}

// SetError makes every subsequent call fail with err. Pass nil to clear.
func (c *MockClient) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// AddChannel registers a live channel.
func (c *MockClient) AddChannel(id string, inApp bool) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := &Channel{ID: id, State: "Up", InApp: inApp}
	c.channels[id] = ch

	return ch
}

// SetOriginateID fixes the channel ID returned by the next Originate call.
func (c *MockClient) SetOriginateID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.originateID = id
}

// Originated returns the originate requests issued so far.
func (c *MockClient) Originated() []OriginateRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]OriginateRequest, len(c.originated))
	copy(out, c.originated)

	return out
}

// Hungup returns the channel IDs hung up so far, in order.
func (c *MockClient) Hungup() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.hungup))
	copy(out, c.hungup)

	return out
}

// OnMOH reports whether the channel is currently on hold music.
func (c *MockClient) OnMOH(channelID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.moh[channelID]
}

// BridgeChannels returns the current members of a bridge.
func (c *MockClient) BridgeChannels(bridgeID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.bridges[bridgeID]))
	copy(out, c.bridges[bridgeID])

	return out
}

func (c *MockClient) GetChannel(channelID string) (*Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}

	ch, ok := c.channels[channelID]
	if !ok {
		return nil, ErrNotFound
	}

	copied := *ch

	return &copied, nil
}

func (c *MockClient) Answer(channelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}

	ch, ok := c.channels[channelID]
	if !ok {
		return ErrNotFound
	}
	ch.State = "Up"

	return nil
}

func (c *MockClient) Hangup(channelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}

	ch, ok := c.channels[channelID]
	if !ok {
		return ErrNotFound
	}

	c.hungup = append(c.hungup, channelID)
	if ch.BridgeID != "" {
		c.bridges[ch.BridgeID] = removeString(c.bridges[ch.BridgeID], channelID)
	}
	delete(c.channels, channelID)
	delete(c.moh, channelID)

	return nil
}

func (c *MockClient) Hold(channelID string) error   { return c.channelOp(channelID) }
func (c *MockClient) Unhold(channelID string) error { return c.channelOp(channelID) }
func (c *MockClient) Mute(channelID string) error   { return c.channelOp(channelID) }
func (c *MockClient) Unmute(channelID string) error { return c.channelOp(channelID) }

func (c *MockClient) channelOp(channelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}
	if _, ok := c.channels[channelID]; !ok {
		return ErrNotFound
	}

	return nil
}

func (c *MockClient) StartMOH(channelID, mohClass string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}
	if _, ok := c.channels[channelID]; !ok {
		return ErrNotFound
	}
	c.moh[channelID] = true

	return nil
}

func (c *MockClient) StopMOH(channelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}
	if _, ok := c.channels[channelID]; !ok {
		return ErrNotFound
	}
	delete(c.moh, channelID)

	return nil
}

func (c *MockClient) GetChannelVar(channelID, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return "", c.err
	}

	vars, ok := c.channelVars[channelID]
	if !ok {
		return "", ErrNotFound
	}
	v, ok := vars[name]
	if !ok {
		return "", ErrNotFound
	}

	return v, nil
}

func (c *MockClient) SetChannelVar(channelID, name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}

	if c.channelVars[channelID] == nil {
		c.channelVars[channelID] = make(map[string]string)
	}
	c.channelVars[channelID][name] = value

	return nil
}

func (c *MockClient) GetGlobalVar(name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return "", c.err
	}

	v, ok := c.globals[name]
	if !ok {
		return "", ErrNotFound
	}

	return v, nil
}

func (c *MockClient) SetGlobalVar(name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}
	c.globals[name] = value

	return nil
}

func (c *MockClient) DeleteGlobalVar(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}
	delete(c.globals, name)

	return nil
}

func (c *MockClient) CreateBridge(bridgeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}
	if _, ok := c.bridges[bridgeID]; ok {
		return fmt.Errorf("bridge %s already exists", bridgeID)
	}
	c.bridges[bridgeID] = nil

	return nil
}

func (c *MockClient) DestroyBridge(bridgeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}
	if _, ok := c.bridges[bridgeID]; !ok {
		return ErrNotFound
	}
	delete(c.bridges, bridgeID)

	return nil
}

func (c *MockClient) AddChannelToBridge(bridgeID, channelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}

	ch, ok := c.channels[channelID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := c.bridges[bridgeID]; !ok {
		return ErrNotFound
	}

	c.bridges[bridgeID] = append(c.bridges[bridgeID], channelID)
	ch.BridgeID = bridgeID

	return nil
}

func (c *MockClient) RemoveChannelFromBridge(bridgeID, channelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}
	if _, ok := c.bridges[bridgeID]; !ok {
		return ErrNotFound
	}

	c.bridges[bridgeID] = removeString(c.bridges[bridgeID], channelID)
	if ch, ok := c.channels[channelID]; ok && ch.BridgeID == bridgeID {
		ch.BridgeID = ""
	}

	return nil
}

func (c *MockClient) ListBridgeChannels(bridgeID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}

	members, ok := c.bridges[bridgeID]
	if !ok {
		return nil, ErrNotFound
	}

	out := make([]string, len(members))
	copy(out, members)

	return out, nil
}

func (c *MockClient) Originate(req OriginateRequest) (*Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}

	c.originated = append(c.originated, req)

	id := c.originateID
	if id == "" {
		c.originateN++
		id = fmt.Sprintf("originated-%d", c.originateN)
	}
	c.originateID = ""

	ch := &Channel{ID: id, State: "Ringing", InApp: true}
	c.channels[id] = ch
	copied := *ch

	return &copied, nil
}

func removeString(list []string, s string) []string {
	for i, v := range list {
		if v == s {
			return append(list[:i], list[i+1:]...)
		}
	}

	return list
}
