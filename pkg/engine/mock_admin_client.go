package engine

import "sync"

// MockAdminClient is an in-memory AdminClient used in tests.
type MockAdminClient struct {
	mu         sync.Mutex
	err        error
	extensions map[string]bool
	redirected []string
	vars       map[string]map[string]string
}

func NewMockAdminClient() *MockAdminClient {
	return &MockAdminClient{
		extensions: make(map[string]bool),
		vars:       make(map[string]map[string]string),
	}
}

func (c *MockAdminClient) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// AddExtension marks context/exten as existing in the dialplan.
func (c *MockAdminClient) AddExtension(context, exten string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extensions[context+"/"+exten] = true
}

// Redirected returns the channel IDs redirected into the managed app.
func (c *MockAdminClient) Redirected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.redirected))
	copy(out, c.redirected)

	return out
}

func (c *MockAdminClient) SetVar(channelID, name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}

	if c.vars[channelID] == nil {
		c.vars[channelID] = make(map[string]string)
	}
	c.vars[channelID][name] = value

	return nil
}

func (c *MockAdminClient) RedirectToApp(channelID, app string, appArgs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}
	c.redirected = append(c.redirected, channelID)

	return nil
}

func (c *MockAdminClient) ExtensionExists(context, exten string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return false, c.err
	}

	return c.extensions[context+"/"+exten], nil
}
