package engine

// Channel is the engine's view of one call leg.
type Channel struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	InApp     bool   `json:"in_app"`
	BridgeID  string `json:"bridge_id,omitempty"`
	CallerNum string `json:"caller_num,omitempty"`
}

// Bridge is an engine-managed mixing point joining two or more legs.
type Bridge struct {
	ID       string   `json:"id"`
	Channels []string `json:"channels"`
}

// OriginateRequest asks the engine to create a new outbound leg that enters
// the managed application, echoing AppArgs back on its events.
type OriginateRequest struct {
	Endpoint  string            `json:"endpoint"`
	App       string            `json:"app"`
	AppArgs   []string          `json:"app_args"`
	Variables map[string]string `json:"variables,omitempty"`
	Timeout   int               `json:"timeout,omitempty"`
	CallerID  string            `json:"caller_id,omitempty"`
}

// Engine event types delivered on the event feed.
const (
	EventChannelEnteredApp = "ChannelEnteredApp"
	EventChannelLeftApp    = "ChannelLeftApp"
	EventChannelDestroyed  = "ChannelDestroyed"
	EventChannelStateUp    = "ChannelStateUp"
	EventBridgeLeft        = "BridgeLeft"
)

// Event is one entry from the engine's ordered event feed. Args carries the
// correlation argument vector echoed back verbatim for legs that entered the
// managed application.
type Event struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel,omitempty"`
	Bridge  string   `json:"bridge,omitempty"`
	Args    []string `json:"args,omitempty"`
	Cause   int      `json:"cause,omitempty"`
}
