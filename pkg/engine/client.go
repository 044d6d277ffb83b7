package engine

import (
	"github.com/go-resty/resty/v2"
)

// GlobalVarClient is the slice of the control protocol the persisted state
// store needs: the engine's global key/value space, which survives calld
// restarts because it lives inside the engine process.
type GlobalVarClient interface {
	GetGlobalVar(name string) (string, error)
	SetGlobalVar(name, value string) error
	DeleteGlobalVar(name string) error
}

// Client is the synchronous control protocol to the telephony engine. Every
// call is a blocking round-trip; no engine state is cached between calls.
type Client interface {
	GlobalVarClient

	GetChannel(channelID string) (*Channel, error)
	Answer(channelID string) error
	Hangup(channelID string) error
	Hold(channelID string) error
	Unhold(channelID string) error
	Mute(channelID string) error
	Unmute(channelID string) error
	StartMOH(channelID, mohClass string) error
	StopMOH(channelID string) error
	GetChannelVar(channelID, name string) (string, error)
	SetChannelVar(channelID, name, value string) error

	CreateBridge(bridgeID string) error
	DestroyBridge(bridgeID string) error
	AddChannelToBridge(bridgeID, channelID string) error
	RemoveChannelFromBridge(bridgeID, channelID string) error
	ListBridgeChannels(bridgeID string) ([]string, error)

	Originate(req OriginateRequest) (*Channel, error)
}

// RestClient implements Client over the engine's REST control API.
type RestClient struct {
	r *resty.Client
}

func NewRestClient(baseURL, apiKey string) *RestClient {
	r := resty.New().
		SetBaseURL(baseURL).
		SetHeader("X-API-Key", apiKey)

	return &RestClient{r: r}
}

func (c *RestClient) GetChannel(channelID string) (*Channel, error) {
	var ch Channel

	resp, err := c.r.R().
		SetResult(&ch).
		Get("/channels/" + channelID)
	if err := toError(resp, err); err != nil {
		return nil, err
	}

	return &ch, nil
}

func (c *RestClient) Answer(channelID string) error {
	resp, err := c.r.R().Post("/channels/" + channelID + "/answer")
	return toError(resp, err)
}

func (c *RestClient) Hangup(channelID string) error {
	resp, err := c.r.R().Delete("/channels/" + channelID)
	return toError(resp, err)
}

func (c *RestClient) Hold(channelID string) error {
	resp, err := c.r.R().Post("/channels/" + channelID + "/hold")
	return toError(resp, err)
}

func (c *RestClient) Unhold(channelID string) error {
	resp, err := c.r.R().Delete("/channels/" + channelID + "/hold")
	return toError(resp, err)
}

func (c *RestClient) Mute(channelID string) error {
	resp, err := c.r.R().Post("/channels/" + channelID + "/mute")
	return toError(resp, err)
}

func (c *RestClient) Unmute(channelID string) error {
	resp, err := c.r.R().Delete("/channels/" + channelID + "/mute")
	return toError(resp, err)
}

// StartMOH puts the leg on hold music. An empty mohClass plays silence.
func (c *RestClient) StartMOH(channelID, mohClass string) error {
	resp, err := c.r.R().
		SetQueryParam("class", mohClass).
		Post("/channels/" + channelID + "/moh")
	return toError(resp, err)
}

func (c *RestClient) StopMOH(channelID string) error {
	resp, err := c.r.R().Delete("/channels/" + channelID + "/moh")
	return toError(resp, err)
}

func (c *RestClient) GetChannelVar(channelID, name string) (string, error) {
	var result struct {
		Value string `json:"value"`
	}

	resp, err := c.r.R().
		SetResult(&result).
		Get("/channels/" + channelID + "/vars/" + name)
	if err := toError(resp, err); err != nil {
		return "", err
	}

	return result.Value, nil
}

func (c *RestClient) SetChannelVar(channelID, name, value string) error {
	resp, err := c.r.R().
		SetBody(map[string]string{"value": value}).
		Put("/channels/" + channelID + "/vars/" + name)
	return toError(resp, err)
}

func (c *RestClient) GetGlobalVar(name string) (string, error) {
	var result struct {
		Value string `json:"value"`
	}

	resp, err := c.r.R().
		SetResult(&result).
		Get("/globals/" + name)
	if err := toError(resp, err); err != nil {
		return "", err
	}

	return result.Value, nil
}

func (c *RestClient) SetGlobalVar(name, value string) error {
	resp, err := c.r.R().
		SetBody(map[string]string{"value": value}).
		Put("/globals/" + name)
	return toError(resp, err)
}

func (c *RestClient) DeleteGlobalVar(name string) error {
	resp, err := c.r.R().Delete("/globals/" + name)
	return toError(resp, err)
}

func (c *RestClient) CreateBridge(bridgeID string) error {
	resp, err := c.r.R().
		SetBody(map[string]string{"type": "mixing"}).
		Post("/bridges/" + bridgeID)
	return toError(resp, err)
}

func (c *RestClient) DestroyBridge(bridgeID string) error {
	resp, err := c.r.R().Delete("/bridges/" + bridgeID)
	return toError(resp, err)
}

func (c *RestClient) AddChannelToBridge(bridgeID, channelID string) error {
	resp, err := c.r.R().Post("/bridges/" + bridgeID + "/channels/" + channelID)
	return toError(resp, err)
}

func (c *RestClient) RemoveChannelFromBridge(bridgeID, channelID string) error {
	resp, err := c.r.R().Delete("/bridges/" + bridgeID + "/channels/" + channelID)
	return toError(resp, err)
}

func (c *RestClient) ListBridgeChannels(bridgeID string) ([]string, error) {
	var bridge Bridge

	resp, err := c.r.R().
		SetResult(&bridge).
		Get("/bridges/" + bridgeID)
	if err := toError(resp, err); err != nil {
		return nil, err
	}

	return bridge.Channels, nil
}

func (c *RestClient) Originate(req OriginateRequest) (*Channel, error) {
	var ch Channel

	resp, err := c.r.R().
		SetBody(req).
		SetResult(&ch).
		Post("/channels")
	if err := toError(resp, err); err != nil {
		return nil, err
	}

	return &ch, nil
}
