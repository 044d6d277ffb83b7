package engine

import (
	"github.com/go-resty/resty/v2"
)

// AdminClient is the administrative action protocol. It is used only for
// legs that are not yet inside the managed application, for example a
// freshly dialed leg still running ordinary dialplan.
type AdminClient interface {
	SetVar(channelID, name, value string) error
	RedirectToApp(channelID, app string, appArgs []string) error
	ExtensionExists(context, exten string) (bool, error)
}

// RestAdminClient implements AdminClient over the engine's admin action
// endpoint.
type RestAdminClient struct {
	r *resty.Client
}

func NewRestAdminClient(baseURL, apiKey string) *RestAdminClient {
	r := resty.New().
		SetBaseURL(baseURL).
		SetHeader("X-API-Key", apiKey)

	return &RestAdminClient{r: r}
}

type adminAction struct {
	Action  string            `json:"action"`
	Channel string            `json:"channel,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
	AppArgs []string          `json:"app_args,omitempty"`
}

func (c *RestAdminClient) SetVar(channelID, name, value string) error {
	resp, err := c.r.R().
		SetBody(adminAction{
			Action:  "setvar",
			Channel: channelID,
			Params:  map[string]string{"name": name, "value": value},
		}).
		Post("/admin/actions")
	return toError(resp, err)
}

func (c *RestAdminClient) RedirectToApp(channelID, app string, appArgs []string) error {
	resp, err := c.r.R().
		SetBody(adminAction{
			Action:  "redirect",
			Channel: channelID,
			Params:  map[string]string{"app": app},
			AppArgs: appArgs,
		}).
		Post("/admin/actions")
	return toError(resp, err)
}

func (c *RestAdminClient) ExtensionExists(context, exten string) (bool, error) {
	resp, err := c.r.R().Get("/admin/dialplan/" + context + "/" + exten)
	if err != nil {
		return false, toError(resp, err)
	}

	if resp.StatusCode() == 404 {
		return false, nil
	}

	if err := toError(resp, nil); err != nil {
		return false, err
	}

	return true, nil
}
