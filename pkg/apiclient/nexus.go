package apiclient

import (
	"fmt"
	"net/url"
)

// Child is the wire representation of a single Child.
type Child struct {
	Name       string `json:"name"`
	ParentName string `json:"parent_name"`
	State      string `json:"state"`
}

// Nexus is the wire representation of a Nexus topology snapshot.
type Nexus struct {
	Name              string  `json:"name"`
	Size              uint64  `json:"size"`
	State             string  `json:"state"`
	BlockLen          uint32  `json:"block_len"`
	RequiredAlignment uint32  `json:"required_alignment"`
	Children          []Child `json:"children"`
}

func nexusPath(name string, suffix string) string {
	return fmt.Sprintf("/v1/nexuses/%s%s", url.PathEscape(name), suffix)
}

// CreateNexus creates a brand-new Nexus of the given logical size.
func (c *Client) CreateNexus(name string, size uint64) error {
	return c.put(nexusPath(name, ""), map[string]uint64{"size": size}, nil)
}

// GetNexus returns the current topology snapshot of name.
func (c *Client) GetNexus(name string) (*Nexus, error) {
	var n Nexus
	if err := c.get(nexusPath(name, ""), &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// DestroyNexus destroys every child of name and tears it down.
func (c *Client) DestroyNexus(name string) error {
	return c.delete(nexusPath(name, ""), nil)
}

// RegisterChildren registers uris as Children of name, in Init state.
func (c *Client) RegisterChildren(name string, uris []string) (*Nexus, error) {
	var n Nexus
	if err := c.post(nexusPath(name, "/children"), map[string][]string{"uris": uris}, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// Open transactionally opens every registered child.
func (c *Client) Open(name string) (*Nexus, error) {
	var n Nexus
	if err := c.post(nexusPath(name, "/open"), nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// AddChild creates and adds a new child at uri.
func (c *Client) AddChild(name, uri string) (*Nexus, error) {
	var n Nexus
	if err := c.post(nexusPath(name, "/children/"+url.PathEscape(uri)), nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// RemoveChild removes a Closed child by uri.
func (c *Client) RemoveChild(name, uri string) error {
	return c.delete(nexusPath(name, "/children/"+url.PathEscape(uri)), nil)
}

// OfflineChild closes the named child.
func (c *Client) OfflineChild(name, uri string) (*Nexus, error) {
	var n Nexus
	if err := c.post(nexusPath(name, "/children/"+url.PathEscape(uri)+"/offline"), nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// OnlineChild reopens a Closed child.
func (c *Client) OnlineChild(name, uri string) (*Nexus, error) {
	var n Nexus
	if err := c.post(nexusPath(name, "/children/"+url.PathEscape(uri)+"/online"), nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// FaultChild marks the named child Faulted.
func (c *Client) FaultChild(name, uri string) (*Nexus, error) {
	var n Nexus
	if err := c.post(nexusPath(name, "/children/"+url.PathEscape(uri)+"/fault"), nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// Labels probes every open child's on-disk label, returning the common label.
func (c *Client) Labels(name string) (string, error) {
	var resp struct {
		Label string `json:"label"`
	}
	if err := c.get(nexusPath(name, "/labels"), &resp); err != nil {
		return "", err
	}
	return resp.Label, nil
}
