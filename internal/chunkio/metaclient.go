package chunkio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/wyvernglobal/junknas/internal/ferr"
	"github.com/wyvernglobal/junknas/internal/metaauth"
	"github.com/wyvernglobal/junknas/internal/placement"
)

// MetadataClient is everything the translator needs from the Metadata
// Authority. It is an interface so tests can substitute an in-process fake
// instead of a real controller.
type MetadataClient interface {
	Lookup(path string) (metaauth.FsEntry, error)
	List(path string) (map[string]metaauth.FsEntry, error)
	Create(path string, nodeType metaauth.NodeType, mode uint32) (metaauth.FsEntry, error)
	UpdateSize(path string, size uint64) error
	UpdateChunks(path string, chunks []metaauth.ChunkMeta) error
	Delete(path string) error
	ClusterSnapshot() (placement.ClusterState, error)
	PeerEndpoint(nodeID string) (string, error)
}

// HTTPMetadataClient talks to a controller's metaauth HTTP server.
type HTTPMetadataClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPMetadataClient returns a client for the controller at baseURL
// (e.g. "http://10.0.0.1:8080").
func NewHTTPMetadataClient(baseURL string) *HTTPMetadataClient {
	return &HTTPMetadataClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPMetadataClient) get(path string, query url.Values, out any) error {
	u := c.baseURL + path
	if query != nil {
		u += "?" + query.Encode()
	}
	resp, err := c.client.Get(u)
	if err != nil {
		return ferr.New(ferr.NetworkTransient, "http_get", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ferr.New(ferr.FromHTTPStatus(resp.StatusCode), "http_get", fmt.Errorf("status %d", resp.StatusCode))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPMetadataClient) post(path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return ferr.New(ferr.BadRequest, "http_post", err)
	}
	resp, err := c.client.Post(c.baseURL+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		return ferr.New(ferr.NetworkTransient, "http_post", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ferr.New(ferr.FromHTTPStatus(resp.StatusCode), "http_post", fmt.Errorf("status %d", resp.StatusCode))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *HTTPMetadataClient) Lookup(path string) (metaauth.FsEntry, error) {
	var entry metaauth.FsEntry
	err := c.get("/api/fs/lookup", url.Values{"path": {path}}, &entry)
	return entry, err
}

func (c *HTTPMetadataClient) List(path string) (map[string]metaauth.FsEntry, error) {
	var entries map[string]metaauth.FsEntry
	err := c.get("/api/fs/list", url.Values{"path": {path}}, &entries)
	return entries, err
}

func (c *HTTPMetadataClient) Create(path string, nodeType metaauth.NodeType, mode uint32) (metaauth.FsEntry, error) {
	var entry metaauth.FsEntry
	req := map[string]any{"path": path, "node_type": nodeType, "mode": mode}
	err := c.post("/api/fs/create", req, &entry)
	return entry, err
}

func (c *HTTPMetadataClient) UpdateSize(path string, size uint64) error {
	req := map[string]any{"path": path, "size": size}
	return c.post("/api/fs/update-size", req, nil)
}

func (c *HTTPMetadataClient) UpdateChunks(path string, chunks []metaauth.ChunkMeta) error {
	req := map[string]any{"path": path, "chunks": chunks}
	return c.post("/api/fs/update-chunks", req, nil)
}

func (c *HTTPMetadataClient) Delete(path string) error {
	req := map[string]any{"path": path}
	return c.post("/api/fs/delete", req, nil)
}

func (c *HTTPMetadataClient) ClusterSnapshot() (placement.ClusterState, error) {
	var nodes []metaauth.NodeRecord
	if err := c.get("/api/nodes", nil, &nodes); err != nil {
		return placement.ClusterState{}, err
	}
	state := placement.ClusterState{Nodes: make([]placement.NodeStatus, 0, len(nodes))}
	for _, n := range nodes {
		drives := make([]placement.DriveStatus, 0, len(n.Drives))
		for _, d := range n.Drives {
			free := d.AllocatedBytes
			if free < d.UsedBytes {
				free = 0
			} else {
				free -= d.UsedBytes
			}
			drives = append(drives, placement.DriveStatus{
				DriveID:        d.ID,
				FreeBytes:      free,
				AllocatedBytes: d.AllocatedBytes,
			})
		}
		state.Nodes = append(state.Nodes, placement.NodeStatus{
			NodeID:    n.NodeID,
			MeshScore: n.MeshScore,
			Drives:    drives,
		})
	}
	return state, nil
}

// Heartbeat posts the agent's periodic status report and returns the
// controller's desired allocation and eject signal.
func (c *HTTPMetadataClient) Heartbeat(req metaauth.HeartbeatRequest) (metaauth.HeartbeatResponse, error) {
	var resp metaauth.HeartbeatResponse
	err := c.post("/api/agents/heartbeat", req, &resp)
	return resp, err
}

// Mesh fetches the current peer table and elected gateway.
func (c *HTTPMetadataClient) Mesh() (metaauth.MeshInfo, error) {
	var info metaauth.MeshInfo
	err := c.get("/api/mesh", nil, &info)
	return info, err
}

func (c *HTTPMetadataClient) PeerEndpoint(nodeID string) (string, error) {
	var info metaauth.MeshInfo
	if err := c.get("/api/mesh", nil, &info); err != nil {
		return "", err
	}
	for _, p := range info.Peers {
		if p.NodeID == nodeID {
			return p.Endpoint, nil
		}
	}
	return "", ferr.New(ferr.NotFound, "peer_endpoint", fmt.Errorf("no mesh peer for node %q", nodeID))
}
