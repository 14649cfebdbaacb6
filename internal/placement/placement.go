// Package placement implements the chunk placement engine: given a
// snapshot of cluster node/drive state, rank candidates and choose one
// node+drive pair for a chunk.
package placement

import (
	"errors"
	"sort"
)

// ErrNoNodes is returned when the cluster snapshot has no nodes at all.
var ErrNoNodes = errors.New("placement: no nodes available")

// ErrNoDrives is returned when the chosen node has no drives to place on.
var ErrNoDrives = errors.New("placement: node has zero drives")

// DriveStatus is one drive's capacity snapshot as seen by the placement
// engine.
type DriveStatus struct {
	DriveID        string
	FreeBytes      uint64
	AllocatedBytes uint64
}

// NodeStatus is one node's capacity and mesh-score snapshot.
type NodeStatus struct {
	NodeID    string
	MeshScore float64
	Drives    []DriveStatus
}

// ClusterState is the full snapshot placement ranks over.
type ClusterState struct {
	Nodes []NodeStatus
}

// ChunkMeta records where one chunk of a file physically lives.
type ChunkMeta struct {
	Index     uint64
	NodeID    string
	DriveID   string
	ChunkHash string
}

const weightScore = 0.6
const weightSpace = 0.4

type candidate struct {
	node     *NodeStatus
	combined float64
}

// Allocate picks the node+drive pair for chunkIdx of a file, given the
// chunk's content hash and the current cluster snapshot. The rank
// combines mesh score (60%) and free-space ratio relative to the
// most-spacious node in the cluster (40%); ties are broken by the stable
// input order from cluster.Nodes.
func Allocate(chunkIdx uint64, cluster ClusterState, contentHash string) (ChunkMeta, error) {
	if len(cluster.Nodes) == 0 {
		return ChunkMeta{}, ErrNoNodes
	}

	var maxFree uint64 = 1
	for i := range cluster.Nodes {
		var free uint64
		for _, d := range cluster.Nodes[i].Drives {
			free += d.FreeBytes
		}
		if free > maxFree {
			maxFree = free
		}
	}

	candidates := make([]candidate, 0, len(cluster.Nodes))
	for i := range cluster.Nodes {
		node := &cluster.Nodes[i]
		var free uint64
		for _, d := range node.Drives {
			free += d.FreeBytes
		}
		freeRatio := float64(free) / float64(maxFree)
		combined := weightScore*node.MeshScore + weightSpace*freeRatio
		candidates = append(candidates, candidate{node: node, combined: combined})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].combined > candidates[j].combined
	})

	bestNode := candidates[0].node
	if len(bestNode.Drives) == 0 {
		return ChunkMeta{}, ErrNoDrives
	}

	drivesSorted := make([]DriveStatus, len(bestNode.Drives))
	copy(drivesSorted, bestNode.Drives)
	sort.SliceStable(drivesSorted, func(i, j int) bool {
		return drivesSorted[i].FreeBytes > drivesSorted[j].FreeBytes
	})
	bestDrive := drivesSorted[0]

	return ChunkMeta{
		Index:     chunkIdx,
		NodeID:    bestNode.NodeID,
		DriveID:   bestDrive.DriveID,
		ChunkHash: contentHash,
	}, nil
}
