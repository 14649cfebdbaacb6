package metaauth

// Heartbeat upserts the reporting node's NodeRecord, and — for Storage-role
// nodes that have published endpoint+pubkey+score — its MeshPeer entry. It
// returns the desired allocation and sticky eject flag for that node.
//
// Gateway-only nodes are tracked in gatewayHosts instead and never receive
// a placement allocation.
func (s *Store) Heartbeat(req HeartbeatRequest) HeartbeatResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	keypair := s.keyRegistry[req.NodeID]

	if req.Role == RoleGatewayOnly {
		s.gatewayHosts[req.NodeID] = &GatewayHost{
			NodeID:   req.NodeID,
			IP:       req.IP,
			MeshPort: req.MeshPort,
			Status:   "online",
		}
		resp := HeartbeatResponse{DesiredAllocationBytes: 0, Eject: false}
		if keypair != nil {
			resp.MeshPublicKey = keypair.PublicKey
			resp.MeshPrivateKey = keypair.PrivateKey
		}
		return resp
	}

	meshPublicKey := req.MeshPublicKey
	if meshPublicKey == "" && keypair != nil {
		meshPublicKey = keypair.PublicKey
	}
	var meshPrivateKey string
	if keypair != nil {
		meshPrivateKey = keypair.PrivateKey
	}

	record := &NodeRecord{
		NodeID:        req.NodeID,
		Hostname:      req.Hostname,
		Nickname:      req.Nickname,
		Role:          req.Role,
		IP:            req.IP,
		MeshPort:      req.MeshPort,
		Drives:        req.Drives,
		MeshEndpoint:  req.MeshEndpoint,
		MeshPublicKey: meshPublicKey,
		MeshNATType:   req.MeshNATType,
	}
	if req.MeshScore != nil {
		record.MeshScore = *req.MeshScore
	}
	s.nodes[req.NodeID] = record

	if req.Role == RoleStorage && req.MeshEndpoint != "" && req.MeshPublicKey != "" && req.MeshScore != nil {
		s.meshPeers[req.NodeID] = &MeshPeer{
			NodeID:    req.NodeID,
			Endpoint:  req.MeshEndpoint,
			PublicKey: req.MeshPublicKey,
			Score:     *req.MeshScore,
			NATType:   req.MeshNATType,
		}
	}

	alloc, ok := s.desiredAlloc[req.NodeID]
	if !ok {
		alloc = defaultDesiredAllocationBytes
	}
	eject := s.ejectFlags[req.NodeID]

	resp := HeartbeatResponse{DesiredAllocationBytes: alloc, Eject: eject}
	if keypair != nil {
		resp.MeshPublicKey = keypair.PublicKey
		resp.MeshPrivateKey = keypair.PrivateKey
	}
	return resp
}

// MeshInfo returns the current peer table plus the elected gateway: the
// peer with the maximum score, ties broken by the lexicographically
// smallest node_id so election is deterministic across calls. First-seen
// order is not tracked and plays no part in the tie-break.
func (s *Store) MeshInfo() MeshInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	peers := make([]MeshPeer, 0, len(s.meshPeers))
	for _, p := range s.meshPeers {
		peers = append(peers, *p)
	}

	var gateway string
	var bestScore float64 = -1
	for _, p := range peers {
		if p.Score > bestScore || (p.Score == bestScore && p.NodeID < gateway) {
			bestScore = p.Score
			gateway = p.NodeID
		}
	}

	return MeshInfo{Peers: peers, Gateway: gateway}
}

// SetEject sets or clears the sticky eject flag for a node.
func (s *Store) SetEject(nodeID string, eject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ejectFlags[nodeID] = eject
}

// SetDesiredAllocation overrides the default 1 GiB allocation for a node.
func (s *Store) SetDesiredAllocation(nodeID string, bytes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.desiredAlloc[nodeID] = bytes
}

// Nodes returns a snapshot of all storage-role NodeRecords, enriched from
// meshPeers/keyRegistry the way list_nodes does for dashboards.
func (s *Store) Nodes() []NodeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]NodeRecord, 0, len(s.nodes))
	for _, n := range s.nodes {
		rec := *n
		if peer, ok := s.meshPeers[rec.NodeID]; ok {
			rec.MeshEndpoint = peer.Endpoint
			rec.MeshPublicKey = peer.PublicKey
			rec.MeshScore = peer.Score
			rec.MeshNATType = peer.NATType
		}
		out = append(out, rec)
	}
	return out
}

// GatewayHosts returns a snapshot of all gateway-only mounts.
func (s *Store) GatewayHosts() []GatewayHost {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]GatewayHost, 0, len(s.gatewayHosts))
	for _, h := range s.gatewayHosts {
		out = append(out, *h)
	}
	return out
}

// UpsertKey stores a node's tunnel-layer keypair in the registry, handed
// out on the next heartbeat.
func (s *Store) UpsertKey(entry KeyRegistryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyRegistry[entry.NodeID] = &entry
	if rec, ok := s.nodes[entry.NodeID]; ok {
		rec.MeshPublicKey = entry.PublicKey
	}
}

// Keys returns a snapshot of the key registry.
func (s *Store) Keys() []KeyRegistryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]KeyRegistryEntry, 0, len(s.keyRegistry))
	for _, k := range s.keyRegistry {
		out = append(out, *k)
	}
	return out
}

// ClusterSnapshot builds the placement-engine view of storage-role nodes
// and their drives.
func (s *Store) ClusterSnapshot() []NodeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]NodeRecord, 0, len(s.nodes))
	for _, n := range s.nodes {
		if n.Role == RoleStorage {
			out = append(out, *n)
		}
	}
	return out
}
