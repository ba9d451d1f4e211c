package manager

import (
	"time"

	"llmd/internal/llm"
	"llmd/pkg/types"
)

// Status builds the cache part of the /status response.
func (m *Manager) Status() types.StatusResponse {
	entries := m.List()
	resp := types.StatusResponse{
		Instances:         make([]types.InstanceStatus, 0, len(entries)),
		EngineAvailable:   llm.Built,
		LoadsTotal:        m.loadsTotal.Load(),
		LoadFailuresTotal: m.failuresTotal.Load(),
		EvictionsTotal:    m.evictionsTotal.Load(),
		UptimeSeconds:     int64(time.Since(m.startTime) / time.Second),
		ServerTimeUnix:    time.Now().Unix(),
	}
	for _, e := range entries {
		resp.Instances = append(resp.Instances, types.InstanceStatus{
			Name:     e.Name,
			Path:     e.Path,
			Type:     e.Category,
			State:    string(e.State),
			LastUsed: e.LastUsed.Unix(),
		})
	}
	return resp
}
